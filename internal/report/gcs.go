// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig locates the upload destination.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file" validate:"omitempty,file"`
}

// Enabled reports whether a bucket is configured.
func (c GCSConfig) Enabled() bool {
	return c.Bucket != ""
}

// ObjectName is the object path for a run's file.
func (c GCSConfig) ObjectName(runID, localPath string) string {
	return path.Join(c.Prefix, runID, filepath.Base(localPath))
}

// GCSUploader copies result files to Cloud Storage.
type GCSUploader struct {
	client *storage.Client
	cfg    GCSConfig
}

// NewGCSUploader creates an uploader. Without a credentials file the
// client uses application default credentials.
func NewGCSUploader(ctx context.Context, cfg GCSConfig) (*GCSUploader, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSUploader{client: client, cfg: cfg}, nil
}

// Upload copies localPath to gs://<bucket>/<prefix>/<runID>/<base name>
// and returns the gs:// URI.
func (u *GCSUploader) Upload(ctx context.Context, runID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer f.Close()

	name := u.cfg.ObjectName(runID, localPath)
	w := u.client.Bucket(u.cfg.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to copy %s to GCS object %s: %w", localPath, name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", u.cfg.Bucket, name), nil
}

// Close releases the client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
