// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes /metrics and /healthz while a batch runs, so a
// Prometheus scrape or a curl can watch a long campaign.
type MetricsServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// NewMetricsServer binds addr and builds the router.
//
// handler serves /metrics; nil uses MetricsHandler() and falls back to
// promhttp.Handler() for the default registry.
func NewMetricsServer(addr string, handler http.Handler, logger *slog.Logger) (*MetricsServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = MetricsHandler()
	}
	if handler == nil {
		handler = promhttp.Handler()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(handler))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &MetricsServer{
		srv: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr returns the bound address (useful with ":0").
func (s *MetricsServer) Addr() string {
	return s.ln.Addr().String()
}

// Start serves in the background.
func (s *MetricsServer) Start() {
	s.logger.Info("metrics server listening", slog.String("address", s.Addr()))
	go func() {
		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
