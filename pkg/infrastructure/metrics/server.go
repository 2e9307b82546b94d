/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes /metrics (Prometheus exposition format) and /health on
// its own port, separate from the ingestion and query service's main
// API ports, so dashboards can reach it regardless of API auth.
type Server struct {
	server *http.Server
	log    *logrus.Logger
}

// NewServer builds a metrics server bound to ":"+port. It does not
// start listening until StartAsync is called.
func NewServer(port string, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: mux,
		},
		log: log,
	}
}

// StartAsync runs ListenAndServe on a background goroutine, logging
// (but not panicking on) any error other than a graceful shutdown.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts the server down, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
