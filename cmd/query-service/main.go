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

// Command query-service answers natural-language questions over the
// ingested ARGO float data: it wires the LLM providers, the SQL
// validator, the executor and the conversation context store into
// pkg/query/nlpipeline, and serves the result over pkg/query/httpapi.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
	"github.com/argoplatform/argonaut/internal/database"
	"github.com/argoplatform/argonaut/pkg/ai/llm"
	"github.com/argoplatform/argonaut/pkg/infrastructure/metrics"
	"github.com/argoplatform/argonaut/pkg/query/contextstore"
	"github.com/argoplatform/argonaut/pkg/query/executor"
	"github.com/argoplatform/argonaut/pkg/query/geography"
	"github.com/argoplatform/argonaut/pkg/query/httpapi"
	"github.com/argoplatform/argonaut/pkg/query/nlpipeline"
	"github.com/argoplatform/argonaut/pkg/query/sqlvalidator"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the service config file")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(*configPath, log); err != nil {
		log.Fatal("query-service exited with error", zap.Error(err))
	}
}

func run(configPath string, log *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pools, err := database.Open(ctx, cfg.WriteDatabase, cfg.ReadOnlyDatabase)
	if err != nil {
		return err
	}
	defer pools.Close()

	validator, err := sqlvalidator.New(ctx, nlpipeline.DefaultWhitelist, log)
	if err != nil {
		return err
	}

	// nlpipeline reads are row-capped SELECTs against the read-only
	// role; the executor never touches the write pool.
	exec := executor.New(pools.ReadOnlyDB, cfg.Query, log)

	geo, err := geography.Load(cfg.GeographyFile)
	if err != nil {
		return err
	}

	ctxStore := contextstore.New(cfg.ContextStore, log)
	defer ctxStore.Close() //nolint:errcheck

	clients := buildLLMClients(cfg.LLMProviders, log)
	if _, ok := clients[cfg.DefaultLLMProvider]; !ok {
		return fmt.Errorf("default_llm_provider %q has no matching, successfully initialized entry in llm_providers", cfg.DefaultLLMProvider)
	}

	pipeline := nlpipeline.New(clients, cfg.DefaultLLMProvider, validator, exec, geo, ctxStore, cfg.Query, log)
	apiServer := httpapi.New(pipeline, log)

	apiHTTP := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := apiHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server stopped unexpectedly", zap.Error(err))
		}
	}()

	logrusLog := logrus.New()
	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, logrusLog)
	metricsServer.StartAsync()

	log.Info("query-service started",
		zap.String("port", cfg.Server.Port),
		zap.String("metrics_port", cfg.Server.MetricsPort),
		zap.String("default_llm_provider", cfg.DefaultLLMProvider),
		zap.Int("llm_providers_ready", len(clients)),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, draining in-flight requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiHTTP.Shutdown(shutdownCtx); err != nil {
		log.Warn("api server did not shut down cleanly", zap.Error(err))
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		log.Warn("metrics server did not shut down cleanly", zap.Error(err))
	}
	return nil
}

// buildLLMClients dials one llm.Client per configured provider so
// nlpipeline can route a request's optional "provider" field to any of
// them, falling back to DefaultLLMProvider when unset. A provider that
// fails to initialize is logged and skipped rather than failing
// startup, so one misconfigured backend doesn't take the whole service
// down.
func buildLLMClients(providers map[string]config.LLMConfig, zapLog *zap.Logger) map[string]llm.Client {
	logrusLog := logrus.New()
	clients := make(map[string]llm.Client, len(providers))
	for name, providerCfg := range providers {
		client, err := llm.NewClient(providerCfg, logrusLog)
		if err != nil {
			zapLog.Error("failed to initialize LLM provider, it will be unavailable", zap.String("provider", name), zap.Error(err))
			continue
		}
		clients[name] = client
	}
	return clients
}
