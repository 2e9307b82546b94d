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

// Command ingestion-service accepts ARGO NetCDF uploads over HTTP,
// stages them to the object store, and asynchronously parses, cleans,
// writes and indexes them via pkg/ingestion/orchestrator. It also
// hosts the stale-job sweeper and the hot-reloaded outlier bounds
// watcher.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/argoplatform/argonaut/internal/config"
	"github.com/argoplatform/argonaut/internal/database"
	"github.com/argoplatform/argonaut/pkg/ai/llm"
	"github.com/argoplatform/argonaut/pkg/argo/cleaner"
	"github.com/argoplatform/argonaut/pkg/infrastructure/metrics"
	"github.com/argoplatform/argonaut/pkg/ingestion/broker"
	"github.com/argoplatform/argonaut/pkg/ingestion/httpapi"
	"github.com/argoplatform/argonaut/pkg/ingestion/indexer"
	"github.com/argoplatform/argonaut/pkg/ingestion/objectstore"
	"github.com/argoplatform/argonaut/pkg/ingestion/orchestrator"
	"github.com/argoplatform/argonaut/pkg/ingestion/summarizer"
	"github.com/argoplatform/argonaut/pkg/storage/vector"
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
		log.Fatal("ingestion-service exited with error", zap.Error(err))
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

	store, err := objectstore.New(ctx, cfg.ObjectStore, log)
	if err != nil {
		return err
	}

	brk, err := broker.Connect(cfg.Broker, log)
	if err != nil {
		return err
	}
	defer brk.Close()

	bounds, err := cleaner.NewBoundsWatcher(cfg.OutlierBoundsFile, cfg.OutlierBounds, log)
	if err != nil {
		return err
	}
	if err := bounds.Start(ctx); err != nil {
		return err
	}
	defer bounds.Stop()

	logrusLog := logrus.New()
	embedSvc := vector.NewLocalEmbeddingService(0, logrusLog)
	idx := indexer.New(embedSvc, log)

	var summaryClient llm.Client
	if providerCfg, ok := cfg.LLMProviders[cfg.DefaultLLMProvider]; ok {
		client, err := llm.NewClient(providerCfg, logrusLog)
		if err != nil {
			log.Warn("failed to initialize the summarizer's LLM client, falling back to template summaries", zap.Error(err))
		} else {
			summaryClient = client
		}
	}
	sum := summarizer.New(summaryClient, cfg.LLMProviders[cfg.DefaultLLMProvider].Timeout, log)

	orch := orchestrator.New(cfg.Orchestrator, pools.WriteDB, store, brk, sum, idx, bounds, log)

	sub, err := brk.Subscribe(cfg.Broker.ConsumerName, orch.HandleJobMessage)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe() //nolint:errcheck

	go orch.RunSweeper(ctx)

	apiServer := httpapi.New(store, brk, cfg.Server, log)
	apiHTTP := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      apiServer.Router(pools.WriteDB),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := apiHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server stopped unexpectedly", zap.Error(err))
		}
	}()

	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, logrusLog)
	metricsServer.StartAsync()

	log.Info("ingestion-service started",
		zap.String("port", cfg.Server.Port),
		zap.String("metrics_port", cfg.Server.MetricsPort),
		zap.Int("orchestrator_workers", cfg.Orchestrator.Workers),
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
