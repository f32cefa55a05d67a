package main

import (
	"context"
	"os"

	"github.com/contextforge/contextforge/internal/metrics"
	"github.com/contextforge/contextforge/rag"
	"github.com/contextforge/contextforge/rag/engine"
	"github.com/contextforge/contextforge/rag/history"
	"github.com/contextforge/contextforge/rag/supplier"
	"github.com/contextforge/contextforge/rag/tokens"
	"github.com/mudler/xlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sashabaranov/go-openai"
)

func main() {
	config := openai.DefaultConfig(openAIKey)
	if openAIBaseURL != "" {
		config.BaseURL = openAIBaseURL
	}
	openAIClient := openai.NewClientWithConfig(config)

	embedder := engine.NewOpenAIEmbedder(openAIClient, embeddingModel)
	generator := engine.NewOpenAIGenerator(openAIClient, llmModel)

	cfg := serviceConfig()

	var sessions history.SessionStore
	if historyDatabaseURL != "" {
		pg, err := history.NewPostgresHistory(context.Background(), historyDatabaseURL, cfg.HistoryMaxTurns, tokens.NewEstimator())
		if err != nil {
			xlog.Error("Failed to connect PostgreSQL history", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		sessions = pg
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	service := rag.NewService(embedder, generator, sessions, collector, cfg)

	var docStore *supplier.ChromemSupplier
	if chromemPath != "" {
		var err error
		docStore, err = supplier.NewChromemSupplier(chromemPath, chromemCollection, embedder)
		if err != nil {
			xlog.Error("Failed to open chromem document store", "error", err)
			os.Exit(1)
		}
		xlog.Info("Chromem document store ready", "path", chromemPath, "collection", chromemCollection, "documents", docStore.Count())
	}

	startAPI(listenAddress, service, docStore, registry)
}
