package main

import (
	"os"
	"strconv"

	"github.com/contextforge/contextforge/rag"
)

var (
	listenAddress      = envOr("LISTEN_ADDRESS", ":8080")
	openAIKey          = os.Getenv("OPENAI_API_KEY")
	openAIBaseURL      = os.Getenv("OPENAI_BASE_URL")
	embeddingModel     = envOr("EMBEDDING_MODEL", "text-embedding-3-small")
	llmModel           = envOr("LLM_MODEL", "gpt-4o-mini")
	historyDatabaseURL = os.Getenv("HISTORY_DATABASE_URL")
	chromemPath        = os.Getenv("CHROMEM_PATH")
	chromemCollection  = envOr("CHROMEM_COLLECTION", "default")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func serviceConfig() rag.Config {
	cfg := rag.DefaultConfig()
	cfg.SimilarityThreshold = envFloat("SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.SemanticWeight = envFloat("HYBRID_SEMANTIC_WEIGHT", cfg.SemanticWeight)
	cfg.BM25Weight = envFloat("HYBRID_BM25_WEIGHT", cfg.BM25Weight)
	cfg.HistoryMaxTurns = envInt("HISTORY_MAX_TURNS", cfg.HistoryMaxTurns)
	cfg.Window.MaxTokens = envInt("MAX_CONTEXT_TOKENS", cfg.Window.MaxTokens)
	cfg.Window.ResponseReserve = envInt("RESPONSE_RESERVE_TOKENS", cfg.Window.ResponseReserve)
	cfg.Window.SystemReserve = envInt("SYSTEM_RESERVE_TOKENS", cfg.Window.SystemReserve)
	return cfg
}
