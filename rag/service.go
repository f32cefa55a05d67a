package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/contextforge/contextforge/internal/metrics"
	"github.com/contextforge/contextforge/rag/contextwindow"
	"github.com/contextforge/contextforge/rag/engine"
	"github.com/contextforge/contextforge/rag/history"
	"github.com/contextforge/contextforge/rag/interfaces"
	"github.com/contextforge/contextforge/rag/tokens"
	"github.com/contextforge/contextforge/rag/types"
	"github.com/mudler/xlog"
)

// Config tunes the retrieval pipeline.
type Config struct {
	SimilarityThreshold float64
	SemanticWeight      float64
	BM25Weight          float64
	HistoryMaxTurns     int
	Window              contextwindow.Config
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: engine.DefaultSimilarityThreshold,
		SemanticWeight:      engine.DefaultSemanticWeight,
		BM25Weight:          engine.DefaultBM25Weight,
		HistoryMaxTurns:     history.DefaultMaxTurns,
		Window:              contextwindow.DefaultConfig(),
	}
}

// Service wires the scorer triad, the context assembler and the session
// store into one request pipeline: score, fuse, assemble, render, and (for
// Chat) generate and record the turn. The service itself is stateless with
// respect to conversations; history lives behind the SessionStore handle.
type Service struct {
	keyword   *engine.BM25Searcher
	semantic  *engine.SemanticSearcher
	hybrid    *engine.HybridSearcher
	assembler *contextwindow.Assembler
	estimator interfaces.TokenCounter
	generator interfaces.Generator
	sessions  history.SessionStore
	collector *metrics.Collector
	cfg       Config
}

// NewService assembles the pipeline. A nil sessions store falls back to
// the in-memory per-session manager; collector and generator may be nil.
func NewService(embedder interfaces.Embedder, generator interfaces.Generator, sessions history.SessionStore, collector *metrics.Collector, cfg Config) *Service {
	estimator := tokens.NewEstimator()

	keyword := engine.NewBM25Searcher()
	semantic := engine.NewSemanticSearcher(embedder, cfg.SimilarityThreshold)
	hybrid := engine.NewHybridSearcher(semantic, keyword)
	hybrid.SetWeights(cfg.SemanticWeight, cfg.BM25Weight)

	if sessions == nil {
		sessions = history.NewManager(cfg.HistoryMaxTurns, estimator)
	}

	return &Service{
		keyword:   keyword,
		semantic:  semantic,
		hybrid:    hybrid,
		assembler: contextwindow.NewAssembler(cfg.Window, estimator),
		estimator: estimator,
		generator: generator,
		sessions:  sessions,
		collector: collector,
		cfg:       cfg,
	}
}

// Sessions exposes the session store handle.
func (s *Service) Sessions() history.SessionStore { return s.sessions }

// SetWeights adjusts the hybrid fusion weights.
func (s *Service) SetWeights(semanticWeight, bm25Weight float64) {
	s.hybrid.SetWeights(semanticWeight, bm25Weight)
}

// Searcher returns the scorer for a search type. The variant set is
// closed: keyword, semantic, hybrid.
func (s *Service) Searcher(searchType types.SearchType) (interfaces.Searcher, error) {
	switch searchType {
	case types.SearchTypeKeyword:
		return s.keyword, nil
	case types.SearchTypeSemantic:
		return s.semantic, nil
	case types.SearchTypeHybrid, "":
		return s.hybrid, nil
	}
	return nil, fmt.Errorf("unknown search type %q", searchType)
}

// Search runs one scorer over the supplied collection.
func (s *Service) Search(ctx context.Context, searchType types.SearchType, query types.SearchQuery, documents []types.Document) ([]types.ScoredResult, error) {
	searcher, err := s.Searcher(searchType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results, err := searcher.Search(ctx, query, documents)
	s.collector.ObserveSearch(string(searcher.Type()), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	xlog.Debug("Search complete", "type", searcher.Type(), "query", query.Text, "results", len(results))
	return results, nil
}

// RetrieveOptions select the scorer and the history rendered into the
// window.
type RetrieveOptions struct {
	SessionID           string
	SearchType          types.SearchType
	IncludeConversation bool
	MaxHistoryTurns     int
}

// RetrieveResult bundles everything the caller needs to invoke a
// generation provider.
type RetrieveResult struct {
	Results []types.ScoredResult `json:"results"`
	Window  types.ContextWindow  `json:"window"`
	Prompt  string               `json:"prompt"`
}

// Retrieve scores the collection, assembles a token-bounded context window
// from the ranked documents and the session's recent turns, and renders
// the prompt.
func (s *Service) Retrieve(ctx context.Context, query types.SearchQuery, documents []types.Document, opts RetrieveOptions) (*RetrieveResult, error) {
	results, err := s.Search(ctx, opts.SearchType, query, documents)
	if err != nil {
		return nil, err
	}

	var turns []types.ConversationTurn
	if opts.IncludeConversation && opts.SessionID != "" {
		turns, err = s.sessions.Recent(ctx, opts.SessionID, opts.MaxHistoryTurns)
		if err != nil {
			return nil, err
		}
	}

	ranked := make([]types.Document, len(results))
	for i, r := range results {
		ranked[i] = r.Document
	}

	window := s.assembler.Create(query.Text, ranked, turns, opts.IncludeConversation, opts.MaxHistoryTurns)
	s.collector.ObserveContextWindow(window.TotalTokens)

	return &RetrieveResult{
		Results: results,
		Window:  window,
		Prompt:  contextwindow.RenderPrompt(window),
	}, nil
}

// ChatResult is a retrieval result plus the generated answer.
type ChatResult struct {
	RetrieveResult
	Answer string `json:"answer"`
}

// Chat performs the full round trip: retrieve, render, generate, and
// append the completed turn to the session. The turn is recorded only
// after generation succeeds.
func (s *Service) Chat(ctx context.Context, query types.SearchQuery, documents []types.Document, opts RetrieveOptions) (*ChatResult, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("no generation provider configured")
	}

	retrieved, err := s.Retrieve(ctx, query, documents, opts)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, retrieved.Prompt)
	s.collector.ObserveGenerate(err)
	if err != nil {
		return nil, err
	}

	if opts.SessionID != "" {
		turn := types.ConversationTurn{
			UserQuery:          query.Text,
			AIResponse:         answer,
			RetrievedDocuments: retrieved.Window.Documents,
			Timestamp:          time.Now(),
			Metadata: map[string]any{
				"search_type": string(opts.SearchType),
			},
		}
		if err := s.sessions.AddTurn(ctx, opts.SessionID, turn); err != nil {
			return nil, err
		}
	}

	return &ChatResult{RetrieveResult: *retrieved, Answer: answer}, nil
}
