package interfaces

import (
	"context"

	"github.com/contextforge/contextforge/rag/types"
)

// Searcher defines the interface for the three scorer variants. The hybrid
// searcher composes the other two by delegation.
type Searcher interface {
	BuildIndex(ctx context.Context, documents []types.Document) error
	Search(ctx context.Context, query types.SearchQuery, documents []types.Document) ([]types.ScoredResult, error)
	Type() types.SearchType
}

// Embedder turns text into vectors. Query-mode embedding may differ from
// document-mode, per the provider's contract.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Generator produces text from a rendered prompt. Only invoked by the
// caller after the context window has been assembled.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TokenCounter approximates how many generation-model tokens a string
// consumes. Implementations never fail and always return >= 0.
type TokenCounter interface {
	Count(text string) int
}
