package types

import "time"

// SearchType identifies which scorer produced a result.
type SearchType string

const (
	SearchTypeKeyword  SearchType = "keyword"
	SearchTypeSemantic SearchType = "semantic"
	SearchTypeHybrid   SearchType = "hybrid"
)

// Document is a single retrievable unit of text. Content is immutable;
// Metadata may carry advisory fusion diagnostics, attached to a copy only.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// WithMetadataCopy returns a shallow copy of the document with its own
// metadata map, so callers can decorate results without mutating the
// original collection.
func (d Document) WithMetadataCopy() Document {
	meta := make(map[string]any, len(d.Metadata)+8)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	d.Metadata = meta
	return d
}

// ScoredResult is a single result from a search call. Produced fresh per
// call, never persisted.
type ScoredResult struct {
	Document   Document   `json:"document"`
	Score      float64    `json:"score"`
	Rank       int        `json:"rank"`
	SearchType SearchType `json:"search_type"`
}

// Weights are per-component fusion weights.
type Weights struct {
	Semantic float64 `json:"semantic"`
	BM25     float64 `json:"bm25"`
}

// SearchQuery carries the query text and retrieval options.
type SearchQuery struct {
	Text    string         `json:"text"`
	TopK    int            `json:"top_k"`
	Filters map[string]any `json:"filters,omitempty"`
	Weights *Weights       `json:"weights,omitempty"`
}

// MatchesFilters reports whether the document satisfies every filter by
// metadata equality. A missing key or unequal value excludes the document.
func (q SearchQuery) MatchesFilters(doc Document) bool {
	for key, want := range q.Filters {
		got, ok := doc.Metadata[key]
		if !ok {
			return false
		}
		if !equalValues(got, want) {
			return false
		}
	}
	return true
}

// equalValues compares metadata values, treating all numeric types as
// equivalent so that JSON-decoded float64 filters match int metadata.
func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ConversationTurn is one completed user/assistant exchange. Appended only
// after a full round trip; ordering is insertion order.
type ConversationTurn struct {
	UserQuery          string         `json:"user_query"`
	AIResponse         string         `json:"ai_response"`
	RetrievedDocuments []Document     `json:"retrieved_documents,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// ContextWindow is the bounded bundle of query, history and retrieved text
// handed to the generation step. Built fresh per request, never mutated
// after construction.
type ContextWindow struct {
	Query               string         `json:"query"`
	Documents           []Document     `json:"documents"`
	ConversationHistory []string       `json:"conversation_history,omitempty"`
	MaxTokens           int            `json:"max_tokens"`
	TotalTokens         int            `json:"total_tokens"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}
