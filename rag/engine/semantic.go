package engine

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/contextforge/contextforge/rag/interfaces"
	"github.com/contextforge/contextforge/rag/types"
	"github.com/mudler/xlog"
)

// DefaultSimilarityThreshold filters out weakly related documents.
const DefaultSimilarityThreshold = 0.7

// SemanticSearcher ranks documents by cosine similarity between the query
// embedding and document embeddings. The embedding provider is injected at
// construction time; there is no lazy client initialization.
type SemanticSearcher struct {
	embedder  interfaces.Embedder
	threshold float64

	mu        sync.RWMutex
	documents []types.Document
}

func NewSemanticSearcher(embedder interfaces.Embedder, threshold float64) *SemanticSearcher {
	return &SemanticSearcher{embedder: embedder, threshold: threshold}
}

func (s *SemanticSearcher) Type() types.SearchType { return types.SearchTypeSemantic }

// BuildIndex requests embeddings for every document that lacks one and
// caches them on the documents. Idempotent: documents that already carry an
// embedding are skipped.
func (s *SemanticSearcher) BuildIndex(ctx context.Context, documents []types.Document) error {
	missing := []int{}
	for i := range documents {
		if len(documents[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, idx := range missing {
			texts[i] = documents[idx].Content
		}
		embeddings, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return &types.IndexBuildError{Engine: "semantic", Err: &types.EmbeddingError{Stage: "document", Err: err}}
		}
		for i, idx := range missing {
			documents[idx].Embedding = embeddings[i]
		}
		xlog.Debug("Embedded documents", "count", len(missing))
	}

	s.mu.Lock()
	s.documents = documents
	s.mu.Unlock()
	return nil
}

// Search embeds the query, computes cosine similarity per document, keeps
// only results at or above the similarity threshold, and returns the TopK
// ranked 0..k-1.
func (s *SemanticSearcher) Search(ctx context.Context, query types.SearchQuery, documents []types.Document) ([]types.ScoredResult, error) {
	if documents == nil {
		s.mu.RLock()
		documents = s.documents
		s.mu.RUnlock()
	}
	if len(documents) == 0 {
		return []types.ScoredResult{}, nil
	}

	if err := s.BuildIndex(ctx, documents); err != nil {
		return nil, err
	}

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query.Text)
	if err != nil {
		return nil, &types.EmbeddingError{Stage: "query", Err: err}
	}

	results := make([]types.ScoredResult, 0, len(documents))
	for i, doc := range documents {
		if !query.MatchesFilters(doc) {
			continue
		}
		similarity := CosineSimilarity(queryEmbedding, doc.Embedding)
		if similarity < s.threshold {
			continue
		}
		results = append(results, types.ScoredResult{
			Document:   doc,
			Score:      similarity,
			Rank:       i,
			SearchType: types.SearchTypeSemantic,
		})
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if query.TopK > 0 && len(results) > query.TopK {
		results = results[:query.TopK]
	}
	for i := range results {
		results[i].Rank = i
	}
	return results, nil
}

// CosineSimilarity returns dot(a,b)/(|a|*|b|), defined as 0 when the
// vectors differ in length or either has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
