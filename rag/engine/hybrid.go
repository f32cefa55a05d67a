package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/contextforge/contextforge/rag/interfaces"
	"github.com/contextforge/contextforge/rag/types"
	"github.com/mudler/xlog"
	"golang.org/x/sync/errgroup"
)

// Default fusion weights, also the fallback when SetWeights receives a
// non-positive sum.
const (
	DefaultSemanticWeight = 0.7
	DefaultBM25Weight     = 0.3
)

// HybridSearcher fuses the semantic and keyword scorers into one ranked
// list via min-max-normalized weighted score combination. Both sides are
// delegated to, never reimplemented here.
type HybridSearcher struct {
	semantic interfaces.Searcher
	keyword  interfaces.Searcher

	mu             sync.RWMutex
	semanticWeight float64
	bm25Weight     float64
}

func NewHybridSearcher(semantic, keyword interfaces.Searcher) *HybridSearcher {
	return &HybridSearcher{
		semantic:       semantic,
		keyword:        keyword,
		semanticWeight: DefaultSemanticWeight,
		bm25Weight:     DefaultBM25Weight,
	}
}

func (h *HybridSearcher) Type() types.SearchType { return types.SearchTypeHybrid }

// SetWeights normalizes the weights so they sum to 1. A non-positive sum
// falls back to the defaults.
func (h *HybridSearcher) SetWeights(semanticWeight, bm25Weight float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.semanticWeight, h.bm25Weight = normalizeWeights(semanticWeight, bm25Weight)
}

// Weights returns the configured fusion weights.
func (h *HybridSearcher) Weights() (semantic, bm25 float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.semanticWeight, h.bm25Weight
}

func normalizeWeights(semanticWeight, bm25Weight float64) (float64, float64) {
	total := semanticWeight + bm25Weight
	if total > 0 {
		return semanticWeight / total, bm25Weight / total
	}
	return DefaultSemanticWeight, DefaultBM25Weight
}

// BuildIndex builds both underlying indexes.
func (h *HybridSearcher) BuildIndex(ctx context.Context, documents []types.Document) error {
	if err := h.semantic.BuildIndex(ctx, documents); err != nil {
		return err
	}
	return h.keyword.BuildIndex(ctx, documents)
}

// Search runs both scorers with the caller's TopK as each side's pool
// bound, then fuses the two result sets and re-truncates to TopK. The two
// sides run concurrently; fusion is the join point.
func (h *HybridSearcher) Search(ctx context.Context, query types.SearchQuery, documents []types.Document) ([]types.ScoredResult, error) {
	semanticWeight, bm25Weight := h.Weights()
	if query.Weights != nil {
		semanticWeight, bm25Weight = normalizeWeights(query.Weights.Semantic, query.Weights.BM25)
	}

	// The semantic side caches computed embeddings on the documents, so
	// its index is built before the fan-out; once embeddings exist, both
	// scorers only read the shared collection.
	if documents != nil {
		if err := h.semantic.BuildIndex(ctx, documents); err != nil {
			return nil, err
		}
	}

	var semanticResults, keywordResults []types.ScoredResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semanticResults, err = h.semantic.Search(gctx, query, documents)
		return err
	})
	g.Go(func() error {
		var err error
		keywordResults, err = h.keyword.Search(gctx, query, documents)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(semanticResults, keywordResults, semanticWeight, bm25Weight)
	xlog.Debug("Fused results",
		"semantic", len(semanticResults),
		"keyword", len(keywordResults),
		"fused", len(fused))

	if query.TopK > 0 && len(fused) > query.TopK {
		fused = fused[:query.TopK]
	}
	for i := range fused {
		fused[i].Rank = i
	}
	return fused, nil
}

type fusionEntry struct {
	document      types.Document
	semanticScore float64
	bm25Score     float64
	semanticRank  int
	bm25Rank      int
	hasSemantic   bool
	hasBM25       bool
	combined      float64
}

// fuse accumulates normalized weighted scores per document id. A document
// present in only one side's results receives zero contribution from the
// missing side. First-seen order breaks combined-score ties, keeping the
// output deterministic.
func fuse(semanticResults, keywordResults []types.ScoredResult, semanticWeight, bm25Weight float64) []types.ScoredResult {
	entries := map[string]*fusionEntry{}
	order := []string{}

	lookup := func(r types.ScoredResult) *fusionEntry {
		e, ok := entries[r.Document.ID]
		if !ok {
			e = &fusionEntry{document: r.Document}
			entries[r.Document.ID] = e
			order = append(order, r.Document.ID)
		}
		return e
	}

	min, max := scoreRange(semanticResults)
	for _, r := range semanticResults {
		e := lookup(r)
		e.semanticScore = r.Score
		e.semanticRank = r.Rank
		e.hasSemantic = true
		e.combined += normalizeScore(r.Score, min, max) * semanticWeight
	}

	min, max = scoreRange(keywordResults)
	for _, r := range keywordResults {
		e := lookup(r)
		e.bm25Score = r.Score
		e.bm25Rank = r.Rank
		e.hasBM25 = true
		e.combined += normalizeScore(r.Score, min, max) * bm25Weight
	}

	results := make([]types.ScoredResult, 0, len(order))
	for _, id := range order {
		e := entries[id]

		// Diagnostics go on a copy, never on the original document.
		doc := e.document.WithMetadataCopy()
		doc.Metadata["hybrid_semantic_score"] = e.semanticScore
		doc.Metadata["hybrid_bm25_score"] = e.bm25Score
		doc.Metadata["hybrid_semantic_weight"] = semanticWeight
		doc.Metadata["hybrid_bm25_weight"] = bm25Weight
		if e.hasSemantic {
			doc.Metadata["hybrid_semantic_rank"] = e.semanticRank
		}
		if e.hasBM25 {
			doc.Metadata["hybrid_bm25_rank"] = e.bm25Rank
		}

		results = append(results, types.ScoredResult{
			Document:   doc,
			Score:      e.combined,
			SearchType: types.SearchTypeHybrid,
		})
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	return results
}

func scoreRange(results []types.ScoredResult) (min, max float64) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max = results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

// normalizeScore min-max rescales into [0,1]. A degenerate range maps a
// cluster of identical scores to 0 instead of NaN.
func normalizeScore(score, min, max float64) float64 {
	span := max - min
	if span <= 0 {
		span = 1.0
	}
	return (score - min) / span
}
