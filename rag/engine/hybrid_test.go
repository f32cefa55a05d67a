package engine_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/contextforge/contextforge/rag/engine"
	"github.com/contextforge/contextforge/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HybridSearcher", func() {
	var (
		ctx      context.Context
		semantic *stubSearcher
		keyword  *stubSearcher
		hybrid   *HybridSearcher
	)

	BeforeEach(func() {
		ctx = context.Background()
		semantic = &stubSearcher{searchType: types.SearchTypeSemantic}
		keyword = &stubSearcher{searchType: types.SearchTypeKeyword}
		hybrid = NewHybridSearcher(semantic, keyword)
	})

	Describe("SetWeights", func() {
		It("should normalize weights to sum to 1", func() {
			hybrid.SetWeights(2, 2)
			sem, bm := hybrid.Weights()
			Expect(sem).To(BeNumerically("~", 0.5, 1e-9))
			Expect(bm).To(BeNumerically("~", 0.5, 1e-9))
			Expect(sem + bm).To(BeNumerically("~", 1.0, 1e-9))
		})

		It("should fall back to 0.7/0.3 when the sum is not positive", func() {
			hybrid.SetWeights(0, 0)
			sem, bm := hybrid.Weights()
			Expect(sem).To(BeNumerically("~", 0.7, 1e-9))
			Expect(bm).To(BeNumerically("~", 0.3, 1e-9))
		})
	})

	Describe("Search", func() {
		It("should combine normalized weighted scores per document id", func() {
			semantic.results = []types.ScoredResult{
				scored("a", 0.9, 0, types.SearchTypeSemantic),
				scored("b", 0.1, 1, types.SearchTypeSemantic),
			}
			keyword.results = []types.ScoredResult{
				scored("c", 5.0, 0, types.SearchTypeKeyword),
				scored("a", 1.0, 1, types.SearchTypeKeyword),
			}

			results, err := hybrid.Search(ctx, types.SearchQuery{Text: "q", TopK: 10}, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(3))

			// a: semantic normalized to 1.0, bm25 normalized to 0.0.
			Expect(results[0].Document.ID).To(Equal("a"))
			Expect(results[0].Score).To(BeNumerically("~", 0.7, 1e-9))
			Expect(results[0].SearchType).To(Equal(types.SearchTypeHybrid))

			Expect(results[1].Document.ID).To(Equal("c"))
			Expect(results[1].Score).To(BeNumerically("~", 0.3, 1e-9))

			Expect(results[2].Document.ID).To(Equal("b"))
			Expect(results[2].Score).To(BeNumerically("~", 0.0, 1e-9))

			for i, r := range results {
				Expect(r.Rank).To(Equal(i))
			}
		})

		It("should emit each id at most once, drawn from the union of both sides", func() {
			semantic.results = []types.ScoredResult{
				scored("a", 0.9, 0, types.SearchTypeSemantic),
				scored("b", 0.2, 1, types.SearchTypeSemantic),
			}
			keyword.results = []types.ScoredResult{
				scored("b", 3.0, 0, types.SearchTypeKeyword),
				scored("c", 1.0, 1, types.SearchTypeKeyword),
			}

			results, err := hybrid.Search(ctx, types.SearchQuery{Text: "q", TopK: 10}, nil)
			Expect(err).ToNot(HaveOccurred())

			seen := map[string]bool{}
			for _, r := range results {
				Expect(seen[r.Document.ID]).To(BeFalse(), "no id may appear twice")
				seen[r.Document.ID] = true
				Expect([]string{"a", "b", "c"}).To(ContainElement(r.Document.ID))
			}
			Expect(seen).To(HaveLen(3))
		})

		It("should attach fusion diagnostics to a metadata copy", func() {
			original := map[string]any{"source": "wiki"}
			semantic.results = []types.ScoredResult{
				{Document: types.Document{ID: "a", Content: "a", Metadata: original}, Score: 0.9, Rank: 0},
				scored("b", 0.1, 1, types.SearchTypeSemantic),
			}
			keyword.results = []types.ScoredResult{
				{Document: types.Document{ID: "a", Content: "a", Metadata: original}, Score: 2.0, Rank: 0},
			}

			results, err := hybrid.Search(ctx, types.SearchQuery{Text: "q", TopK: 10}, nil)
			Expect(err).ToNot(HaveOccurred())

			top := results[0]
			Expect(top.Document.ID).To(Equal("a"))
			Expect(top.Document.Metadata).To(HaveKeyWithValue("hybrid_semantic_score", 0.9))
			Expect(top.Document.Metadata).To(HaveKeyWithValue("hybrid_bm25_score", 2.0))
			Expect(top.Document.Metadata).To(HaveKeyWithValue("hybrid_semantic_rank", 0))
			Expect(top.Document.Metadata).To(HaveKeyWithValue("hybrid_bm25_rank", 0))
			Expect(top.Document.Metadata).To(HaveKey("hybrid_semantic_weight"))
			Expect(top.Document.Metadata).To(HaveKeyWithValue("source", "wiki"))

			Expect(original).ToNot(HaveKey("hybrid_semantic_score"), "original metadata must not be mutated")
		})

		It("should map a degenerate cluster of identical scores to zero, not NaN", func() {
			semantic.results = []types.ScoredResult{
				scored("a", 0.5, 0, types.SearchTypeSemantic),
				scored("b", 0.5, 1, types.SearchTypeSemantic),
			}

			results, err := hybrid.Search(ctx, types.SearchQuery{Text: "q", TopK: 10}, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, r := range results {
				Expect(r.Score).To(Equal(0.0))
			}
		})

		It("should return results from one side when the other is empty", func() {
			keyword.results = []types.ScoredResult{
				scored("k1", 2.0, 0, types.SearchTypeKeyword),
				scored("k2", 1.0, 1, types.SearchTypeKeyword),
			}

			results, err := hybrid.Search(ctx, types.SearchQuery{Text: "q", TopK: 10}, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Document.ID).To(Equal("k1"))
		})

		It("should return an empty result when both sides are empty", func() {
			results, err := hybrid.Search(ctx, types.SearchQuery{Text: "q", TopK: 10}, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("should truncate the fused list to top_k", func() {
			semantic.results = []types.ScoredResult{
				scored("a", 0.9, 0, types.SearchTypeSemantic),
				scored("b", 0.5, 1, types.SearchTypeSemantic),
				scored("c", 0.1, 2, types.SearchTypeSemantic),
			}

			results, err := hybrid.Search(ctx, types.SearchQuery{Text: "q", TopK: 2}, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("should propagate scorer failures", func() {
			keyword.err = errors.New("keyword side broke")
			_, err := hybrid.Search(ctx, types.SearchQuery{Text: "q", TopK: 10}, nil)
			Expect(err).To(HaveOccurred())
		})

		It("should honor per-query weight overrides", func() {
			semantic.results = []types.ScoredResult{
				scored("a", 0.9, 0, types.SearchTypeSemantic),
				scored("b", 0.1, 1, types.SearchTypeSemantic),
			}
			keyword.results = []types.ScoredResult{
				scored("c", 5.0, 0, types.SearchTypeKeyword),
				scored("a", 1.0, 1, types.SearchTypeKeyword),
			}

			query := types.SearchQuery{Text: "q", TopK: 10, Weights: &types.Weights{Semantic: 0, BM25: 1}}
			results, err := hybrid.Search(ctx, query, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(results[0].Document.ID).To(Equal("c"))
			Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-9))
		})

		It("should embed the collection before fanning out to both scorers", func() {
			embedder := &fakeEmbedder{
				vectors: map[string][]float32{
					"vector search ranks by similarity": {1, 0},
					"keyword search ranks by terms":     {0, 1},
				},
				queryVector: []float32{1, 0},
			}
			fused := NewHybridSearcher(NewSemanticSearcher(embedder, 0.5), NewBM25Searcher())

			docs := make([]types.Document, 0, 200)
			for i := 0; i < 100; i++ {
				docs = append(docs,
					types.Document{ID: fmt.Sprintf("v%d", i), Content: "vector search ranks by similarity"},
					types.Document{ID: fmt.Sprintf("k%d", i), Content: "keyword search ranks by terms"},
				)
			}

			results, err := fused.Search(ctx, types.SearchQuery{Text: "vector search", TopK: 10}, docs)
			Expect(err).ToNot(HaveOccurred())
			Expect(results).ToNot(BeEmpty())
			for _, doc := range docs {
				Expect(doc.Embedding).ToNot(BeEmpty())
			}
		})

		It("should surface a document embedding fault before fanning out", func() {
			embedder := &fakeEmbedder{textErr: errors.New("provider down")}
			fused := NewHybridSearcher(NewSemanticSearcher(embedder, 0.5), NewBM25Searcher())

			docs := []types.Document{{ID: "d", Content: "no embedding yet"}}
			_, err := fused.Search(ctx, types.SearchQuery{Text: "q", TopK: 5}, docs)

			var buildErr *types.IndexBuildError
			Expect(errors.As(err, &buildErr)).To(BeTrue())
		})
	})
})
