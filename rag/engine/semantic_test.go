package engine_test

import (
	"context"
	"errors"

	. "github.com/contextforge/contextforge/rag/engine"
	"github.com/contextforge/contextforge/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CosineSimilarity", func() {
	It("should return 1 for identical vectors", func() {
		Expect(CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})).To(BeNumerically("~", 1.0, 1e-6))
	})

	It("should return 0 for orthogonal vectors", func() {
		Expect(CosineSimilarity([]float32{1, 0}, []float32{0, 1})).To(BeNumerically("~", 0.0, 1e-6))
	})

	It("should return 0 for mismatched lengths", func() {
		Expect(CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})).To(Equal(0.0))
	})

	It("should return 0 when either vector has zero magnitude", func() {
		Expect(CosineSimilarity([]float32{0, 0}, []float32{1, 0})).To(Equal(0.0))
	})
})

var _ = Describe("SemanticSearcher", func() {
	var (
		ctx      context.Context
		embedder *fakeEmbedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &fakeEmbedder{
			vectors:     map[string][]float32{},
			queryVector: []float32{1, 0},
		}
	})

	It("should drop results below the similarity threshold", func() {
		// cos(60°) = 0.5 against the query vector (1, 0).
		docs := []types.Document{{ID: "d1", Content: "halfway related", Embedding: []float32{0.5, 0.8660254}}}
		searcher := NewSemanticSearcher(embedder, 0.7)

		results, err := searcher.Search(ctx, types.SearchQuery{Text: "q", TopK: 5}, docs)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("should rank by similarity and keep results at the threshold", func() {
		docs := []types.Document{
			{ID: "far", Content: "far", Embedding: []float32{0.5, 0.8660254}},
			{ID: "near", Content: "near", Embedding: []float32{1, 0}},
		}
		searcher := NewSemanticSearcher(embedder, 0.7)

		results, err := searcher.Search(ctx, types.SearchQuery{Text: "q", TopK: 5}, docs)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Document.ID).To(Equal("near"))
		Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-6))
		Expect(results[0].Rank).To(Equal(0))
		Expect(results[0].SearchType).To(Equal(types.SearchTypeSemantic))
	})

	It("should embed only documents lacking an embedding", func() {
		embedder.vectors["needs embedding"] = []float32{1, 0}
		docs := []types.Document{
			{ID: "cached", Content: "cached", Embedding: []float32{1, 0}},
			{ID: "fresh", Content: "needs embedding"},
		}
		searcher := NewSemanticSearcher(embedder, 0.5)

		_, err := searcher.Search(ctx, types.SearchQuery{Text: "q", TopK: 5}, docs)
		Expect(err).ToNot(HaveOccurred())
		Expect(embedder.embedCalls).To(Equal(1))
		Expect(docs[1].Embedding).To(Equal([]float32{1, 0}), "embedding must be cached on the document")

		// A second pass embeds nothing.
		_, err = searcher.Search(ctx, types.SearchQuery{Text: "q", TopK: 5}, docs)
		Expect(err).ToNot(HaveOccurred())
		Expect(embedder.embedCalls).To(Equal(1))
	})

	It("should surface query embedding failures as EmbeddingError", func() {
		embedder.queryErr = errors.New("provider down")
		docs := []types.Document{{ID: "d1", Content: "d1", Embedding: []float32{1, 0}}}
		searcher := NewSemanticSearcher(embedder, 0.5)

		_, err := searcher.Search(ctx, types.SearchQuery{Text: "q", TopK: 5}, docs)
		Expect(err).To(HaveOccurred())
		var embErr *types.EmbeddingError
		Expect(errors.As(err, &embErr)).To(BeTrue())
		Expect(embErr.Stage).To(Equal("query"))
	})

	It("should surface document embedding failures as IndexBuildError", func() {
		embedder.textErr = errors.New("provider down")
		docs := []types.Document{{ID: "d1", Content: "no embedding yet"}}
		searcher := NewSemanticSearcher(embedder, 0.5)

		_, err := searcher.Search(ctx, types.SearchQuery{Text: "q", TopK: 5}, docs)
		Expect(err).To(HaveOccurred())
		var buildErr *types.IndexBuildError
		Expect(errors.As(err, &buildErr)).To(BeTrue())
	})

	It("should apply metadata filters", func() {
		docs := []types.Document{
			{ID: "d1", Content: "d1", Embedding: []float32{1, 0}, Metadata: map[string]any{"lang": "en"}},
			{ID: "d2", Content: "d2", Embedding: []float32{1, 0}, Metadata: map[string]any{"lang": "ja"}},
		}
		searcher := NewSemanticSearcher(embedder, 0.5)

		query := types.SearchQuery{Text: "q", TopK: 5, Filters: map[string]any{"lang": "en"}}
		results, err := searcher.Search(ctx, query, docs)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Document.ID).To(Equal("d1"))
	})

	It("should return empty results for an empty collection", func() {
		searcher := NewSemanticSearcher(embedder, 0.5)
		results, err := searcher.Search(ctx, types.SearchQuery{Text: "q", TopK: 5}, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(BeEmpty())
	})
})
