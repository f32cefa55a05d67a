package engine

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/contextforge/contextforge/rag/types"
	"github.com/mudler/xlog"
)

// BM25 Okapi parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Tokenize lower-cases text and extracts maximal alphanumeric-plus-underscore
// runs, the word-boundary tokenization shared by index and query sides.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// BM25Searcher ranks documents with the Okapi BM25 function over an
// in-memory tokenized corpus. Supplying documents to Search rebuilds the
// index first, so stale state is never scored against a new collection.
type BM25Searcher struct {
	mu        sync.RWMutex
	documents []types.Document
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

func NewBM25Searcher() *BM25Searcher {
	return &BM25Searcher{idf: map[string]float64{}}
}

func (s *BM25Searcher) Type() types.SearchType { return types.SearchTypeKeyword }

// BuildIndex tokenizes every document's content and precomputes term
// frequencies and inverse document frequencies.
func (s *BM25Searcher) BuildIndex(_ context.Context, documents []types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents = documents
	s.termFreqs = make([]map[string]int, len(documents))
	s.docLens = make([]int, len(documents))

	docFreq := map[string]int{}
	totalLen := 0
	for i, doc := range documents {
		tokens := Tokenize(doc.Content)
		freq := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freq[t]++
		}
		s.termFreqs[i] = freq
		s.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for t := range freq {
			docFreq[t]++
		}
	}

	s.avgDocLen = 0
	if len(documents) > 0 {
		s.avgDocLen = float64(totalLen) / float64(len(documents))
	}

	// Non-negative idf variant, so every matching term contributes a
	// positive score.
	n := float64(len(documents))
	s.idf = make(map[string]float64, len(docFreq))
	for t, df := range docFreq {
		s.idf[t] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
	}

	xlog.Debug("BM25 index built", "documents", len(documents), "terms", len(s.idf))
	return nil
}

// Search scores the corpus against the query, applies metadata filters,
// drops non-positive scores and returns the TopK results ranked 0..k-1.
// An empty corpus yields an empty result, not an error.
func (s *BM25Searcher) Search(ctx context.Context, query types.SearchQuery, documents []types.Document) ([]types.ScoredResult, error) {
	if documents != nil {
		if err := s.BuildIndex(ctx, documents); err != nil {
			return nil, &types.IndexBuildError{Engine: "bm25", Err: err}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.documents) == 0 {
		return []types.ScoredResult{}, nil
	}

	queryTokens := Tokenize(query.Text)
	results := make([]types.ScoredResult, 0, len(s.documents))
	for i, doc := range s.documents {
		if !query.MatchesFilters(doc) {
			continue
		}
		score := s.score(queryTokens, i)
		if score <= 0 {
			continue
		}
		results = append(results, types.ScoredResult{
			Document:   doc,
			Score:      score,
			Rank:       i,
			SearchType: types.SearchTypeKeyword,
		})
	}

	// Stable sort keeps original corpus order on ties.
	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if query.TopK > 0 && len(results) > query.TopK {
		results = results[:query.TopK]
	}
	for i := range results {
		results[i].Rank = i
	}
	return results, nil
}

func (s *BM25Searcher) score(queryTokens []string, doc int) float64 {
	dl := float64(s.docLens[doc])
	norm := bm25K1 * (1 - bm25B + bm25B*dl/math.Max(s.avgDocLen, 1e-9))

	score := 0.0
	for _, t := range queryTokens {
		tf := float64(s.termFreqs[doc][t])
		if tf == 0 {
			continue
		}
		score += s.idf[t] * tf * (bm25K1 + 1) / (tf + norm)
	}
	return score
}
