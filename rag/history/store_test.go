package history_test

import (
	"context"
	"encoding/json"
	"fmt"

	. "github.com/contextforge/contextforge/rag/history"
	"github.com/contextforge/contextforge/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	var store *Store

	BeforeEach(func() {
		store = NewStore(10, wordCounter{})
	})

	It("should never exceed the cap and evict the oldest turn first", func() {
		for i := 0; i < 12; i++ {
			store.AddTurn(fmt.Sprintf("question %d", i), "answer", nil, nil)
		}
		Expect(store.Len()).To(Equal(10))

		turns := store.Recent(0)
		Expect(turns[0].UserQuery).To(Equal("question 2"))
		Expect(turns[9].UserQuery).To(Equal("question 11"))
	})

	It("should return the last n turns in chronological order", func() {
		for i := 0; i < 5; i++ {
			store.AddTurn(fmt.Sprintf("q%d", i), "a", nil, nil)
		}
		turns := store.Recent(2)
		Expect(turns).To(HaveLen(2))
		Expect(turns[0].UserQuery).To(Equal("q3"))
		Expect(turns[1].UserQuery).To(Equal("q4"))
	})

	It("should report turn count and mean response token length", func() {
		store.AddTurn("q1", "one two", nil, nil)
		store.AddTurn("q2", "one two three four", nil, nil)

		stats := store.Stats()
		Expect(stats.Turns).To(Equal(2))
		Expect(stats.AverageResponseTokens).To(BeNumerically("~", 3.0, 1e-9))
	})

	It("should report zero stats when empty", func() {
		stats := store.Stats()
		Expect(stats.Turns).To(Equal(0))
		Expect(stats.AverageResponseTokens).To(Equal(0.0))
	})

	It("should clear all turns", func() {
		store.AddTurn("q", "a", nil, nil)
		store.Clear()
		Expect(store.Len()).To(Equal(0))
	})

	It("should export document counts, not full documents", func() {
		docs := []types.Document{{ID: "d1", Content: "secret content"}, {ID: "d2", Content: "more"}}
		store.AddTurn("q", "a", docs, map[string]any{"search_type": "hybrid"})

		data, err := store.Export()
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).ToNot(ContainSubstring("secret content"))

		var exported []map[string]any
		Expect(json.Unmarshal(data, &exported)).To(Succeed())
		Expect(exported).To(HaveLen(1))
		Expect(exported[0]).To(HaveKeyWithValue("user_query", "q"))
		Expect(exported[0]).To(HaveKeyWithValue("retrieved_documents_count", float64(2)))
	})

	It("should export turns chronologically", func() {
		store.AddTurn("first", "a", nil, nil)
		store.AddTurn("second", "a", nil, nil)

		data, err := store.Export()
		Expect(err).ToNot(HaveOccurred())

		var exported []map[string]any
		Expect(json.Unmarshal(data, &exported)).To(Succeed())
		Expect(exported[0]["user_query"]).To(Equal("first"))
		Expect(exported[1]["user_query"]).To(Equal("second"))
	})
})

var _ = Describe("Manager", func() {
	var (
		manager *Manager
		ctx     context.Context
	)

	BeforeEach(func() {
		manager = NewManager(10, wordCounter{})
		ctx = context.Background()
	})

	It("should isolate sessions from each other", func() {
		a, err := manager.Create(ctx)
		Expect(err).ToNot(HaveOccurred())
		b, err := manager.Create(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(a).ToNot(Equal(b))

		Expect(manager.AddTurn(ctx, a, types.ConversationTurn{UserQuery: "only in a", AIResponse: "r"})).To(Succeed())

		turnsA, err := manager.Recent(ctx, a, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(turnsA).To(HaveLen(1))

		turnsB, err := manager.Recent(ctx, b, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(turnsB).To(BeEmpty())
	})

	It("should return ErrSessionNotFound for unknown sessions", func() {
		_, err := manager.Recent(ctx, "nope", 0)
		Expect(err).To(MatchError(ErrSessionNotFound))

		err = manager.AddTurn(ctx, "nope", types.ConversationTurn{})
		Expect(err).To(MatchError(ErrSessionNotFound))

		err = manager.Drop(ctx, "nope")
		Expect(err).To(MatchError(ErrSessionNotFound))
	})

	It("should drop sessions", func() {
		id, err := manager.Create(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(manager.Drop(ctx, id)).To(Succeed())
		_, err = manager.Recent(ctx, id, 0)
		Expect(err).To(MatchError(ErrSessionNotFound))
	})
})
