package supplier

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/contextforge/contextforge/rag/interfaces"
	"github.com/contextforge/contextforge/rag/types"
	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
)

// ChromemSupplier backs the per-request document collection with a
// persistent chromem-go store. The scoring engine never touches the store
// directly: the supplier exports stored content and embeddings into plain
// documents, so embeddings are reused instead of recomputed.
//
// Document IDs are sequential integers assigned by Put, the scheme Export
// relies on to enumerate the collection. The mutex serializes ID minting
// with the insert, so concurrent HTTP handlers cannot mint the same ID or
// leave gaps in the sequence.
type ChromemSupplier struct {
	db        *chromem.DB
	embedding chromem.EmbeddingFunc

	mu         sync.Mutex
	collection *chromem.Collection
	index      int
}

func NewChromemSupplier(path, collection string, embedder interfaces.Embedder) (*ChromemSupplier, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem store: %w", err)
	}

	embeddingFunc := chromem.EmbeddingFunc(
		func(ctx context.Context, text string) ([]float32, error) {
			return embedder.EmbedText(ctx, text)
		},
	)

	c, err := db.GetOrCreateCollection(collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	s := &ChromemSupplier{db: db, collection: c, embedding: embeddingFunc, index: 1}
	if count := c.Count(); count > 0 {
		s.index = count + 1
	}
	return s, nil
}

// Count returns the number of stored documents.
func (s *ChromemSupplier) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Count()
}

// Put stores a document, embedding it through the collection's embedding
// function.
func (s *ChromemSupplier) Put(ctx context.Context, content string, metadata map[string]string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("empty content")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprint(s.index)
	err := s.collection.AddDocuments(ctx, []chromem.Document{
		{
			ID:       id,
			Content:  content,
			Metadata: metadata,
		},
	}, runtime.NumCPU())
	if err != nil {
		return "", err
	}
	s.index++
	return id, nil
}

// Export loads the whole collection as an in-memory document slice, with
// the stored embeddings attached.
func (s *ChromemSupplier) Export(ctx context.Context) ([]types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.collection.Count()
	documents := make([]types.Document, 0, count)
	for i := 1; i <= count; i++ {
		doc, err := s.collection.GetByID(ctx, fmt.Sprint(i))
		if err != nil {
			return nil, fmt.Errorf("error getting document %d: %v", i, err)
		}

		metadata := make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		documents = append(documents, types.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  metadata,
			Embedding: doc.Embedding,
		})
	}
	xlog.Debug("Exported chromem collection", "documents", len(documents))
	return documents, nil
}

// Reset deletes and recreates the collection.
func (s *ChromemSupplier) Reset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("error deleting collection: %v", err)
	}
	collection, err := s.db.GetOrCreateCollection(name, nil, s.embedding)
	if err != nil {
		return fmt.Errorf("error creating collection: %v", err)
	}
	s.collection = collection
	s.index = 1
	return nil
}
