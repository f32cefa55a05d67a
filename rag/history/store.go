package history

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/contextforge/contextforge/rag/interfaces"
	"github.com/contextforge/contextforge/rag/types"
)

// DefaultMaxTurns caps a session's retained history.
const DefaultMaxTurns = 10

// Stats summarizes a session's history.
type Stats struct {
	Turns                 int     `json:"turns"`
	AverageResponseTokens float64 `json:"average_response_tokens"`
}

// exportedTurn is the serialized form of a turn. Retrieved documents are
// exported as a count, not full content.
type exportedTurn struct {
	UserQuery               string         `json:"user_query"`
	AIResponse              string         `json:"ai_response"`
	Timestamp               time.Time      `json:"timestamp"`
	RetrievedDocumentsCount int            `json:"retrieved_documents_count"`
	Metadata                map[string]any `json:"metadata,omitempty"`
}

// Store is a bounded per-session memory of past turns. Updates are
// serialized by a mutex so FIFO eviction and export stay consistent when a
// session is shared across requests.
type Store struct {
	mu       sync.Mutex
	turns    []types.ConversationTurn
	maxTurns int
	counter  interfaces.TokenCounter
}

func NewStore(maxTurns int, counter interfaces.TokenCounter) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{maxTurns: maxTurns, counter: counter}
}

// AddTurn appends a completed exchange, then evicts the oldest turns past
// the cap.
func (s *Store) AddTurn(userQuery, aiResponse string, retrievedDocuments []types.Document, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, types.ConversationTurn{
		UserQuery:          userQuery,
		AIResponse:         aiResponse,
		RetrievedDocuments: retrievedDocuments,
		Timestamp:          time.Now(),
		Metadata:           metadata,
	})
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

// Recent returns up to n of the latest turns in chronological order. n <= 0
// returns all retained turns.
func (s *Store) Recent(n int) []types.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.turns
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]types.ConversationTurn, len(turns))
	copy(out, turns)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Stats reports the turn count and mean response token length.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Turns: len(s.turns)}
	if len(s.turns) == 0 {
		return stats
	}
	total := 0
	for _, turn := range s.turns {
		total += s.counter.Count(turn.AIResponse)
	}
	stats.AverageResponseTokens = float64(total) / float64(len(s.turns))
	return stats
}

// Clear empties the history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Export serializes all turns in chronological order.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exported := make([]exportedTurn, len(s.turns))
	for i, turn := range s.turns {
		exported[i] = exportedTurn{
			UserQuery:               turn.UserQuery,
			AIResponse:              turn.AIResponse,
			Timestamp:               turn.Timestamp,
			RetrievedDocumentsCount: len(turn.RetrievedDocuments),
			Metadata:                turn.Metadata,
		}
	}
	return json.MarshalIndent(exported, "", "  ")
}
