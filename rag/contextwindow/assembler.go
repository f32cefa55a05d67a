package contextwindow

import (
	"strings"
	"time"

	"github.com/contextforge/contextforge/rag/interfaces"
	"github.com/contextforge/contextforge/rag/types"
	"github.com/mudler/xlog"
)

// Config bounds the assembled window.
type Config struct {
	// MaxTokens is the total budget for query + history + documents.
	MaxTokens int
	// ResponseReserve is held back for the eventual model response.
	ResponseReserve int
	// SystemReserve is held back for the system preamble.
	SystemReserve int
	// MinDocumentTokens is the smallest budget worth filling with a
	// truncated document.
	MinDocumentTokens int
	// SentenceTerminator ends a sentence for truncation cleanup.
	SentenceTerminator rune
}

func DefaultConfig() Config {
	return Config{
		MaxTokens:          4000,
		ResponseReserve:    1000,
		SystemReserve:      500,
		MinDocumentTokens:  100,
		SentenceTerminator: '.',
	}
}

// Assembler packs conversation history and ranked documents into a fixed
// token budget. It is stateless: history is an argument, not owned state.
type Assembler struct {
	cfg     Config
	counter interfaces.TokenCounter
}

func NewAssembler(cfg Config, counter interfaces.TokenCounter) *Assembler {
	if cfg.SentenceTerminator == 0 {
		cfg.SentenceTerminator = '.'
	}
	return &Assembler{cfg: cfg, counter: counter}
}

// Create builds a context window from the query, the ranked documents and
// the recent conversation turns. Documents are added greedily in rank
// order; when the next document does not fit and more than
// MinDocumentTokens remain, a single truncated copy is appended and
// packing stops. TotalTokens never exceeds MaxTokens.
func (a *Assembler) Create(query string, documents []types.Document, history []types.ConversationTurn, includeConversation bool, maxHistoryTurns int) types.ContextWindow {
	window := types.ContextWindow{
		Query:     query,
		Documents: []types.Document{},
		MaxTokens: a.cfg.MaxTokens,
		CreatedAt: time.Now(),
	}

	if includeConversation && len(history) > 0 {
		recent := history
		if maxHistoryTurns > 0 && len(recent) > maxHistoryTurns {
			recent = recent[len(recent)-maxHistoryTurns:]
		}
		for _, turn := range recent {
			window.ConversationHistory = append(window.ConversationHistory, "User: "+turn.UserQuery)
			window.ConversationHistory = append(window.ConversationHistory, "Assistant: "+turn.AIResponse)
		}
	}

	queryTokens := a.counter.Count(query)
	historyTokens := 0
	for _, line := range window.ConversationHistory {
		historyTokens += a.counter.Count(line)
	}

	available := a.cfg.MaxTokens - queryTokens - historyTokens - a.cfg.ResponseReserve - a.cfg.SystemReserve

	used := 0
	truncated := 0
	for _, doc := range documents {
		docTokens := a.counter.Count(doc.Content)
		if used+docTokens <= available {
			window.Documents = append(window.Documents, doc)
			used += docTokens
			continue
		}

		if remaining := available - used; remaining > a.cfg.MinDocumentTokens {
			short := doc.WithMetadataCopy()
			short.ID = doc.ID + "_truncated"
			short.Content = a.TruncateToTokens(doc.Content, remaining)
			short.Metadata["truncated"] = true
			window.Documents = append(window.Documents, short)
			truncated++
		}
		break
	}

	window.TotalTokens = queryTokens + historyTokens + used
	window.Metadata = map[string]any{
		"query_tokens":        queryTokens,
		"history_tokens":      historyTokens,
		"documents_tokens":    used,
		"documents_count":     len(window.Documents),
		"truncated_documents": truncated,
	}

	xlog.Debug("Context window assembled",
		"documents", len(window.Documents),
		"total_tokens", window.TotalTokens,
		"max_tokens", window.MaxTokens)
	return window
}

// TruncateToTokens returns text unchanged when it fits the limit.
// Otherwise it binary-searches the largest rune prefix whose token count
// stays within the limit, then drops a trailing partial sentence when at
// least one complete sentence remains.
func (a *Assembler) TruncateToTokens(text string, limit int) string {
	if a.counter.Count(text) <= limit {
		return text
	}

	runes := []rune(text)
	left, right := 0, len(runes)
	result := ""
	for left < right {
		mid := (left + right + 1) / 2
		candidate := string(runes[:mid])
		if a.counter.Count(candidate) <= limit {
			result = candidate
			left = mid
		} else {
			right = mid - 1
		}
	}

	terminator := string(a.cfg.SentenceTerminator)
	sentences := strings.Split(result, terminator)
	if len(sentences) > 1 {
		result = strings.Join(sentences[:len(sentences)-1], terminator) + terminator
	}
	return result
}
