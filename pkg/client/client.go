package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/contextforge/contextforge/rag"
	"github.com/contextforge/contextforge/rag/history"
	"github.com/contextforge/contextforge/rag/types"
)

// Client is a client for the retrieval API.
type Client struct {
	BaseURL string
}

// NewClient creates a new retrieval API client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
	}
}

// Request mirrors the API's retrieval request body.
type Request struct {
	Query               string           `json:"query"`
	TopK                int              `json:"top_k,omitempty"`
	Type                string           `json:"type,omitempty"`
	Filters             map[string]any   `json:"filters,omitempty"`
	Weights             *types.Weights   `json:"weights,omitempty"`
	Documents           []types.Document `json:"documents,omitempty"`
	SessionID           string           `json:"session_id,omitempty"`
	IncludeConversation bool             `json:"include_conversation,omitempty"`
	MaxHistoryTurns     int              `json:"max_history_turns,omitempty"`
}

func (c *Client) post(path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := http.Post(c.BaseURL+path, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateSession creates a conversation session and returns its ID.
func (c *Client) CreateSession() (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := c.post("/api/sessions", map[string]string{}, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// DropSession clears and removes a session.
func (c *Client) DropSession(sessionID string) error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/sessions/%s", c.BaseURL, sessionID), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("failed to drop session: status %d", resp.StatusCode)
	}
	return nil
}

// SessionStats returns turn count and mean response token length.
func (c *Client) SessionStats(sessionID string) (history.Stats, error) {
	var stats history.Stats
	resp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/stats", c.BaseURL, sessionID))
	if err != nil {
		return stats, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("failed to get session stats: status %d", resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(&stats)
	return stats, err
}

// ExportSession returns the serialized conversation history.
func (c *Client) ExportSession(sessionID string) ([]byte, error) {
	resp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/export", c.BaseURL, sessionID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to export session: status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Search runs a ranked search and returns the scored results.
func (c *Client) Search(r Request) ([]types.ScoredResult, error) {
	var results []types.ScoredResult
	if err := c.post("/api/search", r, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Context builds a token-bounded context window and rendered prompt.
func (c *Client) Context(r Request) (*rag.RetrieveResult, error) {
	result := new(rag.RetrieveResult)
	if err := c.post("/api/context", r, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Chat performs the full retrieval + generation round trip.
func (c *Client) Chat(r Request) (*rag.ChatResult, error) {
	result := new(rag.ChatResult)
	if err := c.post("/api/chat", r, result); err != nil {
		return nil, err
	}
	return result, nil
}

// PutDocument stores a document in the server's document store.
func (c *Client) PutDocument(content string, metadata map[string]string) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	payload := map[string]any{"content": content, "metadata": metadata}
	if err := c.post("/api/documents", payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}
