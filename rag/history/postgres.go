package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/contextforge/contextforge/rag/interfaces"
	"github.com/contextforge/contextforge/rag/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/xlog"
)

// PostgresHistory is a SessionStore persisted in PostgreSQL, for
// deployments where conversation memory must survive restarts. The cap is
// enforced on every insert by deleting the oldest rows past it.
type PostgresHistory struct {
	pool     *pgxpool.Pool
	maxTurns int
	counter  interfaces.TokenCounter
}

func NewPostgresHistory(ctx context.Context, databaseURL string, maxTurns int, counter interfaces.TokenCounter) (*PostgresHistory, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required for PostgreSQL history")
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	h := &PostgresHistory{pool: pool, maxTurns: maxTurns, counter: counter}
	if err := h.setupSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}
	xlog.Info("PostgreSQL conversation history ready", "max_turns", maxTurns)
	return h, nil
}

func (h *PostgresHistory) setupSchema(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_query TEXT NOT NULL,
			ai_response TEXT NOT NULL,
			retrieved_documents INT NOT NULL DEFAULT 0,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}
	_, err = h.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS conversation_turns_session_idx ON conversation_turns (session_id, id)`)
	return err
}

func (h *PostgresHistory) Close() {
	h.pool.Close()
}

func (h *PostgresHistory) Create(_ context.Context) (string, error) {
	// Sessions are materialized lazily; an ID is enough.
	return uuid.NewString(), nil
}

func (h *PostgresHistory) Drop(ctx context.Context, sessionID string) error {
	return h.Clear(ctx, sessionID)
}

// AddTurn inserts the turn and trims the session to the cap, oldest first.
// Only the retrieved-document count is persisted, not the documents.
func (h *PostgresHistory) AddTurn(ctx context.Context, sessionID string, turn types.ConversationTurn) error {
	metadata, err := json.Marshal(turn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal turn metadata: %w", err)
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO conversation_turns (session_id, user_query, ai_response, retrieved_documents, metadata)
		 VALUES ($1, $2, $3, $4, $5)`,
		sessionID, turn.UserQuery, turn.AIResponse, len(turn.RetrievedDocuments), metadata)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	_, err = h.pool.Exec(ctx,
		`DELETE FROM conversation_turns
		 WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM conversation_turns WHERE session_id = $1 ORDER BY id DESC LIMIT $2
		 )`,
		sessionID, h.maxTurns)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

func (h *PostgresHistory) Recent(ctx context.Context, sessionID string, n int) ([]types.ConversationTurn, error) {
	if n <= 0 {
		n = h.maxTurns
	}
	rows, err := h.pool.Query(ctx,
		`SELECT user_query, ai_response, metadata, created_at
		 FROM conversation_turns WHERE session_id = $1 ORDER BY id DESC LIMIT $2`,
		sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	turns := []types.ConversationTurn{}
	for rows.Next() {
		var turn types.ConversationTurn
		var metadata []byte
		if err := rows.Scan(&turn.UserQuery, &turn.AIResponse, &metadata, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &turn.Metadata); err != nil {
				turn.Metadata = nil
			}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query, chronological for the caller.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (h *PostgresHistory) Stats(ctx context.Context, sessionID string) (Stats, error) {
	turns, err := h.Recent(ctx, sessionID, h.maxTurns)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Turns: len(turns)}
	if len(turns) == 0 {
		return stats, nil
	}
	total := 0
	for _, turn := range turns {
		total += h.counter.Count(turn.AIResponse)
	}
	stats.AverageResponseTokens = float64(total) / float64(len(turns))
	return stats, nil
}

func (h *PostgresHistory) Clear(ctx context.Context, sessionID string) error {
	_, err := h.pool.Exec(ctx, `DELETE FROM conversation_turns WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (h *PostgresHistory) Export(ctx context.Context, sessionID string) ([]byte, error) {
	rows, err := h.pool.Query(ctx,
		`SELECT user_query, ai_response, retrieved_documents, metadata, created_at
		 FROM conversation_turns WHERE session_id = $1 ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	exported := []exportedTurn{}
	for rows.Next() {
		var turn exportedTurn
		var metadata []byte
		if err := rows.Scan(&turn.UserQuery, &turn.AIResponse, &turn.RetrievedDocumentsCount, &metadata, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &turn.Metadata); err != nil {
				turn.Metadata = nil
			}
		}
		exported = append(exported, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(exported, "", "  ")
}
