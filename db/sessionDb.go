package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"autodidact/models"

	_ "github.com/lib/pq"
)

type SessionRepository interface {
	CreateSession(ctx context.Context, sessionID, projectID, nodeID string) error
	SaveState(ctx context.Context, st *models.SessionState) error
	GetState(ctx context.Context, sessionID string) (*models.SessionState, error)
	CompleteSession(ctx context.Context, sessionID string, finalScore, durationMinutes float64) error
	AppendTranscript(ctx context.Context, sessionID string, turnIdx int, role, content string) error
	GetTranscript(ctx context.Context, sessionID string) ([]models.Message, error)
	Close() error
}

type PostgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(databaseURL string) (*PostgresSessionRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresSessionRepository{db: db}, nil
}

func (r *PostgresSessionRepository) CreateSession(ctx context.Context, sessionID, projectID, nodeID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session (id, project_id, node_id) VALUES ($1, $2, $3)`,
		sessionID, projectID, nodeID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// SaveState stores the full state document; it is overwritten on every turn.
func (r *PostgresSessionRepository) SaveState(ctx context.Context, st *models.SessionState) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE session SET state_json = $1 WHERE id = $2`, stateJSON, st.SessionID)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", st.SessionID)
	}
	return nil
}

// GetState returns (nil, nil) when the session does not exist.
func (r *PostgresSessionRepository) GetState(ctx context.Context, sessionID string) (*models.SessionState, error) {
	var stateJSON []byte
	row := r.db.QueryRowContext(ctx,
		`SELECT state_json FROM session WHERE id = $1`, sessionID)
	if err := row.Scan(&stateJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session state: %w", err)
	}
	if len(stateJSON) == 0 {
		return nil, fmt.Errorf("session %s has no stored state", sessionID)
	}

	st := &models.SessionState{}
	if err := json.Unmarshal(stateJSON, st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return st, nil
}

func (r *PostgresSessionRepository) CompleteSession(ctx context.Context, sessionID string, finalScore, durationMinutes float64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE session
		SET status = 'completed', final_score = $1, duration_minutes = $2, completed_at = now()
		WHERE id = $3`,
		finalScore, durationMinutes, sessionID)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

func (r *PostgresSessionRepository) AppendTranscript(ctx context.Context, sessionID string, turnIdx int, role, content string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transcript (session_id, turn_idx, role, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, turn_idx) DO NOTHING`,
		sessionID, turnIdx, role, content)
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepository) GetTranscript(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT role, content FROM transcript
		WHERE session_id = $1
		ORDER BY turn_idx`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *PostgresSessionRepository) Close() error {
	return r.db.Close()
}
