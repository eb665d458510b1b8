package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS project (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		resources_json JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS node (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES project(id),
		original_id TEXT NOT NULL,
		label TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		mastery DOUBLE PRECISION NOT NULL DEFAULT 0,
		references_json JSONB NOT NULL DEFAULT '[]',
		UNIQUE (project_id, original_id)
	)`,
	`CREATE TABLE IF NOT EXISTS edge (
		project_id TEXT NOT NULL REFERENCES project(id),
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1,
		rationale TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (project_id, source, target)
	)`,
	`CREATE TABLE IF NOT EXISTS learning_objective (
		id TEXT PRIMARY KEY,
		node_id TEXT NOT NULL REFERENCES node(id),
		idx_in_node INT NOT NULL,
		description TEXT NOT NULL,
		mastery DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS session (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES project(id),
		node_id TEXT NOT NULL REFERENCES node(id),
		state_json JSONB,
		final_score DOUBLE PRECISION,
		duration_minutes DOUBLE PRECISION,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS transcript (
		session_id TEXT NOT NULL REFERENCES session(id),
		turn_idx INT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (session_id, turn_idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_node_project ON node(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_objective_node ON learning_objective(node_id)`,
	`CREATE INDEX IF NOT EXISTS idx_session_project ON session(project_id)`,
}

// EnsureSchema creates the tables on startup if they don't exist yet.
func EnsureSchema(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
