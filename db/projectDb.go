package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"autodidact/models"

	_ "github.com/lib/pq"
)

type ProjectRepository interface {
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	Close() error
}

type PostgresProjectRepository struct {
	db *sql.DB
}

func NewPostgresProjectRepository(databaseURL string) (*PostgresProjectRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresProjectRepository{db: db}, nil
}

// GetProject returns (nil, nil) when the project does not exist.
func (r *PostgresProjectRepository) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	query := `
		SELECT id, topic, resources_json, created_at
		FROM project
		WHERE id = $1`

	project := &models.Project{}
	var resourcesJSON []byte
	row := r.db.QueryRowContext(ctx, query, projectID)
	err := row.Scan(&project.ID, &project.Topic, &resourcesJSON, &project.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if err := json.Unmarshal(resourcesJSON, &project.Resources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resources: %w", err)
	}
	return project, nil
}

func (r *PostgresProjectRepository) Close() error {
	return r.db.Close()
}
