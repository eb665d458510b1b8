package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"autodidact/models"

	_ "github.com/lib/pq"
)

type NodeRepository interface {
	GetNodeWithObjectives(ctx context.Context, nodeID string) (*models.Node, error)
	GetPrerequisiteObjectives(ctx context.Context, projectID, nodeOriginalID string) ([]models.Objective, error)
	UpdateObjectiveMastery(ctx context.Context, objectiveID string, mastery float64) error
	UpdateNodeMastery(ctx context.Context, nodeID string, mastery float64) error
	GetNextNodes(ctx context.Context, projectID string) ([]models.Node, error)
	Close() error
}

type PostgresNodeRepository struct {
	db *sql.DB
}

func NewPostgresNodeRepository(databaseURL string) (*PostgresNodeRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresNodeRepository{db: db}, nil
}

// GetNodeWithObjectives returns the node plus its ordered objectives, or
// (nil, nil) when the node does not exist.
func (r *PostgresNodeRepository) GetNodeWithObjectives(ctx context.Context, nodeID string) (*models.Node, error) {
	query := `
		SELECT id, project_id, original_id, label, summary, mastery, references_json
		FROM node
		WHERE id = $1`

	node := &models.Node{}
	var referencesJSON []byte
	row := r.db.QueryRowContext(ctx, query, nodeID)
	err := row.Scan(&node.ID, &node.ProjectID, &node.OriginalID, &node.Label, &node.Summary, &node.Mastery, &referencesJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	if err := json.Unmarshal(referencesJSON, &node.References); err != nil {
		return nil, fmt.Errorf("failed to unmarshal references: %w", err)
	}

	objectives, err := r.getObjectivesForNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	node.Objectives = objectives
	return node, nil
}

func (r *PostgresNodeRepository) getObjectivesForNode(ctx context.Context, nodeID string) ([]models.Objective, error) {
	query := `
		SELECT id, node_id, description, mastery
		FROM learning_objective
		WHERE node_id = $1
		ORDER BY idx_in_node`

	rows, err := r.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get objectives: %w", err)
	}
	defer rows.Close()

	objectives := []models.Objective{}
	for rows.Next() {
		var o models.Objective
		if err := rows.Scan(&o.ID, &o.NodeID, &o.Description, &o.Mastery); err != nil {
			return nil, fmt.Errorf("failed to scan objective: %w", err)
		}
		objectives = append(objectives, o)
	}
	return objectives, rows.Err()
}

// GetPrerequisiteObjectives collects the objectives of every node with an
// edge into the given node within the same project.
func (r *PostgresNodeRepository) GetPrerequisiteObjectives(ctx context.Context, projectID, nodeOriginalID string) ([]models.Objective, error) {
	query := `
		SELECT lo.id, lo.node_id, lo.description, lo.mastery
		FROM edge e
		JOIN node n ON n.project_id = e.project_id AND n.original_id = e.source
		JOIN learning_objective lo ON lo.node_id = n.id
		WHERE e.project_id = $1 AND e.target = $2
		ORDER BY n.original_id, lo.idx_in_node`

	rows, err := r.db.QueryContext(ctx, query, projectID, nodeOriginalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prerequisite objectives: %w", err)
	}
	defer rows.Close()

	objectives := []models.Objective{}
	for rows.Next() {
		var o models.Objective
		if err := rows.Scan(&o.ID, &o.NodeID, &o.Description, &o.Mastery); err != nil {
			return nil, fmt.Errorf("failed to scan objective: %w", err)
		}
		objectives = append(objectives, o)
	}
	return objectives, rows.Err()
}

func (r *PostgresNodeRepository) UpdateObjectiveMastery(ctx context.Context, objectiveID string, mastery float64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE learning_objective SET mastery = $1 WHERE id = $2`, mastery, objectiveID)
	if err != nil {
		return fmt.Errorf("failed to update objective mastery: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("objective %s not found", objectiveID)
	}
	return nil
}

func (r *PostgresNodeRepository) UpdateNodeMastery(ctx context.Context, nodeID string, mastery float64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE node SET mastery = $1 WHERE id = $2`, mastery, nodeID)
	if err != nil {
		return fmt.Errorf("failed to update node mastery: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("node %s not found", nodeID)
	}
	return nil
}

// GetNextNodes lists nodes whose prerequisites are all mastered but which
// are not yet mastered themselves: what the learner should study next.
func (r *PostgresNodeRepository) GetNextNodes(ctx context.Context, projectID string) ([]models.Node, error) {
	query := `
		SELECT n.id, n.project_id, n.original_id, n.label, n.summary, n.mastery
		FROM node n
		WHERE n.project_id = $1
		  AND n.mastery < $2
		  AND NOT EXISTS (
			SELECT 1
			FROM edge e
			JOIN node src ON src.project_id = e.project_id AND src.original_id = e.source
			WHERE e.project_id = n.project_id
			  AND e.target = n.original_id
			  AND src.mastery < $2
		  )
		ORDER BY n.label`

	rows, err := r.db.QueryContext(ctx, query, projectID, models.MasteryThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to get next nodes: %w", err)
	}
	defer rows.Close()

	nodes := []models.Node{}
	for rows.Next() {
		var n models.Node
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.OriginalID, &n.Label, &n.Summary, &n.Mastery); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *PostgresNodeRepository) Close() error {
	return r.db.Close()
}
