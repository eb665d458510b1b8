package services

import (
	"context"
	"fmt"
	"log"

	"autodidact/db"
	"autodidact/models"
)

// GraphService exposes read access to the knowledge graph for the HTTP layer:
// node lookups and the unlock frontier.
type GraphService struct {
	repo db.NodeRepository
}

func NewGraphService(repo db.NodeRepository) *GraphService {
	return &GraphService{repo: repo}
}

func (s *GraphService) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	log.Printf("[INFO] Starting get node %s", nodeID)

	if nodeID == "" {
		log.Printf("[ERROR] Empty node ID provided")
		return nil, fmt.Errorf("node ID is required")
	}

	node, err := s.repo.GetNodeWithObjectives(ctx, nodeID)
	if err != nil {
		log.Printf("[ERROR] Failed to get node %s: %v", nodeID, err)
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("node %s not found", nodeID)
	}

	log.Printf("[INFO] Successfully retrieved node %s (%d objectives)", nodeID, len(node.Objectives))
	return node, nil
}

// GetNextNodes returns the nodes the learner can study next: not yet
// mastered, with every prerequisite at or above the mastery threshold.
func (s *GraphService) GetNextNodes(ctx context.Context, projectID string) ([]models.Node, error) {
	log.Printf("[INFO] Starting get next nodes for project %s", projectID)

	if projectID == "" {
		log.Printf("[ERROR] Empty project ID provided")
		return nil, fmt.Errorf("project ID is required")
	}

	nodes, err := s.repo.GetNextNodes(ctx, projectID)
	if err != nil {
		log.Printf("[ERROR] Failed to get next nodes for project %s: %v", projectID, err)
		return nil, err
	}

	log.Printf("[INFO] Found %d unlockable nodes for project %s", len(nodes), projectID)
	return nodes, nil
}
