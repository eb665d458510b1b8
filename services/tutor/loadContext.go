package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"autodidact/models"

	"github.com/samber/lo"
)

const refChunkLimit = 6

// handleLoadContext hydrates the session with everything later phases need:
// the node, its objectives split by prior mastery, prerequisite objectives
// from upstream nodes, project resources and retrieved reference excerpts.
// A missing node is fatal; everything else degrades gracefully.
func (s *Service) handleLoadContext(ctx context.Context, st *models.SessionState) (bool, error) {
	node, err := s.nodes.GetNodeWithObjectives(ctx, st.NodeID)
	if err != nil {
		return false, fmt.Errorf("loading node %s: %w", st.NodeID, err)
	}
	if node == nil {
		return false, &ContextNotFoundError{NodeID: st.NodeID}
	}

	st.NodeOriginalID = node.OriginalID
	st.NodeTitle = node.Label
	st.References = node.References
	st.AllObjectives = node.Objectives

	known, toTeach := lo.FilterReject(node.Objectives, func(o models.Objective, _ int) bool {
		return o.IsMastered()
	})
	st.ObjectivesToTeach = toTeach
	st.ObjectivesAlreadyKnown = known

	prereqs, err := s.nodes.GetPrerequisiteObjectives(ctx, st.ProjectID, node.OriginalID)
	if err != nil {
		log.Printf("[WARN] loading prerequisites for node %s: %v", st.NodeID, err)
		prereqs = []models.Objective{}
	}
	st.PrerequisiteObjectives = prereqs

	project, err := s.projects.GetProject(ctx, st.ProjectID)
	if err != nil {
		log.Printf("[WARN] loading project %s: %v", st.ProjectID, err)
	} else if project != nil {
		st.Resources = project.Resources
	}

	if s.refs != nil {
		query := node.Label + ": " + strings.Join(
			lo.Map(toTeach, func(o models.Objective, _ int) string { return o.Description }), "; ")
		chunks, err := s.refs.QueryReferences(ctx, query, refChunkLimit)
		if err != nil {
			log.Printf("[WARN] reference retrieval for node %s: %v", st.NodeID, err)
		} else {
			st.RefChunks = chunks
		}
	}

	log.Printf("[INFO] session %s: context loaded for node %q (%d to teach, %d already known, %d prerequisites)",
		st.SessionID, node.Label, len(toTeach), len(known), len(prereqs))
	s.journal.Start(st)
	s.journal.Event(st.SessionID, fmt.Sprintf("Context loaded: %d objectives to teach, %d prerequisites", len(toTeach), len(prereqs)))

	if err := st.TransitionTo(models.PhaseIntro); err != nil {
		return false, err
	}
	return true, nil
}
