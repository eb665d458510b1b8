package tutor

import (
	"context"
	"fmt"
	"log"

	"autodidact/models"

	"github.com/samber/lo"
)

// BlendMastery folds a fresh test score into the stored mastery as a running
// average, clamped to [0,1]. A learner can neither lose more than half their
// standing on one bad test nor jump straight to full mastery.
func BlendMastery(previous, score float64) float64 {
	return models.ClampMastery((models.ClampMastery(previous) + models.ClampMastery(score)) / 2)
}

// NodeMastery is the mean of the node's per-objective masteries. Empty
// objective lists yield zero.
func NodeMastery(objectives []models.Objective) float64 {
	if len(objectives) == 0 {
		return 0
	}
	total := lo.SumBy(objectives, func(o models.Objective) float64 { return o.Mastery })
	return models.ClampMastery(total / float64(len(objectives)))
}

// applyMasteryUpdates writes the blended per-objective masteries and the
// recomputed node mastery back through the node store, mirroring the changes
// into the in-memory state so later reads see the post-session values.
func (s *Service) applyMasteryUpdates(ctx context.Context, st *models.SessionState) error {
	for objectiveID, score := range st.ObjectiveScores {
		idx := lo.IndexOf(lo.Map(st.AllObjectives, func(o models.Objective, _ int) string { return o.ID }), objectiveID)
		if idx < 0 {
			log.Printf("[WARN] scored objective %s not found on node %s, skipping", objectiveID, st.NodeID)
			continue
		}
		updated := BlendMastery(st.AllObjectives[idx].Mastery, score)
		if err := s.nodes.UpdateObjectiveMastery(ctx, objectiveID, updated); err != nil {
			return fmt.Errorf("updating mastery for objective %s: %w", objectiveID, err)
		}
		st.AllObjectives[idx].Mastery = updated
	}

	nodeMastery := NodeMastery(st.AllObjectives)
	if err := s.nodes.UpdateNodeMastery(ctx, st.NodeID, nodeMastery); err != nil {
		return fmt.Errorf("updating mastery for node %s: %w", st.NodeID, err)
	}
	return nil
}
