package tutor

import (
	"context"
	"fmt"
	"log"

	"autodidact/models"
)

// handleIntro opens the session. With prerequisites in play the intro comes
// from the model and ends by asking the learner to pick quiz or summary;
// without them a canned preview suffices and teaching starts immediately.
func (s *Service) handleIntro(ctx context.Context, st *models.SessionState) (bool, error) {
	if !st.HasPrerequisites() {
		preview := fmt.Sprintf("Welcome! Today we're covering \"%s\". Here's what we'll work through:\n\n%s\n\nLet's begin.",
			st.NodeTitle, models.FormatObjectives(st.ObjectivesToTeach))
		s.say(st, preview)
		st.CurrentSubPhase = models.SubPhaseProbeAsk
		if err := st.TransitionTo(models.PhaseTeaching); err != nil {
			return false, err
		}
		return true, nil
	}

	instruction := fmt.Sprintf(INTRO_INSTRUCTION,
		st.NodeTitle, models.FormatObjectives(st.ObjectivesToTeach), len(st.PrerequisiteObjectives))
	reply, err := s.llm.Invoke(ctx, INTRO_SYSTEM_PROMPT, []models.Message{
		{Role: models.RoleLearner, Content: instruction},
	})
	if err != nil {
		log.Printf("[ERROR] session %s: intro generation failed: %v", st.SessionID, err)
		reply = fmt.Sprintf(FALLBACK_INTRO_TEMPLATE, st.NodeTitle)
	}
	s.say(st, reply)
	if err := st.TransitionTo(models.PhasePrereqCheck); err != nil {
		return false, err
	}
	return false, nil
}
