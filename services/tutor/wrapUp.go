package tutor

import (
	"context"
	"fmt"
	"log"
	"time"

	"autodidact/models"
)

// handleWrapUp persists the mastery updates, closes the session record and
// says goodbye. Store failures are logged and reported to the learner, but
// the session still reaches the completed phase; the conversation must not
// strand just because a write failed.
func (s *Service) handleWrapUp(ctx context.Context, st *models.SessionState) (bool, error) {
	now := time.Now().UTC()
	st.EndedAt = &now

	degraded := false
	if err := s.applyMasteryUpdates(ctx, st); err != nil {
		log.Printf("[ERROR] session %s: %v", st.SessionID, err)
		degraded = true
	}
	if err := s.sessions.CompleteSession(ctx, st.SessionID, st.OverallScore(), st.DurationMinutes()); err != nil {
		log.Printf("[ERROR] session %s: completing session record: %v", st.SessionID, err)
		degraded = true
	}

	message := fmt.Sprintf(
		"That wraps up \"%s\". You worked through %d objective(s) in %.0f minutes, scoring %.0f%% overall. Your progress shapes which topics unlock next - see you in the next session!",
		st.NodeTitle, len(st.CompletedObjectives), st.DurationMinutes(), st.OverallScore()*100)
	if degraded {
		message += "\n\n(Note: I had trouble saving some of your progress; it may not all be reflected next time.)"
	}
	s.say(st, message)

	s.journal.Event(st.SessionID, fmt.Sprintf("Session wrapped up, overall score %.2f", st.OverallScore()))
	s.journal.End(st)
	log.Printf("[INFO] session %s: completed (node %q, overall %.2f, %.1f min)",
		st.SessionID, st.NodeTitle, st.OverallScore(), st.DurationMinutes())

	if err := st.TransitionTo(models.PhaseCompleted); err != nil {
		return false, err
	}
	return true, nil
}
