package tutor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"autodidact/models"
)

// maxTicksPerTurn bounds how many phase handlers may run back to back for a
// single learner input. The longest legitimate burst (quiz feedback, objective
// rollover, test construction, first test question) stays well under it.
const maxTicksPerTurn = 12

var ErrSessionCompleted = errors.New("session already completed")

// Tick advances the session until a handler needs learner input, the session
// completes, or something fails. It works on a clone: on error the caller's
// state is untouched and nothing partial should be persisted.
func (s *Service) Tick(ctx context.Context, st *models.SessionState) (*models.SessionState, error) {
	if st.CurrentPhase == models.PhaseCompleted {
		return nil, ErrSessionCompleted
	}

	work := st.Clone()
	for tick := 0; tick < maxTicksPerTurn; tick++ {
		advance, err := s.dispatch(ctx, work)
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", work.CurrentPhase, err)
		}
		if work.CurrentPhase == models.PhaseCompleted {
			return work, nil
		}
		if !advance {
			return work, nil
		}
	}

	log.Printf("[ERROR] session %s: phase machine did not settle after %d ticks (phase=%s)",
		work.SessionID, maxTicksPerTurn, work.CurrentPhase)
	return nil, &TickOverrunError{SessionID: work.SessionID, Ticks: maxTicksPerTurn}
}

func (s *Service) dispatch(ctx context.Context, st *models.SessionState) (bool, error) {
	switch st.CurrentPhase {
	case models.PhaseLoadContext:
		return s.handleLoadContext(ctx, st)
	case models.PhaseIntro:
		return s.handleIntro(ctx, st)
	case models.PhasePrereqCheck:
		return s.handlePrereqCheck(ctx, st)
	case models.PhaseRecap:
		return s.handleRecap(ctx, st)
	case models.PhasePrereqQuiz:
		return s.handlePrereqQuiz(ctx, st)
	case models.PhaseTeaching:
		return s.handleTeaching(ctx, st)
	case models.PhaseTesting:
		return s.handleTesting(ctx, st)
	case models.PhaseGrading:
		return s.handleGrading(ctx, st)
	case models.PhaseWrapUp:
		return s.handleWrapUp(ctx, st)
	default:
		return false, fmt.Errorf("no handler for phase %q", st.CurrentPhase)
	}
}
