package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"autodidact/models"
)

// handleTeaching runs one step of the probe/explain/quiz cycle for the
// current objective. Waiting sub-phases append a message and yield; response
// sub-phases consume the learner's input, react, and advance.
func (s *Service) handleTeaching(ctx context.Context, st *models.SessionState) (bool, error) {
	// A fresh learner message moves a waiting sub-phase to its responder.
	// Exception: if quiz generation failed earlier, the current objective has
	// no question on record yet, so stay in quiz_ask and ask it now.
	if _, ok := st.LastLearnerMessage(); ok && st.CurrentSubPhase.IsWaiting() {
		askPending := st.CurrentSubPhase == models.SubPhaseQuizAsk &&
			len(st.MicroQuizzes) <= len(st.CompletedObjectives)
		if !askPending {
			st.CurrentSubPhase = st.CurrentSubPhase.OnLearnerInput()
		}
	}

	if st.ObjectiveIdx >= len(st.ObjectivesToTeach) {
		return s.startTesting(st)
	}
	obj, _ := st.CurrentObjective()

	switch st.CurrentSubPhase {
	case models.SubPhaseProbeAsk:
		return s.teachingSay(ctx, st, PROBE_INSTRUCTION)

	case models.SubPhaseProbeRespond:
		return s.teachingRespond(ctx, st, PROBE_RESPOND_INSTRUCTION, models.SubPhaseExplainPresent)

	case models.SubPhaseExplainPresent:
		return s.teachingSay(ctx, st, EXPLAIN_INSTRUCTION)

	case models.SubPhaseExplainRespond:
		return s.teachingRespond(ctx, st, EXPLAIN_RESPOND_INSTRUCTION, models.SubPhaseQuizAsk)

	case models.SubPhaseQuizAsk:
		return s.askMicroQuiz(ctx, st, obj)

	case models.SubPhaseQuizEvaluate:
		return s.evaluateMicroQuiz(ctx, st, obj)

	default:
		return false, fmt.Errorf("no handler for sub-phase %q", st.CurrentSubPhase)
	}
}

// teachingSay generates a one-shot tutor message (probe question or
// explanation) and waits. On provider failure the session stays put with a
// retry message.
func (s *Service) teachingSay(ctx context.Context, st *models.SessionState, instruction string) (bool, error) {
	reply, err := s.llm.Invoke(ctx, teachingSystemPrompt(st), []models.Message{
		{Role: models.RoleLearner, Content: instruction},
	})
	if err != nil {
		log.Printf("[ERROR] session %s: teaching message failed (sub-phase %s): %v", st.SessionID, st.CurrentSubPhase, err)
		s.say(st, FALLBACK_TUTOR_MESSAGE)
		return false, nil
	}
	s.say(st, strings.TrimSpace(StripControlBlock(reply)))
	return false, nil
}

// teachingRespond reacts to the learner's reply during a respond sub-phase.
// An objective_complete control in the model's reaction skips the rest of the
// cycle and goes straight to the comprehension check.
func (s *Service) teachingRespond(ctx context.Context, st *models.SessionState, instructionTemplate string, next models.SubPhase) (bool, error) {
	learnerReply, ok := st.LastLearnerMessage()
	if !ok {
		// Nothing to respond to; fall through to the next step of the cycle.
		log.Printf("[WARN] session %s: sub-phase %s reached without learner input", st.SessionID, st.CurrentSubPhase)
		st.CurrentSubPhase = next
		return true, nil
	}

	// The instruction restates the learner's reply, so the history passed to
	// the model ends just before it.
	prior := st.History[: len(st.History)-1 : len(st.History)-1]
	instruction := fmt.Sprintf(instructionTemplate, learnerReply)
	reply, err := s.llm.Invoke(ctx, teachingSystemPrompt(st), append(prior,
		models.Message{Role: models.RoleLearner, Content: instruction}))
	if err != nil {
		log.Printf("[ERROR] session %s: teaching response failed (sub-phase %s): %v", st.SessionID, st.CurrentSubPhase, err)
		s.say(st, FALLBACK_TUTOR_MESSAGE)
		return false, nil
	}

	directive, found, err := ExtractControlBlock(reply, TeachingControlSchema)
	if err != nil {
		return false, fmt.Errorf("teaching control block: %w", err)
	}
	s.say(st, strings.TrimSpace(StripControlBlock(reply)))
	if found && directive["objective_complete"] {
		s.journal.Event(st.SessionID, fmt.Sprintf("Objective %d marked complete early by tutor", st.ObjectiveIdx+1))
		st.CurrentSubPhase = models.SubPhaseQuizAsk
		return true, nil
	}
	st.CurrentSubPhase = next
	return true, nil
}

// askMicroQuiz poses the per-objective comprehension question and waits.
func (s *Service) askMicroQuiz(ctx context.Context, st *models.SessionState, obj models.Objective) (bool, error) {
	reply, err := s.llm.Invoke(ctx, teachingSystemPrompt(st), []models.Message{
		{Role: models.RoleLearner, Content: MICRO_QUIZ_INSTRUCTION},
	})
	if err != nil {
		log.Printf("[ERROR] session %s: micro quiz generation failed: %v", st.SessionID, err)
		s.say(st, FALLBACK_TUTOR_MESSAGE)
		return false, nil
	}

	question := strings.TrimSpace(StripControlBlock(reply))
	if question == "" {
		log.Printf("[WARN] session %s: micro quiz reply was empty, using fallback question", st.SessionID)
		question = FALLBACK_QUIZ_QUESTION
	}
	st.MicroQuizzes = append(st.MicroQuizzes, models.QuizQuestion{
		Prompt:       question,
		Type:         models.QuestionShortAnswer,
		ObjectiveIDs: []string{obj.ID},
	})
	s.say(st, "**Quick check:** "+question)
	return false, nil
}

// evaluateMicroQuiz gives feedback on the comprehension answer, completes the
// objective and rolls the cycle over to the next one. A requested exit cuts
// teaching short here, at the objective boundary.
func (s *Service) evaluateMicroQuiz(ctx context.Context, st *models.SessionState, obj models.Objective) (bool, error) {
	answer, ok := st.LastLearnerMessage()
	if ok && len(st.MicroQuizzes) > 0 {
		question := st.MicroQuizzes[len(st.MicroQuizzes)-1].Prompt
		instruction := fmt.Sprintf(MICRO_QUIZ_EVAL_INSTRUCTION, question, answer)
		reply, err := s.llm.Invoke(ctx, teachingSystemPrompt(st), []models.Message{
			{Role: models.RoleLearner, Content: instruction},
		})
		if err != nil {
			log.Printf("[ERROR] session %s: micro quiz evaluation failed: %v", st.SessionID, err)
			reply = FALLBACK_QUIZ_FEEDBACK
		}
		s.say(st, strings.TrimSpace(StripControlBlock(reply)))
	} else {
		log.Printf("[WARN] session %s: quiz evaluation reached without an answer, moving on", st.SessionID)
	}

	st.MarkObjectiveCompleted(obj.ID)
	st.ObjectiveIdx++
	st.CurrentSubPhase = models.SubPhaseProbeAsk
	s.journal.Event(st.SessionID, fmt.Sprintf("Objective complete: %s", obj.Description))

	if st.ExitRequested {
		log.Printf("[INFO] session %s: exit requested, ending teaching after objective %q", st.SessionID, obj.Description)
		return s.startTesting(st)
	}
	return true, nil
}

// startTesting closes the teaching loop and announces the final test.
func (s *Service) startTesting(st *models.SessionState) (bool, error) {
	if err := st.TransitionTo(models.PhaseTesting); err != nil {
		return false, err
	}
	return true, nil
}
