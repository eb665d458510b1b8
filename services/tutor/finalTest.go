package tutor

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"autodidact/models"
)

const finalTestSize = 6

var numberedLineRe = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.*\S)\s*$`)

// parseNumberedQuestions turns a "1. ...\n2. ..." model reply into questions.
// Lines that don't match the numbering are ignored; lettered options are
// folded into the preceding question so multiple-choice blocks survive.
func parseNumberedQuestions(reply string, defaultType models.QuestionType) []models.QuizQuestion {
	var questions []models.QuizQuestion
	optionRe := regexp.MustCompile(`^\s*[A-D][.)]\s+`)

	for _, line := range strings.Split(reply, "\n") {
		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			questions = append(questions, models.QuizQuestion{
				Prompt: m[2],
				Type:   defaultType,
			})
			continue
		}
		if len(questions) > 0 && optionRe.MatchString(line) {
			last := &questions[len(questions)-1]
			last.Prompt += "\n" + strings.TrimSpace(line)
			last.Type = models.QuestionMultipleChoice
		}
	}
	return questions
}

// objectiveIDsRoundRobin assigns question i to one objective, cycling through
// the list so every objective is covered when questions outnumber objectives.
func objectiveIDsRoundRobin(objectives []models.Objective, i int) []string {
	if len(objectives) == 0 {
		return nil
	}
	return []string{objectives[i%len(objectives)].ID}
}

// buildFinalTest asks the model for the end-of-session test over the given
// objectives. Provider failures or an unparsable reply fall back to one
// reflection question per objective so the session can still finish.
func (s *Service) buildFinalTest(ctx context.Context, st *models.SessionState, objectives []models.Objective) []models.QuizQuestion {
	prompt := fmt.Sprintf(FINAL_TEST_GENERATION_PROMPT, finalTestSize, objectiveDescriptions(objectives))
	reply, err := s.llm.Invoke(ctx, QUESTION_WRITER_SYSTEM_PROMPT, []models.Message{
		{Role: models.RoleLearner, Content: prompt},
	})
	if err != nil {
		log.Printf("[ERROR] session %s: final test generation failed: %v", st.SessionID, err)
		return fallbackFinalQuestions(objectives)
	}

	questions := parseNumberedQuestions(reply, models.QuestionShortAnswer)
	if len(questions) == 0 {
		log.Printf("[WARN] session %s: final test reply had no numbered questions, using fallback", st.SessionID)
		return fallbackFinalQuestions(objectives)
	}
	if len(questions) > finalTestSize {
		questions = questions[:finalTestSize]
	}
	for i := range questions {
		questions[i].ObjectiveIDs = objectiveIDsRoundRobin(objectives, i)
	}
	return questions
}

func fallbackFinalQuestions(objectives []models.Objective) []models.QuizQuestion {
	questions := make([]models.QuizQuestion, 0, len(objectives))
	for _, o := range objectives {
		questions = append(questions, models.QuizQuestion{
			Prompt:       fmt.Sprintf("Explain, in your own words and with one example: %s", o.Description),
			Type:         models.QuestionFreeResponse,
			ObjectiveIDs: []string{o.ID},
		})
	}
	return questions
}

// handleTesting administers the final test one question per turn. With an
// early exit the test covers only the objectives actually completed; if none
// were, there is nothing to test and grading is skipped through.
func (s *Service) handleTesting(ctx context.Context, st *models.SessionState) (bool, error) {
	if len(st.FinalTestQuestions) == 0 && len(st.FinalTestAnswers) == 0 {
		objectives := st.ObjectivesForTesting()
		if len(objectives) == 0 {
			log.Printf("[INFO] session %s: nothing to test, skipping to grading", st.SessionID)
			if err := st.TransitionTo(models.PhaseGrading); err != nil {
				return false, err
			}
			return true, nil
		}
		st.FinalTestQuestions = s.buildFinalTest(ctx, st, objectives)
		s.journal.Event(st.SessionID, fmt.Sprintf("Final test built: %d questions over %d objectives",
			len(st.FinalTestQuestions), len(objectives)))
		s.say(st, fmt.Sprintf("Time to check what stuck. I'll ask you %d questions, one at a time - answer each as best you can.",
			len(st.FinalTestQuestions)))
		return true, nil
	}

	// Record the answer and fall through to the next question in the same
	// tick, so an assistant message always separates one answer from the
	// next prompt and the learner's message is never consumed twice.
	if reply, ok := st.LastLearnerMessage(); ok && testAnswerPending(st) && len(st.FinalTestAnswers) < len(st.FinalTestQuestions) {
		st.FinalTestAnswers = append(st.FinalTestAnswers, models.TestAnswer{
			QuestionIdx: len(st.FinalTestAnswers),
			Answer:      reply,
			AnsweredAt:  time.Now().UTC(),
		})
	}

	if n := len(st.FinalTestAnswers); n < len(st.FinalTestQuestions) {
		q := st.FinalTestQuestions[n]
		s.say(st, fmt.Sprintf("**Question %d/%d:**\n\n%s", n+1, len(st.FinalTestQuestions), q.FormatForDisplay()))
		return false, nil
	}

	if err := st.TransitionTo(models.PhaseGrading); err != nil {
		return false, err
	}
	return true, nil
}

// testAnswerPending is true when the newest message is the learner replying
// to a test question the assistant just asked, as opposed to a trailing
// learner message left over from an earlier phase.
func testAnswerPending(st *models.SessionState) bool {
	n := len(st.History)
	if n < 2 {
		return false
	}
	last, prev := st.History[n-1], st.History[n-2]
	return last.Role == models.RoleLearner &&
		prev.Role == models.RoleAssistant &&
		strings.Contains(prev.Content, "**Question")
}
