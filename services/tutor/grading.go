package tutor

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"autodidact/models"

	"github.com/samber/lo"
)

const neutralScore = 0.5

var (
	scoreLineRe     = regexp.MustCompile(`(?mi)^\s*SCORE:\s*([0-9]*\.?[0-9]+)`)
	reasoningLineRe = regexp.MustCompile(`(?mi)^\s*REASONING:\s*(.+)$`)
)

// parseGradeResponse extracts the score and reasoning from a grader reply.
// Anything that doesn't carry a parsable SCORE line is a GradingParseError.
func parseGradeResponse(reply string) (float64, string, error) {
	m := scoreLineRe.FindStringSubmatch(reply)
	if m == nil {
		return 0, "", &GradingParseError{Raw: reply}
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", &GradingParseError{Raw: reply}
	}

	reasoning := ""
	if rm := reasoningLineRe.FindStringSubmatch(reply); rm != nil {
		reasoning = strings.TrimSpace(rm[1])
	}
	return models.ClampMastery(score), reasoning, nil
}

// gradeAnswer scores one answer against one question. Empty answers score
// zero without a model call; provider errors and unparsable replies both
// degrade to a neutral score so a single bad grade never sinks the session.
func (s *Service) gradeAnswer(ctx context.Context, sessionID string, question models.QuizQuestion, answer string) (float64, string) {
	if strings.TrimSpace(answer) == "" {
		return 0, "No answer provided."
	}

	instruction := fmt.Sprintf(GRADER_INSTRUCTION, question.Prompt, answer)
	reply, err := s.llm.Invoke(ctx, GRADER_SYSTEM_PROMPT, []models.Message{
		{Role: models.RoleLearner, Content: instruction},
	})
	if err != nil {
		log.Printf("[ERROR] session %s: grading call failed: %v", sessionID, err)
		return neutralScore, "Could not be graded automatically."
	}

	score, reasoning, err := parseGradeResponse(reply)
	if err != nil {
		log.Printf("[WARN] session %s: %v", sessionID, err)
		return neutralScore, "Could not be graded automatically."
	}
	return score, reasoning
}

// handleGrading grades every test question, aggregates per-objective means
// and reports the results to the learner. Questions the learner never reached
// are graded against an empty answer.
func (s *Service) handleGrading(ctx context.Context, st *models.SessionState) (bool, error) {
	answersByIdx := lo.SliceToMap(st.FinalTestAnswers, func(a models.TestAnswer) (int, string) {
		return a.QuestionIdx, a.Answer
	})

	perObjective := map[string][]float64{}
	var lines []string
	for i, q := range st.FinalTestQuestions {
		score, reasoning := s.gradeAnswer(ctx, st.SessionID, q, answersByIdx[i])
		for _, objID := range q.ObjectiveIDs {
			perObjective[objID] = append(perObjective[objID], score)
		}
		lines = append(lines, fmt.Sprintf("- Question %d: %.0f%% - %s", i+1, score*100, reasoning))
	}

	st.ObjectiveScores = lo.MapValues(perObjective, func(scores []float64, _ string) float64 {
		return models.ClampMastery(lo.Sum(scores) / float64(len(scores)))
	})

	if len(st.FinalTestQuestions) > 0 {
		summary := fmt.Sprintf("Here's how you did:\n\n%s\n\n**Overall: %.0f%%**",
			strings.Join(lines, "\n"), st.OverallScore()*100)
		s.say(st, summary)
	}
	s.journal.Event(st.SessionID, fmt.Sprintf("Graded %d questions, overall %.2f", len(st.FinalTestQuestions), st.OverallScore()))

	if err := st.TransitionTo(models.PhaseWrapUp); err != nil {
		return false, err
	}
	return true, nil
}
