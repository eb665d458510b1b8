package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"autodidact/models"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
)

const maxPrereqQuestions = 4

var (
	quizChoiceWords  = []string{"quiz", "test", "check"}
	recapChoiceWords = []string{"summary", "recap", "review"}
)

// ParsePrereqChoice reads the learner's reply to the quiz-or-summary question.
// Matching is fuzzy so "quizz me please" or "a sumary would be great" both
// resolve; quiz wins if the reply somehow names both.
func ParsePrereqChoice(reply string) models.PrereqChoice {
	words := strings.Fields(strings.ToLower(reply))
	words = lo.Map(words, func(w string, _ int) string {
		return strings.Trim(w, ".,!?\"'()")
	})

	for _, w := range words {
		if matchesAnyChoiceWord(w, quizChoiceWords) {
			return models.PrereqChoiceQuiz
		}
	}
	for _, w := range words {
		if matchesAnyChoiceWord(w, recapChoiceWords) {
			return models.PrereqChoiceRecap
		}
	}
	return models.PrereqChoiceUnknown
}

func matchesAnyChoiceWord(word string, keywords []string) bool {
	for _, kw := range keywords {
		if rank := fuzzy.RankMatchNormalizedFold(kw, word); rank >= 0 && rank <= 2 {
			return true
		}
		if rank := fuzzy.RankMatchNormalizedFold(word, kw); rank >= 0 && rank <= 2 {
			return true
		}
	}
	return false
}

// handlePrereqCheck interprets the learner's choice and routes to the recap
// or the prerequisite quiz. Unrecognized replies re-ask rather than guess.
func (s *Service) handlePrereqCheck(ctx context.Context, st *models.SessionState) (bool, error) {
	reply, ok := st.LastLearnerMessage()
	if !ok {
		s.say(st, "Before we start: would you like a short quiz on the prerequisites, or a quick summary of them?")
		return false, nil
	}

	switch ParsePrereqChoice(reply) {
	case models.PrereqChoiceQuiz:
		st.PrereqChoice = models.PrereqChoiceQuiz
		st.PrereqQuizQuestions = s.generatePrereqQuiz(ctx, st)
		s.journal.Event(st.SessionID, fmt.Sprintf("Learner chose prerequisite quiz (%d questions)", len(st.PrereqQuizQuestions)))
		if err := st.TransitionTo(models.PhasePrereqQuiz); err != nil {
			return false, err
		}
		return true, nil
	case models.PrereqChoiceRecap:
		st.PrereqChoice = models.PrereqChoiceRecap
		s.journal.Event(st.SessionID, "Learner chose prerequisite recap")
		if err := st.TransitionTo(models.PhaseRecap); err != nil {
			return false, err
		}
		return true, nil
	default:
		s.say(st, "Sorry, I didn't catch that - please answer \"quiz\" or \"summary\".")
		return false, nil
	}
}

// generatePrereqQuiz asks the model for up to maxPrereqQuestions short-answer
// questions over the prerequisite objectives. Provider failures fall back to
// one self-explanation question per objective.
func (s *Service) generatePrereqQuiz(ctx context.Context, st *models.SessionState) []models.QuizQuestion {
	prompt := fmt.Sprintf(PREREQ_QUIZ_GENERATION_PROMPT,
		maxPrereqQuestions, objectiveDescriptions(st.PrerequisiteObjectives))
	reply, err := s.llm.Invoke(ctx, QUESTION_WRITER_SYSTEM_PROMPT, []models.Message{
		{Role: models.RoleLearner, Content: prompt},
	})
	if err != nil {
		log.Printf("[ERROR] session %s: prereq quiz generation failed: %v", st.SessionID, err)
		return fallbackPrereqQuestions(st.PrerequisiteObjectives)
	}

	parsed := parseNumberedQuestions(reply, models.QuestionShortAnswer)
	if len(parsed) == 0 {
		log.Printf("[WARN] session %s: prereq quiz reply had no numbered questions, using fallback", st.SessionID)
		return fallbackPrereqQuestions(st.PrerequisiteObjectives)
	}
	if len(parsed) > maxPrereqQuestions {
		parsed = parsed[:maxPrereqQuestions]
	}
	for i := range parsed {
		parsed[i].ObjectiveIDs = objectiveIDsRoundRobin(st.PrerequisiteObjectives, i)
	}
	return parsed
}

func fallbackPrereqQuestions(prereqs []models.Objective) []models.QuizQuestion {
	limit := len(prereqs)
	if limit > maxPrereqQuestions {
		limit = maxPrereqQuestions
	}
	questions := make([]models.QuizQuestion, 0, limit)
	for _, o := range prereqs[:limit] {
		questions = append(questions, models.QuizQuestion{
			Prompt:       fmt.Sprintf("In a sentence or two, what do you remember about this: %s?", o.Description),
			Type:         models.QuestionShortAnswer,
			ObjectiveIDs: []string{o.ID},
		})
	}
	return questions
}

// handlePrereqQuiz walks the question list one at a time, letting the model
// give brief feedback on each answer before the next question. After the last
// answer, teaching begins.
func (s *Service) handlePrereqQuiz(ctx context.Context, st *models.SessionState) (bool, error) {
	if len(st.PrereqQuizQuestions) == 0 {
		return s.startTeaching(st, "No prerequisite questions could be prepared, so let's dive straight in.")
	}

	answered := len(st.PrereqQuizAnswers)
	asked := answered < len(st.PrereqQuizQuestions) && warmupAnswerPending(st)

	if reply, ok := st.LastLearnerMessage(); ok && asked {
		st.PrereqQuizAnswers = append(st.PrereqQuizAnswers, models.TestAnswer{
			QuestionIdx: answered,
			Answer:      reply,
			AnsweredAt:  time.Now().UTC(),
		})
		feedback := s.prereqFeedback(ctx, st, answered, reply)
		s.say(st, feedback)
		if len(st.PrereqQuizAnswers) == len(st.PrereqQuizQuestions) {
			return s.startTeaching(st, "")
		}
		return true, nil
	}

	next := len(st.PrereqQuizAnswers)
	q := st.PrereqQuizQuestions[next]
	s.say(st, fmt.Sprintf("**Warm-up %d/%d:** %s", next+1, len(st.PrereqQuizQuestions), q.Prompt))
	return false, nil
}

// warmupAnswerPending is true when the newest message is the learner replying
// to a warm-up question, as opposed to the quiz-or-summary choice that
// brought us here.
func warmupAnswerPending(st *models.SessionState) bool {
	n := len(st.History)
	if n < 2 {
		return false
	}
	last, prev := st.History[n-1], st.History[n-2]
	return last.Role == models.RoleLearner &&
		prev.Role == models.RoleAssistant &&
		strings.Contains(prev.Content, "**Warm-up")
}

// prereqFeedback grades one warm-up answer conversationally. Errors degrade
// to a neutral acknowledgement so the warm-up never stalls the session.
func (s *Service) prereqFeedback(ctx context.Context, st *models.SessionState, idx int, answer string) string {
	closing := "Next question coming up."
	if idx == len(st.PrereqQuizQuestions)-1 {
		closing = "That's the warm-up done - now on to the new material."
	}
	instruction := fmt.Sprintf(PREREQ_QUIZ_FEEDBACK_INSTRUCTION,
		st.PrereqQuizQuestions[idx].Prompt, answer, closing)
	reply, err := s.llm.Invoke(ctx, fmt.Sprintf(PREREQ_FEEDBACK_SYSTEM_PROMPT, st.NodeTitle), []models.Message{
		{Role: models.RoleLearner, Content: instruction},
	})
	if err != nil {
		log.Printf("[ERROR] session %s: prereq feedback failed: %v", st.SessionID, err)
		return FALLBACK_QUIZ_FEEDBACK + " " + closing
	}
	return reply
}

// handleRecap runs the conversational prerequisite refresher until the model
// signals prereq_complete in a control block.
func (s *Service) handleRecap(ctx context.Context, st *models.SessionState) (bool, error) {
	reply, err := s.llm.Invoke(ctx, recapSystemPrompt(st), st.History)
	if err != nil {
		log.Printf("[ERROR] session %s: recap generation failed: %v", st.SessionID, err)
		if msg, ok := st.LastLearnerMessage(); ok && strings.Contains(strings.ToLower(msg), "ready") {
			return s.startTeaching(st, "Alright, let's move on to the new material.")
		}
		s.say(st, FALLBACK_RECAP_MESSAGE)
		return false, nil
	}

	directive, found, err := ExtractControlBlock(reply, RecapControlSchema)
	if err != nil {
		return false, fmt.Errorf("recap control block: %w", err)
	}
	s.say(st, strings.TrimSpace(StripControlBlock(reply)))
	if found && directive["prereq_complete"] {
		s.journal.Event(st.SessionID, "Prerequisite recap complete")
		return s.startTeaching(st, "")
	}
	return false, nil
}

// startTeaching moves the session into the teaching loop, optionally saying
// something first.
func (s *Service) startTeaching(st *models.SessionState, message string) (bool, error) {
	if message != "" {
		s.say(st, message)
	}
	st.CurrentSubPhase = models.SubPhaseProbeAsk
	if err := st.TransitionTo(models.PhaseTeaching); err != nil {
		return false, err
	}
	return true, nil
}
