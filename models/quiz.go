package models

import (
	"fmt"
	"strings"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleLearner   = "user"
	RoleAssistant = "assistant"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionFreeResponse   QuestionType = "free_response"
	QuestionParaphrase     QuestionType = "paraphrase"
)

// QuizQuestion is ephemeral: generated per session, never part of durable
// graph state.
type QuizQuestion struct {
	Prompt       string       `json:"prompt"`
	Type         QuestionType `json:"type"`
	Choices      []string     `json:"choices,omitempty"`
	Answer       string       `json:"answer,omitempty"`
	ObjectiveIDs []string     `json:"objective_ids"`
}

func (q QuizQuestion) FormatForDisplay() string {
	if q.Type == QuestionMultipleChoice && len(q.Choices) > 0 {
		var b strings.Builder
		b.WriteString(q.Prompt)
		b.WriteString("\n")
		for i, choice := range q.Choices {
			b.WriteString(fmt.Sprintf("\n%c. %s", 'A'+i, choice))
		}
		return b.String()
	}
	return q.Prompt
}

type TestAnswer struct {
	QuestionIdx int       `json:"question_idx"`
	Answer      string    `json:"answer"`
	AnsweredAt  time.Time `json:"answered_at"`
}
