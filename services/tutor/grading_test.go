package tutor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"autodidact/models"
)

func TestGradingScoresUnansweredQuestionsZero(t *testing.T) {
	graderCalls := 0
	client := &fakeLLM{fn: func(systemPrompt string, _ []models.Message) (string, error) {
		if systemPrompt != GRADER_SYSTEM_PROMPT {
			t.Fatalf("unexpected system prompt %q", systemPrompt)
		}
		graderCalls++
		return "SCORE: 0.8\nREASONING: Solid answer.", nil
	}}
	nodes, _ := testNode(false)
	svc := newTestService(client, nodes, &fakeSessions{})

	st := models.NewSessionState("s1", "p1", "n1")
	st.CurrentPhase = models.PhaseGrading
	for i := 0; i < 5; i++ {
		st.FinalTestQuestions = append(st.FinalTestQuestions, models.QuizQuestion{
			Prompt:       fmt.Sprintf("Question %d", i+1),
			Type:         models.QuestionShortAnswer,
			ObjectiveIDs: []string{fmt.Sprintf("o%d", i+1)},
		})
	}
	for i := 0; i < 3; i++ {
		st.FinalTestAnswers = append(st.FinalTestAnswers, models.TestAnswer{
			QuestionIdx: i,
			Answer:      fmt.Sprintf("answer %d", i+1),
		})
	}

	advance, err := svc.handleGrading(context.Background(), st)
	if err != nil {
		t.Fatalf("handleGrading() = %v", err)
	}
	if !advance {
		t.Error("grading should advance to wrap-up")
	}
	if graderCalls != 3 {
		t.Errorf("grader invoked %d times, want 3 - unanswered questions must not hit the model", graderCalls)
	}
	for _, objID := range []string{"o1", "o2", "o3"} {
		if got := st.ObjectiveScores[objID]; got != 0.8 {
			t.Errorf("score[%s] = %f, want 0.8", objID, got)
		}
	}
	for _, objID := range []string{"o4", "o5"} {
		if got := st.ObjectiveScores[objID]; got != 0 {
			t.Errorf("score[%s] = %f, want 0 for an unanswered question", objID, got)
		}
	}
	if st.CurrentPhase != models.PhaseWrapUp {
		t.Errorf("phase = %s, want wrap_up", st.CurrentPhase)
	}
}

func TestGradeAnswerEmptyAnswerScoresZeroWithoutModelCall(t *testing.T) {
	client := &fakeLLM{fn: func(string, []models.Message) (string, error) {
		t.Fatal("grader must not be invoked for an empty answer")
		return "", nil
	}}
	nodes, _ := testNode(false)
	svc := newTestService(client, nodes, &fakeSessions{})

	q := models.QuizQuestion{Prompt: "Explain goroutines", Type: models.QuestionShortAnswer}
	for _, answer := range []string{"", "   ", "\n\t"} {
		score, reasoning := svc.gradeAnswer(context.Background(), "s1", q, answer)
		if score != 0 {
			t.Errorf("gradeAnswer(%q) score = %f, want 0", answer, score)
		}
		if reasoning != "No answer provided." {
			t.Errorf("gradeAnswer(%q) reasoning = %q", answer, reasoning)
		}
	}
}

func TestParseGradeResponse(t *testing.T) {
	tests := []struct {
		name          string
		reply         string
		wantScore     float64
		wantReasoning string
		wantErr       bool
	}{
		{
			name:          "canonical format",
			reply:         "SCORE: 0.85\nREASONING: Mostly correct, missed the edge case.",
			wantScore:     0.85,
			wantReasoning: "Mostly correct, missed the edge case.",
		},
		{
			name:          "full marks",
			reply:         "SCORE: 1.0\nREASONING: Complete and accurate.",
			wantScore:     1.0,
			wantReasoning: "Complete and accurate.",
		},
		{
			name:          "lowercase labels",
			reply:         "score: 0.5\nreasoning: Partially right.",
			wantScore:     0.5,
			wantReasoning: "Partially right.",
		},
		{
			name:          "leading chatter before score line",
			reply:         "Here is my assessment.\nSCORE: 0.3\nREASONING: Off topic.",
			wantScore:     0.3,
			wantReasoning: "Off topic.",
		},
		{
			name:      "score above one clamped",
			reply:     "SCORE: 8\nREASONING: Great.",
			wantScore: 1.0,
		},
		{
			name:      "missing reasoning still parses",
			reply:     "SCORE: 0.6",
			wantScore: 0.6,
		},
		{
			name:    "no score line",
			reply:   "The answer looks good to me!",
			wantErr: true,
		},
		{
			name:    "empty reply",
			reply:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, reasoning, err := parseGradeResponse(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got score=%f", score)
				}
				var parseErr *GradingParseError
				if !errors.As(err, &parseErr) {
					t.Errorf("expected GradingParseError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(score-tt.wantScore) > 1e-9 {
				t.Errorf("score = %f, want %f", score, tt.wantScore)
			}
			if tt.wantReasoning != "" && reasoning != tt.wantReasoning {
				t.Errorf("reasoning = %q, want %q", reasoning, tt.wantReasoning)
			}
		})
	}
}
