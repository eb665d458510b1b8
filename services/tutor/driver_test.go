package tutor

import (
	"context"
	"strings"
	"testing"

	"autodidact/models"
	"autodidact/services/llm"
)

type fakeLLM struct {
	fn func(systemPrompt string, history []models.Message) (string, error)
}

func (f *fakeLLM) Invoke(_ context.Context, systemPrompt string, history []models.Message) (string, error) {
	return f.fn(systemPrompt, history)
}

// scriptedTutor answers every engine prompt plausibly, keyed off the
// instruction text, so a whole session can run end to end.
func scriptedTutor() *fakeLLM {
	return &fakeLLM{fn: func(systemPrompt string, history []models.Message) (string, error) {
		if systemPrompt == GRADER_SYSTEM_PROMPT {
			return "SCORE: 0.8\nREASONING: Mostly correct.", nil
		}
		if systemPrompt == QUESTION_WRITER_SYSTEM_PROMPT {
			return "1. What is the core idea?\n2. Give one example of it.", nil
		}
		if systemPrompt == INTRO_SYSTEM_PROMPT {
			return "Welcome! Would you like a quiz or a summary of the prerequisites?", nil
		}

		last := ""
		if len(history) > 0 {
			last = history[len(history)-1].Content
		}
		switch {
		case strings.Contains(last, "Ask the learner one open question"):
			return "What do you already know about this?", nil
		case strings.Contains(last, "The learner answered your probe"):
			return "Good start - let me walk you through it.", nil
		case strings.Contains(last, "Now teach the objective"):
			return "Here is the explanation, with an example. Any questions?", nil
		case strings.Contains(last, "responded to your explanation"):
			return "Good question - here's the answer.", nil
		case strings.Contains(last, "one short comprehension question"):
			return "Can you restate the main idea?", nil
		case strings.Contains(last, "You asked this comprehension question"):
			return "Exactly right. Moving on.", nil
		case strings.Contains(last, "running a short prerequisite check"):
			return "That's right. " + last, nil
		}
		return "Understood.", nil
	}}
}

type fakeNodes struct {
	node             *models.Node
	prereqs          []models.Objective
	objectiveMastery map[string]float64
	nodeMastery      map[string]float64
}

func (f *fakeNodes) GetNodeWithObjectives(_ context.Context, nodeID string) (*models.Node, error) {
	if f.node == nil || f.node.ID != nodeID {
		return nil, nil
	}
	return f.node, nil
}

func (f *fakeNodes) GetPrerequisiteObjectives(_ context.Context, _, _ string) ([]models.Objective, error) {
	return f.prereqs, nil
}

func (f *fakeNodes) UpdateObjectiveMastery(_ context.Context, objectiveID string, mastery float64) error {
	if f.objectiveMastery == nil {
		f.objectiveMastery = map[string]float64{}
	}
	f.objectiveMastery[objectiveID] = mastery
	return nil
}

func (f *fakeNodes) UpdateNodeMastery(_ context.Context, nodeID string, mastery float64) error {
	if f.nodeMastery == nil {
		f.nodeMastery = map[string]float64{}
	}
	f.nodeMastery[nodeID] = mastery
	return nil
}

type fakeProjects struct{}

func (fakeProjects) GetProject(_ context.Context, projectID string) (*models.Project, error) {
	return &models.Project{ID: projectID, Topic: "Go"}, nil
}

type fakeSessions struct {
	completed map[string]float64
}

func (f *fakeSessions) CompleteSession(_ context.Context, sessionID string, finalScore, _ float64) error {
	if f.completed == nil {
		f.completed = map[string]float64{}
	}
	f.completed[sessionID] = finalScore
	return nil
}

func testNode(prereqs bool) (*fakeNodes, *models.Node) {
	node := &models.Node{
		ID:         "n1",
		ProjectID:  "p1",
		OriginalID: "concurrency",
		Label:      "Concurrency in Go",
		Objectives: []models.Objective{
			{ID: "obj-1", NodeID: "n1", Description: "Explain goroutines", Mastery: 0.1},
			{ID: "obj-2", NodeID: "n1", Description: "Use channels", Mastery: 0.2},
		},
	}
	nodes := &fakeNodes{node: node}
	if prereqs {
		nodes.prereqs = []models.Objective{
			{ID: "pre-1", Description: "Declare functions", Mastery: 0.9},
		}
	}
	return nodes, node
}

func newTestService(client llm.Client, nodes *fakeNodes, sessions *fakeSessions) *Service {
	return NewService(client, nodes, fakeProjects{}, sessions, nil, nil)
}

// turn simulates one learner message and the resulting burst.
func turn(t *testing.T, svc *Service, st *models.SessionState, message string) *models.SessionState {
	t.Helper()
	st.AppendMessage(models.RoleLearner, message)
	next, err := svc.Tick(context.Background(), st)
	if err != nil {
		t.Fatalf("Tick() after %q: %v", message, err)
	}
	return next
}

func TestSessionStartWithoutPrerequisites(t *testing.T) {
	nodes, _ := testNode(false)
	svc := newTestService(scriptedTutor(), nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("Tick() = %v", err)
	}

	if st.CurrentPhase != models.PhaseTeaching {
		t.Errorf("phase = %s, want teaching", st.CurrentPhase)
	}
	if st.CurrentSubPhase != models.SubPhaseProbeAsk {
		t.Errorf("sub-phase = %s, want probe_ask", st.CurrentSubPhase)
	}
	if len(st.History) != 2 {
		t.Fatalf("history length = %d, want intro + probe question", len(st.History))
	}
	if !strings.Contains(st.History[0].Content, "Let's begin") {
		t.Errorf("first message should be the canned preview, got %q", st.History[0].Content)
	}
}

func TestSessionStartUnknownNodeFails(t *testing.T) {
	nodes, _ := testNode(false)
	svc := newTestService(scriptedTutor(), nodes, &fakeSessions{})

	_, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "missing"))
	if err == nil {
		t.Fatal("expected error for unknown node")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want ContextNotFoundError", err)
	}
}

func TestFullSessionRunsToCompletion(t *testing.T) {
	nodes, node := testNode(false)
	sessions := &fakeSessions{}
	svc := newTestService(scriptedTutor(), nodes, sessions)

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Two objectives, each a probe/explain/quiz cycle of three learner turns.
	for obj := 0; obj < 2; obj++ {
		prevIdx := st.ObjectiveIdx
		st = turn(t, svc, st, "I think I know a little about this")
		st = turn(t, svc, st, "Why does that work?")
		st = turn(t, svc, st, "The main idea is X")
		if st.ObjectiveIdx < prevIdx {
			t.Fatalf("objective index went backwards: %d -> %d", prevIdx, st.ObjectiveIdx)
		}
	}

	if st.CurrentPhase != models.PhaseTesting {
		t.Fatalf("after teaching, phase = %s, want testing", st.CurrentPhase)
	}
	if len(st.FinalTestQuestions) != 2 {
		t.Fatalf("final test has %d questions, want 2", len(st.FinalTestQuestions))
	}

	st = turn(t, svc, st, "Answer to question one")
	st = turn(t, svc, st, "Answer to question two")

	if st.CurrentPhase != models.PhaseCompleted {
		t.Fatalf("phase = %s, want completed", st.CurrentPhase)
	}
	if len(st.CompletedObjectives) != 2 {
		t.Errorf("completed objectives = %v, want both", st.CompletedObjectives)
	}
	if len(st.ObjectiveScores) != 2 {
		t.Errorf("objective scores = %v, want entries for both objectives", st.ObjectiveScores)
	}

	// Graded 0.8 everywhere: obj-1 blends 0.1 -> 0.45, obj-2 blends 0.2 -> 0.5.
	if got := nodes.objectiveMastery["obj-1"]; got != 0.45 {
		t.Errorf("obj-1 mastery = %f, want 0.45", got)
	}
	if got := nodes.objectiveMastery["obj-2"]; got != 0.5 {
		t.Errorf("obj-2 mastery = %f, want 0.5", got)
	}
	if _, ok := nodes.nodeMastery[node.ID]; !ok {
		t.Errorf("node mastery was never written")
	}
	if _, ok := sessions.completed["s1"]; !ok {
		t.Errorf("session record was never completed")
	}
	if st.EndedAt == nil {
		t.Errorf("EndedAt not set")
	}
}

func TestFinalTestRecordsOneAnswerPerTurn(t *testing.T) {
	nodes, _ := testNode(false)
	svc := newTestService(scriptedTutor(), nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for obj := 0; obj < 2; obj++ {
		st = turn(t, svc, st, "I think I know a little about this")
		st = turn(t, svc, st, "Why does that work?")
		st = turn(t, svc, st, "The main idea is X")
	}
	if st.CurrentPhase != models.PhaseTesting {
		t.Fatalf("phase = %s, want testing", st.CurrentPhase)
	}

	st = turn(t, svc, st, "Answer to question one")

	if st.CurrentPhase != models.PhaseTesting {
		t.Fatalf("phase = %s, one answer must not finish a 2-question test", st.CurrentPhase)
	}
	if len(st.FinalTestAnswers) != 1 {
		t.Fatalf("answers = %+v, want exactly one recorded", st.FinalTestAnswers)
	}
	if got := st.FinalTestAnswers[0].Answer; got != "Answer to question one" {
		t.Errorf("answer[0] = %q", got)
	}
	last := st.History[len(st.History)-1]
	if !strings.Contains(last.Content, "Question 2/2") {
		t.Errorf("expected the second question to be asked next, got %q", last.Content)
	}

	st = turn(t, svc, st, "Answer to question two")
	if len(st.FinalTestAnswers) != 2 || st.FinalTestAnswers[1].Answer != "Answer to question two" {
		t.Errorf("answers = %+v, want each learner turn recorded once", st.FinalTestAnswers)
	}
	if st.CurrentPhase != models.PhaseCompleted {
		t.Errorf("phase = %s, want completed after the last answer", st.CurrentPhase)
	}
}

func TestPrereqChoiceRoutesToQuiz(t *testing.T) {
	nodes, _ := testNode(true)
	svc := newTestService(scriptedTutor(), nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if st.CurrentPhase != models.PhasePrereqCheck {
		t.Fatalf("phase = %s, want prerequisite_check", st.CurrentPhase)
	}

	st = turn(t, svc, st, "quiz please")
	if st.CurrentPhase != models.PhasePrereqQuiz {
		t.Fatalf("phase = %s, want prereq_quiz", st.CurrentPhase)
	}
	if st.PrereqChoice != models.PrereqChoiceQuiz {
		t.Errorf("choice = %s, want quiz", st.PrereqChoice)
	}
	last := st.History[len(st.History)-1]
	if !strings.Contains(last.Content, "Warm-up 1/") {
		t.Errorf("expected first warm-up question, got %q", last.Content)
	}

	// Answer every warm-up question; teaching should begin after the last.
	for i := 0; i < len(st.PrereqQuizQuestions); i++ {
		st = turn(t, svc, st, "my answer")
	}
	if st.CurrentPhase != models.PhaseTeaching {
		t.Fatalf("after warm-up, phase = %s, want teaching", st.CurrentPhase)
	}
}

func TestUnclearPrereqChoiceReasks(t *testing.T) {
	nodes, _ := testNode(true)
	svc := newTestService(scriptedTutor(), nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	st = turn(t, svc, st, "hmm, not sure what you mean")
	if st.CurrentPhase != models.PhasePrereqCheck {
		t.Errorf("phase = %s, want prerequisite_check to persist", st.CurrentPhase)
	}
	last := st.History[len(st.History)-1]
	if !strings.Contains(last.Content, "quiz") || !strings.Contains(last.Content, "summary") {
		t.Errorf("expected clarification mentioning both options, got %q", last.Content)
	}
}

func TestProviderTimeoutDuringQuizAskKeepsSessionResumable(t *testing.T) {
	nodes, _ := testNode(false)
	script := scriptedTutor()
	failing := false
	wrapped := &fakeLLM{fn: func(systemPrompt string, history []models.Message) (string, error) {
		last := ""
		if len(history) > 0 {
			last = history[len(history)-1].Content
		}
		if failing && strings.Contains(last, "one short comprehension question") {
			return "", &llm.TimeoutError{Provider: "openai", Err: context.DeadlineExceeded}
		}
		return script.fn(systemPrompt, history)
	}}
	svc := newTestService(wrapped, nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st = turn(t, svc, st, "I know a bit")

	failing = true
	st = turn(t, svc, st, "makes sense")

	if st.CurrentPhase != models.PhaseTeaching || st.CurrentSubPhase != models.SubPhaseQuizAsk {
		t.Fatalf("phase/sub-phase = %s/%s, want teaching/quiz_ask", st.CurrentPhase, st.CurrentSubPhase)
	}
	if st.ObjectiveIdx != 0 {
		t.Errorf("objective index = %d, want 0", st.ObjectiveIdx)
	}
	last := st.History[len(st.History)-1]
	if last.Content != FALLBACK_TUTOR_MESSAGE {
		t.Errorf("expected fallback message, got %q", last.Content)
	}

	// Provider recovers: the next turn asks the question instead of grading
	// an answer that was never prompted.
	failing = false
	st = turn(t, svc, st, "ok, try again")
	last = st.History[len(st.History)-1]
	if !strings.Contains(last.Content, "Quick check") {
		t.Errorf("expected the quiz question after recovery, got %q", last.Content)
	}
	if len(st.MicroQuizzes) != 1 {
		t.Errorf("micro quizzes = %d, want 1", len(st.MicroQuizzes))
	}
}

func TestEmptyQuizReplyUsesFallbackQuestion(t *testing.T) {
	nodes, _ := testNode(false)
	script := scriptedTutor()
	wrapped := &fakeLLM{fn: func(systemPrompt string, history []models.Message) (string, error) {
		last := ""
		if len(history) > 0 {
			last = history[len(history)-1].Content
		}
		if strings.Contains(last, "one short comprehension question") {
			return "  <control>{\"objective_complete\": false}</control>  ", nil
		}
		return script.fn(systemPrompt, history)
	}}
	svc := newTestService(wrapped, nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st = turn(t, svc, st, "I know a bit")
	st = turn(t, svc, st, "makes sense")

	if len(st.MicroQuizzes) != 1 {
		t.Fatalf("micro quizzes = %d, want 1", len(st.MicroQuizzes))
	}
	if got := st.MicroQuizzes[0].Prompt; got != FALLBACK_QUIZ_QUESTION {
		t.Errorf("quiz prompt = %q, want the fallback question", got)
	}
	last := st.History[len(st.History)-1]
	if !strings.Contains(last.Content, FALLBACK_QUIZ_QUESTION) {
		t.Errorf("learner never saw the fallback question, got %q", last.Content)
	}
}

func TestEarlyExitTestsOnlyCompletedObjectives(t *testing.T) {
	nodes, _ := testNode(false)
	svc := newTestService(scriptedTutor(), nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st = turn(t, svc, st, "I know a bit")
	st = turn(t, svc, st, "makes sense")

	// Exit requested mid-objective: the current objective still finishes.
	st.ExitRequested = true
	st = turn(t, svc, st, "the main idea is X")

	if st.CurrentPhase != models.PhaseTesting {
		t.Fatalf("phase = %s, want testing", st.CurrentPhase)
	}
	if len(st.CompletedObjectives) != 1 || st.CompletedObjectives[0] != "obj-1" {
		t.Fatalf("completed = %v, want [obj-1]", st.CompletedObjectives)
	}
	for i, q := range st.FinalTestQuestions {
		for _, id := range q.ObjectiveIDs {
			if id != "obj-1" {
				t.Errorf("question %d covers %s, must only cover completed objectives", i, id)
			}
		}
	}
}

func TestObjectiveCompleteControlSkipsToQuiz(t *testing.T) {
	nodes, _ := testNode(false)
	script := scriptedTutor()
	wrapped := &fakeLLM{fn: func(systemPrompt string, history []models.Message) (string, error) {
		last := ""
		if len(history) > 0 {
			last = history[len(history)-1].Content
		}
		if strings.Contains(last, "The learner answered your probe") {
			return "You clearly know this cold.\n<control>{\"objective_complete\": true}</control>", nil
		}
		return script.fn(systemPrompt, history)
	}}
	svc := newTestService(wrapped, nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	st = turn(t, svc, st, "goroutines are lightweight threads multiplexed onto OS threads")

	if st.CurrentSubPhase != models.SubPhaseQuizAsk {
		t.Fatalf("sub-phase = %s, want quiz_ask after early completion", st.CurrentSubPhase)
	}
	for _, msg := range st.History {
		if strings.Contains(msg.Content, "<control>") {
			t.Errorf("control block leaked to learner: %q", msg.Content)
		}
	}
}

func TestMalformedControlBlockFailsTick(t *testing.T) {
	nodes, _ := testNode(false)
	script := scriptedTutor()
	wrapped := &fakeLLM{fn: func(systemPrompt string, history []models.Message) (string, error) {
		last := ""
		if len(history) > 0 {
			last = history[len(history)-1].Content
		}
		if strings.Contains(last, "The learner answered your probe") {
			return "Nice.\n<control>{not json}</control>", nil
		}
		return script.fn(systemPrompt, history)
	}}
	svc := newTestService(wrapped, nodes, &fakeSessions{})

	st, err := svc.Tick(context.Background(), models.NewSessionState("s1", "p1", "n1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	before := len(st.History)
	st.AppendMessage(models.RoleLearner, "some answer")
	_, err = svc.Tick(context.Background(), st)
	if err == nil {
		t.Fatal("expected malformed control block to fail the tick")
	}
	// The caller's state is untouched beyond its own appended message.
	if len(st.History) != before+1 {
		t.Errorf("failed tick mutated caller state")
	}
}

func TestTickOnCompletedSessionFails(t *testing.T) {
	nodes, _ := testNode(false)
	svc := newTestService(scriptedTutor(), nodes, &fakeSessions{})

	st := models.NewSessionState("s1", "p1", "n1")
	st.CurrentPhase = models.PhaseCompleted
	if _, err := svc.Tick(context.Background(), st); err != ErrSessionCompleted {
		t.Errorf("err = %v, want ErrSessionCompleted", err)
	}
}
