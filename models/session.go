package models

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Phase is the coarse position of a session inside the engine's state
// machine. Transitions are only legal along the edges in phaseEdges.
type Phase string

const (
	PhaseLoadContext Phase = "load_context"
	PhaseIntro       Phase = "intro"
	PhasePrereqCheck Phase = "prerequisite_check"
	PhaseRecap       Phase = "recap"
	PhasePrereqQuiz  Phase = "prereq_quiz"
	PhaseTeaching    Phase = "teaching"
	PhaseTesting     Phase = "testing"
	PhaseGrading     Phase = "grading"
	PhaseWrapUp      Phase = "wrap_up"
	PhaseCompleted   Phase = "completed"
)

var phaseEdges = map[Phase][]Phase{
	PhaseLoadContext: {PhaseIntro},
	PhaseIntro:       {PhasePrereqCheck, PhaseTeaching},
	PhasePrereqCheck: {PhaseRecap, PhasePrereqQuiz, PhaseTeaching},
	PhaseRecap:       {PhaseTeaching},
	PhasePrereqQuiz:  {PhaseTeaching},
	PhaseTeaching:    {PhaseTesting},
	PhaseTesting:     {PhaseGrading},
	PhaseGrading:     {PhaseWrapUp},
	PhaseWrapUp:      {PhaseCompleted},
	PhaseCompleted:   {},
}

func (p Phase) Valid() bool {
	_, ok := phaseEdges[p]
	return ok
}

func (p Phase) CanTransitionTo(next Phase) bool {
	return lo.Contains(phaseEdges[p], next)
}

// SubPhase is the fine-grained position inside the teaching loop's
// per-objective cycle.
type SubPhase string

const (
	SubPhaseProbeAsk       SubPhase = "probe_ask"
	SubPhaseProbeRespond   SubPhase = "probe_respond"
	SubPhaseExplainPresent SubPhase = "explain_present"
	SubPhaseExplainRespond SubPhase = "explain_respond"
	SubPhaseQuizAsk        SubPhase = "quiz_ask"
	SubPhaseQuizEvaluate   SubPhase = "quiz_evaluate"
)

// IsWaiting reports whether the sub-phase ends its tick waiting for
// learner input.
func (sp SubPhase) IsWaiting() bool {
	switch sp {
	case SubPhaseProbeAsk, SubPhaseExplainPresent, SubPhaseQuizAsk:
		return true
	}
	return false
}

// OnLearnerInput maps a waiting sub-phase to the response sub-phase that
// consumes the learner's message. Non-waiting sub-phases map to themselves.
func (sp SubPhase) OnLearnerInput() SubPhase {
	switch sp {
	case SubPhaseProbeAsk:
		return SubPhaseProbeRespond
	case SubPhaseExplainPresent:
		return SubPhaseExplainRespond
	case SubPhaseQuizAsk:
		return SubPhaseQuizEvaluate
	}
	return sp
}

// PrereqChoice records how the learner wants prior knowledge reviewed.
type PrereqChoice string

const (
	PrereqChoiceUnknown PrereqChoice = ""
	PrereqChoiceQuiz    PrereqChoice = "quiz"
	PrereqChoiceRecap   PrereqChoice = "recap"
)

// SessionState is the aggregate the engine mutates. The driver owns it for
// the session's lifetime; callers persist it between ticks and must never
// run two ticks for the same session concurrently.
type SessionState struct {
	SessionID      string `json:"session_id"`
	ProjectID      string `json:"project_id"`
	NodeID         string `json:"node_id"`
	NodeOriginalID string `json:"node_original_id"`
	NodeTitle      string `json:"node_title"`

	Resources  []Resource  `json:"resources"`
	References []Reference `json:"references"`
	RefChunks  []string    `json:"ref_chunks,omitempty"`

	AllObjectives          []Objective `json:"all_objectives"`
	ObjectivesToTeach      []Objective `json:"objectives_to_teach"`
	ObjectivesAlreadyKnown []Objective `json:"objectives_already_known"`
	PrerequisiteObjectives []Objective `json:"prerequisite_objectives"`

	// CompletedObjectives is insertion-ordered and deduplicated; always a
	// subset of the to-teach ids.
	CompletedObjectives []string `json:"completed_objectives"`

	CurrentPhase    Phase    `json:"current_phase"`
	CurrentSubPhase SubPhase `json:"current_sub_phase"`
	ObjectiveIdx    int      `json:"objective_idx"`

	History []Message `json:"history"`

	PrereqChoice        PrereqChoice   `json:"prereq_choice"`
	PrereqQuizQuestions []QuizQuestion `json:"prereq_quiz_questions"`
	PrereqQuizAnswers   []TestAnswer   `json:"prereq_quiz_answers"`

	MicroQuizzes []QuizQuestion `json:"micro_quizzes"`

	FinalTestQuestions []QuizQuestion `json:"final_test_questions"`
	FinalTestAnswers   []TestAnswer   `json:"final_test_answers"`

	ObjectiveScores map[string]float64 `json:"objective_scores"`

	ExitRequested bool `json:"exit_requested"`
	TurnCount     int  `json:"turn_count"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewSessionState is the single factory for session state; every field gets
// an explicit default here.
func NewSessionState(sessionID, projectID, nodeID string) *SessionState {
	return &SessionState{
		SessionID:              sessionID,
		ProjectID:              projectID,
		NodeID:                 nodeID,
		Resources:              []Resource{},
		References:             []Reference{},
		AllObjectives:          []Objective{},
		ObjectivesToTeach:      []Objective{},
		ObjectivesAlreadyKnown: []Objective{},
		PrerequisiteObjectives: []Objective{},
		CompletedObjectives:    []string{},
		CurrentPhase:           PhaseLoadContext,
		CurrentSubPhase:        SubPhaseProbeAsk,
		ObjectiveIdx:           0,
		History:                []Message{},
		PrereqChoice:           PrereqChoiceUnknown,
		PrereqQuizQuestions:    []QuizQuestion{},
		PrereqQuizAnswers:      []TestAnswer{},
		MicroQuizzes:           []QuizQuestion{},
		FinalTestQuestions:     []QuizQuestion{},
		FinalTestAnswers:       []TestAnswer{},
		ObjectiveScores:        map[string]float64{},
		ExitRequested:          false,
		TurnCount:              0,
		StartedAt:              time.Now().UTC(),
	}
}

// TransitionTo moves the session to the next phase, rejecting any edge not
// declared in the state machine.
func (st *SessionState) TransitionTo(next Phase) error {
	if !st.CurrentPhase.CanTransitionTo(next) {
		return fmt.Errorf("illegal phase transition %s -> %s", st.CurrentPhase, next)
	}
	st.CurrentPhase = next
	return nil
}

// AppendMessage appends to the conversation history; history is append-only
// and never reordered.
func (st *SessionState) AppendMessage(role, content string) {
	st.History = append(st.History, Message{Role: role, Content: content})
	st.TurnCount++
}

// LastLearnerMessage returns the most recent message only when it came from
// the learner; a tick consumes at most that one message.
func (st *SessionState) LastLearnerMessage() (string, bool) {
	if len(st.History) == 0 {
		return "", false
	}
	last := st.History[len(st.History)-1]
	if last.Role != RoleLearner {
		return "", false
	}
	return last.Content, true
}

func (st *SessionState) CurrentObjective() (Objective, bool) {
	if st.ObjectiveIdx < len(st.ObjectivesToTeach) {
		return st.ObjectivesToTeach[st.ObjectiveIdx], true
	}
	return Objective{}, false
}

func (st *SessionState) HasPrerequisites() bool {
	return len(st.PrerequisiteObjectives) > 0
}

// MarkObjectiveCompleted records an objective id, keeping insertion order
// and dropping duplicates.
func (st *SessionState) MarkObjectiveCompleted(objectiveID string) {
	if !lo.Contains(st.CompletedObjectives, objectiveID) {
		st.CompletedObjectives = append(st.CompletedObjectives, objectiveID)
	}
}

// ObjectivesForTesting selects what the final test covers: everything that
// needed teaching, or only what was completed when the learner exited early.
func (st *SessionState) ObjectivesForTesting() []Objective {
	if !st.ExitRequested {
		return st.ObjectivesToTeach
	}
	return lo.Filter(st.ObjectivesToTeach, func(o Objective, _ int) bool {
		return lo.Contains(st.CompletedObjectives, o.ID)
	})
}

// OverallScore is the arithmetic mean of the per-objective scores.
func (st *SessionState) OverallScore() float64 {
	if len(st.ObjectiveScores) == 0 {
		return 0
	}
	return lo.Sum(lo.Values(st.ObjectiveScores)) / float64(len(st.ObjectiveScores))
}

// DurationMinutes reports elapsed session time; zero until the session ends.
func (st *SessionState) DurationMinutes() float64 {
	if st.EndedAt == nil {
		return 0
	}
	return st.EndedAt.Sub(st.StartedAt).Minutes()
}

// Clone deep-copies the state so a failed tick burst cannot corrupt the
// caller's last known-good copy.
func (st *SessionState) Clone() *SessionState {
	dup := *st
	dup.Resources = append([]Resource(nil), st.Resources...)
	dup.References = append([]Reference(nil), st.References...)
	dup.RefChunks = append([]string(nil), st.RefChunks...)
	dup.AllObjectives = append([]Objective(nil), st.AllObjectives...)
	dup.ObjectivesToTeach = append([]Objective(nil), st.ObjectivesToTeach...)
	dup.ObjectivesAlreadyKnown = append([]Objective(nil), st.ObjectivesAlreadyKnown...)
	dup.PrerequisiteObjectives = append([]Objective(nil), st.PrerequisiteObjectives...)
	dup.CompletedObjectives = append([]string(nil), st.CompletedObjectives...)
	dup.History = append([]Message(nil), st.History...)
	dup.PrereqQuizQuestions = cloneQuestions(st.PrereqQuizQuestions)
	dup.PrereqQuizAnswers = append([]TestAnswer(nil), st.PrereqQuizAnswers...)
	dup.MicroQuizzes = cloneQuestions(st.MicroQuizzes)
	dup.FinalTestQuestions = cloneQuestions(st.FinalTestQuestions)
	dup.FinalTestAnswers = append([]TestAnswer(nil), st.FinalTestAnswers...)
	dup.ObjectiveScores = lo.Assign(map[string]float64{}, st.ObjectiveScores)
	if st.EndedAt != nil {
		ended := *st.EndedAt
		dup.EndedAt = &ended
	}
	return &dup
}

func cloneQuestions(qs []QuizQuestion) []QuizQuestion {
	out := make([]QuizQuestion, len(qs))
	for i, q := range qs {
		out[i] = q
		out[i].Choices = append([]string(nil), q.Choices...)
		out[i].ObjectiveIDs = append([]string(nil), q.ObjectiveIDs...)
	}
	return out
}

// FormatObjectives renders objectives as a bullet list for prompts.
func FormatObjectives(objectives []Objective) string {
	if len(objectives) == 0 {
		return "No objectives"
	}
	lines := lo.Map(objectives, func(o Objective, _ int) string {
		return "- " + o.Description
	})
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}
	return out
}
