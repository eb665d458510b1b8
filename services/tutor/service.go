package tutor

import (
	"context"

	"autodidact/models"
	"autodidact/services/llm"
)

// NodeStore is the slice of the graph repository the engine needs.
type NodeStore interface {
	GetNodeWithObjectives(ctx context.Context, nodeID string) (*models.Node, error)
	GetPrerequisiteObjectives(ctx context.Context, projectID, nodeOriginalID string) ([]models.Objective, error)
	UpdateObjectiveMastery(ctx context.Context, objectiveID string, mastery float64) error
	UpdateNodeMastery(ctx context.Context, nodeID string, mastery float64) error
}

type ProjectStore interface {
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
}

// SessionStore records session completion; state persistence itself lives
// with the caller.
type SessionStore interface {
	CompleteSession(ctx context.Context, sessionID string, finalScore, durationMinutes float64) error
}

// SessionLog is the human-readable session journal. Implementations must not
// fail the session: logging problems are swallowed with a warning.
type SessionLog interface {
	Start(st *models.SessionState)
	Message(sessionID, role, content, phase string)
	Event(sessionID, description string)
	End(st *models.SessionState)
}

// ReferenceRetriever looks up reference-material excerpts relevant to a topic.
type ReferenceRetriever interface {
	QueryReferences(ctx context.Context, query string, limit int) ([]string, error)
}

// Service drives a tutoring session through its phases. It owns no
// persistence; callers hand it a state, it hands back the advanced state.
type Service struct {
	llm      llm.Client
	nodes    NodeStore
	projects ProjectStore
	sessions SessionStore
	journal  SessionLog
	refs     ReferenceRetriever
}

// NewService wires the engine. journal and refs may be nil; a nil journal is
// replaced with a no-op sink and a nil retriever disables reference lookup.
func NewService(client llm.Client, nodes NodeStore, projects ProjectStore, sessions SessionStore, journal SessionLog, refs ReferenceRetriever) *Service {
	if journal == nil {
		journal = noopJournal{}
	}
	return &Service{
		llm:      client,
		nodes:    nodes,
		projects: projects,
		sessions: sessions,
		journal:  journal,
		refs:     refs,
	}
}

// say appends an assistant message to the history and mirrors it into the
// session journal.
func (s *Service) say(st *models.SessionState, content string) {
	st.AppendMessage(models.RoleAssistant, content)
	s.journal.Message(st.SessionID, models.RoleAssistant, content, string(st.CurrentPhase))
}

type noopJournal struct{}

func (noopJournal) Start(*models.SessionState) {}
func (noopJournal) Message(_, _, _, _ string)  {}
func (noopJournal) Event(_, _ string)          {}
func (noopJournal) End(*models.SessionState)   {}
