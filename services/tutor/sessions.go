package tutor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"autodidact/models"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStateStore persists session state and the durable transcript
// between ticks.
type SessionStateStore interface {
	CreateSession(ctx context.Context, sessionID, projectID, nodeID string) error
	SaveState(ctx context.Context, st *models.SessionState) error
	GetState(ctx context.Context, sessionID string) (*models.SessionState, error)
	AppendTranscript(ctx context.Context, sessionID string, turnIdx int, role, content string) error
	GetTranscript(ctx context.Context, sessionID string) ([]models.Message, error)
}

// Manager is the boundary between transport and engine: it creates sessions,
// feeds learner turns into the driver, and persists whatever state the
// driver hands back. Ticks for one session must not run concurrently; the
// HTTP layer serializes per session.
type Manager struct {
	engine *Service
	store  SessionStateStore
}

func NewManager(engine *Service, store SessionStateStore) *Manager {
	return &Manager{engine: engine, store: store}
}

// Start creates a session against a node and runs the opening burst, leaving
// the session waiting for the learner's first reply.
func (m *Manager) Start(ctx context.Context, projectID, nodeID string) (*models.SessionState, error) {
	sessionID := uuid.NewString()
	if err := m.store.CreateSession(ctx, sessionID, projectID, nodeID); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	st := models.NewSessionState(sessionID, projectID, nodeID)
	advanced, err := m.engine.Tick(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("starting session %s: %w", sessionID, err)
	}
	if err := m.persist(ctx, advanced, 0); err != nil {
		return nil, err
	}
	log.Printf("[INFO] session %s started (project %s, node %s)", sessionID, projectID, nodeID)
	return advanced, nil
}

// HandleLearnerTurn appends the learner's message and advances the session.
// On engine failure nothing is persisted; the stored state stays at the last
// good turn and the learner can retry.
func (m *Manager) HandleLearnerTurn(ctx context.Context, sessionID, text string) (*models.SessionState, error) {
	st, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.CurrentPhase == models.PhaseCompleted {
		return nil, ErrSessionCompleted
	}

	prior := len(st.History)
	st.AppendMessage(models.RoleLearner, text)
	m.engine.journal.Message(sessionID, models.RoleLearner, text, string(st.CurrentPhase))

	advanced, err := m.engine.Tick(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("advancing session %s: %w", sessionID, err)
	}
	if err := m.persist(ctx, advanced, prior); err != nil {
		return nil, err
	}
	return advanced, nil
}

// RequestExit flags the session to end early. Teaching finishes the current
// objective on the learner's next turn, then jumps to the final test over
// what was completed.
func (m *Manager) RequestExit(ctx context.Context, sessionID string) (*models.SessionState, error) {
	st, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.CurrentPhase == models.PhaseCompleted {
		return nil, ErrSessionCompleted
	}

	st.ExitRequested = true
	m.engine.journal.Event(sessionID, "Learner requested early exit")
	if err := m.store.SaveState(ctx, st); err != nil {
		return nil, fmt.Errorf("saving session %s: %w", sessionID, err)
	}
	log.Printf("[INFO] session %s: early exit requested", sessionID)
	return st, nil
}

// Get returns the stored state without advancing anything.
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.SessionState, error) {
	return m.load(ctx, sessionID)
}

// Transcript returns the durable conversation record for a session, in turn
// order. Works for completed sessions too.
func (m *Manager) Transcript(ctx context.Context, sessionID string) ([]models.Message, error) {
	if _, err := m.load(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := m.store.GetTranscript(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading transcript for session %s: %w", sessionID, err)
	}
	return messages, nil
}

func (m *Manager) load(ctx context.Context, sessionID string) (*models.SessionState, error) {
	st, err := m.store.GetState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if st == nil {
		return nil, ErrSessionNotFound
	}
	return st, nil
}

// persist saves the advanced state and appends every message the turn
// produced to the transcript. Transcript failures are non-fatal.
func (m *Manager) persist(ctx context.Context, st *models.SessionState, priorHistoryLen int) error {
	if err := m.store.SaveState(ctx, st); err != nil {
		return fmt.Errorf("saving session %s: %w", st.SessionID, err)
	}
	for i := priorHistoryLen; i < len(st.History); i++ {
		msg := st.History[i]
		if err := m.store.AppendTranscript(ctx, st.SessionID, i, msg.Role, msg.Content); err != nil {
			log.Printf("[WARN] session %s: appending transcript turn %d: %v", st.SessionID, i, err)
		}
	}
	return nil
}
