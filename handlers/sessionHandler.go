package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"autodidact/models"
	"autodidact/services/tutor"

	"github.com/gorilla/mux"
)

type StartSessionRequest struct {
	ProjectID string `json:"project_id"`
	NodeID    string `json:"node_id"`
}

type LearnerMessageRequest struct {
	Message string `json:"message"`
}

// SessionResponse is what every session endpoint returns: the visible tail
// of the conversation plus enough state for a client to render progress.
type SessionResponse struct {
	SessionID           string             `json:"session_id"`
	Phase               models.Phase       `json:"phase"`
	Messages            []models.Message   `json:"messages"`
	ObjectiveIdx        int                `json:"objective_idx"`
	ObjectivesToTeach   int                `json:"objectives_to_teach"`
	CompletedObjectives []string           `json:"completed_objectives"`
	ExitRequested       bool               `json:"exit_requested"`
	Scores              map[string]float64 `json:"scores,omitempty"`
	OverallScore        float64            `json:"overall_score"`
}

// TranscriptResponse is the full durable conversation record, unlike
// SessionResponse's per-turn message tail.
type TranscriptResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
}

type SessionHandler struct {
	manager *tutor.Manager

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionHandler(manager *tutor.Manager) *SessionHandler {
	return &SessionHandler{manager: manager, locks: map[string]*sync.Mutex{}}
}

func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions", h.StartSession).Methods("POST")
	router.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/sessions/{id}/messages", h.PostMessage).Methods("POST")
	router.HandleFunc("/sessions/{id}/exit", h.RequestExit).Methods("POST")
	router.HandleFunc("/sessions/{id}/transcript", h.GetTranscript).Methods("GET")
}

func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	log.Printf("[INFO] Received start session request")

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode start session request: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.ProjectID == "" || req.NodeID == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "project_id and node_id are required")
		return
	}

	st, err := h.manager.Start(r.Context(), req.ProjectID, req.NodeID)
	if err != nil {
		var notFound *tutor.ContextNotFoundError
		if errors.As(err, &notFound) {
			h.writeErrorResponse(w, http.StatusNotFound, notFound.Error())
			return
		}
		log.Printf("[ERROR] Failed to start session: %v", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	log.Printf("[INFO] Session %s started", st.SessionID)
	h.writeJSONResponse(w, http.StatusCreated, sessionResponse(st, 0))
}

func (h *SessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	log.Printf("[INFO] Received learner message for session %s", sessionID)

	var req LearnerMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[ERROR] Failed to decode learner message: %v", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	// Ticks for one session must never interleave.
	lock := h.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	before, err := h.manager.Get(r.Context(), sessionID)
	if err != nil {
		h.handleSessionError(w, sessionID, err)
		return
	}
	priorLen := len(before.History)

	st, err := h.manager.HandleLearnerTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		h.handleSessionError(w, sessionID, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, sessionResponse(st, priorLen))
}

func (h *SessionHandler) RequestExit(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	log.Printf("[INFO] Received exit request for session %s", sessionID)

	lock := h.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	st, err := h.manager.RequestExit(r.Context(), sessionID)
	if err != nil {
		h.handleSessionError(w, sessionID, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, sessionResponse(st, len(st.History)))
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	st, err := h.manager.Get(r.Context(), sessionID)
	if err != nil {
		h.handleSessionError(w, sessionID, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, sessionResponse(st, 0))
}

func (h *SessionHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	messages, err := h.manager.Transcript(r.Context(), sessionID)
	if err != nil {
		h.handleSessionError(w, sessionID, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, TranscriptResponse{
		SessionID: sessionID,
		Messages:  messages,
	})
}

// sessionResponse includes only the messages produced since priorLen, so a
// posting client gets back just the tutor's replies to its turn.
func sessionResponse(st *models.SessionState, priorLen int) SessionResponse {
	if priorLen > len(st.History) {
		priorLen = len(st.History)
	}
	return SessionResponse{
		SessionID:           st.SessionID,
		Phase:               st.CurrentPhase,
		Messages:            st.History[priorLen:],
		ObjectiveIdx:        st.ObjectiveIdx,
		ObjectivesToTeach:   len(st.ObjectivesToTeach),
		CompletedObjectives: st.CompletedObjectives,
		ExitRequested:       st.ExitRequested,
		Scores:              st.ObjectiveScores,
		OverallScore:        st.OverallScore(),
	}
}

func (h *SessionHandler) handleSessionError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, tutor.ErrSessionNotFound):
		h.writeErrorResponse(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, tutor.ErrSessionCompleted):
		h.writeErrorResponse(w, http.StatusConflict, "Session already completed")
	default:
		log.Printf("[ERROR] Session %s request failed: %v", sessionID, err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *SessionHandler) sessionLock(sessionID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[sessionID] = lock
	}
	return lock
}

func (h *SessionHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *SessionHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
