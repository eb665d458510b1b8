package sessionlog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"autodidact/models"
)

// Logger writes one human-readable markdown file per session. It is a
// best-effort journal: every failure is logged and swallowed, a broken disk
// must never break a session.
type Logger struct {
	dir string

	mu    sync.Mutex
	paths map[string]string
}

func NewLogger(dir string) *Logger {
	return &Logger{dir: dir, paths: map[string]string{}}
}

// Start creates the session file with a header describing what the session
// will cover.
func (l *Logger) Start(st *models.SessionState) {
	dir := filepath.Join(l.dir, st.ProjectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[WARN] session log: creating %s: %v", dir, err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.md", time.Now().UTC().Format("20060102_150405"), st.SessionID))

	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", st.SessionID)
	fmt.Fprintf(&b, "- **Topic:** %s\n", st.NodeTitle)
	fmt.Fprintf(&b, "- **Project:** %s\n", st.ProjectID)
	fmt.Fprintf(&b, "- **Started:** %s\n", st.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Objectives to teach:** %d\n", len(st.ObjectivesToTeach))
	fmt.Fprintf(&b, "- **Prerequisites:** %d\n\n", len(st.PrerequisiteObjectives))
	if len(st.ObjectivesToTeach) > 0 {
		b.WriteString("## Objectives\n\n")
		for _, o := range st.ObjectivesToTeach {
			fmt.Fprintf(&b, "- %s\n", o.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Transcript\n\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		log.Printf("[WARN] session log: writing %s: %v", path, err)
		return
	}

	l.mu.Lock()
	l.paths[st.SessionID] = path
	l.mu.Unlock()
}

// Message appends one conversation turn.
func (l *Logger) Message(sessionID, role, content, phase string) {
	speaker := "Tutor"
	if role == models.RoleLearner {
		speaker = "Learner"
	}
	l.append(sessionID, fmt.Sprintf("**%s** _(%s)_:\n\n%s\n\n", speaker, phase, content))
}

// Event appends a non-conversational marker, like a phase change.
func (l *Logger) Event(sessionID, description string) {
	l.append(sessionID, fmt.Sprintf("> %s\n\n", description))
}

// End appends the session footer with final scores.
func (l *Logger) End(st *models.SessionState) {
	var b strings.Builder
	b.WriteString("## Result\n\n")
	fmt.Fprintf(&b, "- **Overall score:** %.0f%%\n", st.OverallScore()*100)
	fmt.Fprintf(&b, "- **Objectives completed:** %d/%d\n", len(st.CompletedObjectives), len(st.ObjectivesToTeach))
	fmt.Fprintf(&b, "- **Duration:** %.1f minutes\n", st.DurationMinutes())
	l.append(st.SessionID, b.String())
}

func (l *Logger) append(sessionID, text string) {
	l.mu.Lock()
	path, ok := l.paths[sessionID]
	l.mu.Unlock()
	if !ok {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[WARN] session log: opening %s: %v", path, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		log.Printf("[WARN] session log: appending to %s: %v", path, err)
	}
}
