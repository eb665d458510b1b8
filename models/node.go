package models

import "time"

// Node is one teachable unit of the prerequisite knowledge graph.
type Node struct {
	ID         string      `json:"id" db:"id"`
	ProjectID  string      `json:"project_id" db:"project_id"`
	OriginalID string      `json:"original_id" db:"original_id"`
	Label      string      `json:"label" db:"label"`
	Summary    string      `json:"summary" db:"summary"`
	Mastery    float64     `json:"mastery" db:"mastery"`
	References []Reference `json:"references,omitempty"`
	Objectives []Objective `json:"objectives,omitempty"`
}

// Reference points into a project resource, cited in prompts as [RID §loc].
type Reference struct {
	RID     string `json:"rid"`
	Loc     string `json:"loc,omitempty"`
	Section string `json:"section,omitempty"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Date    string `json:"date,omitempty"`
}

func (r Reference) Location() string {
	if r.Loc != "" {
		return r.Loc
	}
	return r.Section
}

type Project struct {
	ID        string     `json:"id" db:"id"`
	Topic     string     `json:"topic" db:"topic"`
	Resources []Resource `json:"resources,omitempty"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Resource is project-level reference material surfaced to the tutor.
type Resource struct {
	RID   string `json:"rid"`
	Title string `json:"title"`
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
}
