package core

import "time"

// Template is a nurturing message template. Templates are immutable once
// published to a TemplateIndex; revisions are published under a new ID.
// Embedding holds the vector used for semantic matching; when empty the
// index computes it from Subject and Body at publish time.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Channel   string    `json:"channel,omitempty"`
	Stages    []Stage   `json:"stages,omitempty"` // empty = stage-agnostic
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AppliesTo reports whether the template targets the given stage. A
// template with no stage tags is stage-agnostic and applies everywhere.
func (t Template) AppliesTo(stage Stage) bool {
	if len(t.Stages) == 0 {
		return true
	}
	for _, s := range t.Stages {
		if s == stage {
			return true
		}
	}
	return false
}
