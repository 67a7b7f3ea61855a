package domain

import "fmt"

// Annotation is a locally registered free-form region.
type Annotation struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`

	// Payload references the tool data owned by the rendering engine.
	// It is carried, never interpreted.
	Payload map[string]any `json:"-"`

	Visible bool `json:"visible"`
	Active  bool `json:"active"`
}

// Label is the presentation view of an annotation.
type Label struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
}

// Label returns the presentation view.
func (a Annotation) Label() Label {
	return Label{UID: a.UID, DisplayName: a.DisplayName}
}

// LabelName builds the display name for the n-th annotation of a session.
func LabelName(n int) string {
	return fmt.Sprintf("%s %d", LabelPrefix, n)
}
