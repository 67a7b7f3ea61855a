package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/regions/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// LabelsMarkdown formats the label list as a markdown table. The selected
// row is marked in the Edit column.
func LabelsMarkdown(title string, labels []domain.Label, sel domain.Selection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", title)
	if len(labels) == 0 {
		b.WriteString("_No labels._\n")
		return b.String()
	}
	b.WriteString("| # | Label | UID | Edit |\n|---|---|---|---|\n")
	for i, l := range labels {
		mark := ""
		if sel.UID == l.UID {
			mark = "✎"
		}
		fmt.Fprintf(&b, "| %d | %s | `%s` | %s |\n", i+1, l.DisplayName, l.UID, mark)
	}
	return b.String()
}
