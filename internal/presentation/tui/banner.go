package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the regions banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  _ __ ___  __ _(_) ___  _ __  ___", "#34d399"},
		{" | '__/ _ \\/ _` | |/ _ \\| '_ \\/ __|", "#2dd4bf"},
		{" | | |  __/ (_| | | (_) | | | \\__ \\", "#22d3ee"},
		{" |_|  \\___|\\__, |_|\\___/|_| |_|___/", "#38bdf8"},
		{"           |___/", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
