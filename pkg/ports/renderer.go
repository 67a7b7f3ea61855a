package ports

import (
	"context"

	"github.com/aretw0/regions/pkg/domain"
)

// CompletionListener receives raw "annotation completed" notifications.
type CompletionListener func(domain.CompletionEvent)

// Redrawer requests a repaint of a surface.
type Redrawer interface {
	Redraw(surface string) error
}

// Renderer is the rendering/annotation engine that displays images and hosts tools.
type Renderer interface {
	Redrawer

	// Enable binds the engine to a surface. It must be called before any other
	// surface operation and is idempotent.
	Enable(surface string) error

	// LoadImage decodes the image. It blocks until decoding resolves or ctx is done.
	LoadImage(ctx context.Context, imageID string) (domain.Image, error)

	// DisplayImage shows a decoded image on the surface.
	DisplayImage(surface string, img domain.Image) error

	// RegisterTool makes a tool available to all surfaces.
	RegisterTool(name string) error

	// SetToolActive lets the user draw with the tool on the surface.
	SetToolActive(surface, name string, opts domain.ToolOptions) error

	// SetToolPassive shows existing annotations of the tool without allowing new ones.
	SetToolPassive(surface, name string) error

	// OnCompletion registers a listener for completion notifications on the surface.
	// The returned function removes the listener.
	OnCompletion(surface string, fn CompletionListener) (remove func())
}
