package ports

import (
	"context"

	"github.com/aretw0/regions/pkg/domain"
)

// Workspace is the command surface exposed to presentation layers.
type Workspace interface {
	// LoadImage tears down the previous image and displays a new one.
	LoadImage(ctx context.Context, ref string) (domain.Image, error)

	// Complete forwards a raw completion notification.
	Complete(evt domain.CompletionEvent)

	// Flush settles a pending completion immediately.
	Flush()

	// Add prepares the surface and activates the drawing tool.
	Add(ctx context.Context) error

	// Edit focuses an annotation. Returns false when it could not be activated.
	Edit(ctx context.Context, uid string) (bool, error)

	// Delete removes an annotation. Returns false when removal could not be confirmed.
	Delete(ctx context.Context, uid string) (bool, error)

	// Reconcile rebuilds the label list from the external store.
	Reconcile(ctx context.Context) (domain.ReconcileReport, error)

	Labels() []domain.Label
	Selection() domain.Selection
	Image() (domain.Image, bool)

	// Close removes listeners and cancels pending timers.
	Close() error
}
