package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/regions/pkg/domain"
)

// createDebugHooks logs every lifecycle event at Debug.
func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnImageLoaded: func(ctx context.Context, e *domain.ImageEvent) {
			logger.Debug("Image Loaded", "surface", e.Surface, "image", e.Image.ID)
		},
		OnAnnotationAdded: func(ctx context.Context, e *domain.AnnotationEvent) {
			logger.Debug("Annotation Added", "uid", e.UID, "label", e.DisplayName)
		},
		OnAnnotationRemoved: func(ctx context.Context, e *domain.AnnotationEvent) {
			logger.Debug("Annotation Removed", "uid", e.UID)
		},
		OnDuplicate: func(ctx context.Context, e *domain.AnnotationEvent) {
			logger.Debug("Duplicate Suppressed", "uid", e.UID)
		},
		OnRemovalTier: func(ctx context.Context, e *domain.RemovalEvent) {
			logger.Debug("Removal Confirmed", "uid", e.UID, "tier", e.Tier.String())
		},
		OnReconciled: func(ctx context.Context, e *domain.ReconcileEvent) {
			logger.Debug("Reconciled", "trigger", e.Report.Trigger,
				"kept", len(e.Report.Kept), "dropped", len(e.Report.Dropped), "added", len(e.Report.Added))
		},
		OnSelectionChanged: func(ctx context.Context, e *domain.SelectionEvent) {
			logger.Debug("Selection Changed", "from", e.Previous.UID, "to", e.Current.UID)
		},
		OnClosed: func(ctx context.Context, e *domain.EventBase) {
			logger.Debug("Workspace Closed", "surface", e.Surface)
		},
	}
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
