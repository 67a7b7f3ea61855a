// Package reconcile rebuilds the local annotation registry from the external
// store when a store mutation could not be confirmed or may have drifted.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/regions/internal/logging"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/identity"
	"github.com/aretw0/regions/pkg/registry"
	"github.com/aretw0/regions/pkg/store"
)

// EntrySource lists the external store records with their derived uids.
// *store.Adapter implements it.
type EntrySource interface {
	Entries(ctx context.Context) ([]store.Match, error)
}

// Reconciler owns no state of its own; it rewrites the registry and guard it
// was built with.
type Reconciler struct {
	source   EntrySource
	registry *registry.Registry
	guard    *identity.Guard
	surface  string
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
}

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Reconciler) {
		r.hooks = hooks
	}
}

// WithSurface tags emitted events with the surface name.
func WithSurface(surface string) Option {
	return func(r *Reconciler) {
		r.surface = surface
	}
}

// New creates a Reconciler.
func New(source EntrySource, reg *registry.Registry, guard *identity.Guard, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:   source,
		registry: reg,
		guard:    guard,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run replaces the registry with the entries still present in the store, in
// their existing order, followed by store records the registry did not know,
// in store order. New entries continue the label counter. The guard is reset
// to exactly the resulting uids.
//
// Running it twice with no store change in between yields the same registry.
func (r *Reconciler) Run(ctx context.Context, trigger domain.ReconcileTrigger) (domain.ReconcileReport, error) {
	report := domain.ReconcileReport{Trigger: trigger}

	entries, err := r.source.Entries(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile (%s): %w", trigger, err)
	}

	present := make(map[string]store.Match, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := present[e.UID]; dup {
			continue
		}
		present[e.UID] = e
		order = append(order, e.UID)
	}

	known := make(map[string]struct{}, len(entries))
	kept := make([]domain.Annotation, 0, r.registry.Len())
	for _, a := range r.registry.Snapshot() {
		m, ok := present[a.UID]
		if !ok {
			report.Dropped = append(report.Dropped, a.UID)
			continue
		}
		a.Payload = m.Record.Data
		a.Visible = m.Record.Visible
		a.Active = m.Record.Active
		kept = append(kept, a)
		known[a.UID] = struct{}{}
		report.Kept = append(report.Kept, a.UID)
	}

	var fresh []domain.Annotation
	for _, uid := range order {
		if _, ok := known[uid]; ok {
			continue
		}
		m := present[uid]
		fresh = append(fresh, domain.Annotation{
			UID:     uid,
			Payload: m.Record.Data,
			Visible: m.Record.Visible,
			Active:  m.Record.Active,
		})
		report.Added = append(report.Added, uid)
	}

	r.registry.Rebuild(kept, fresh)
	r.guard.Reset(r.registry.UIDs()...)

	level := slog.LevelDebug
	if report.Changed() {
		level = slog.LevelInfo
	}
	r.logger.Log(ctx, level, "Reconciled registry",
		"trigger", string(trigger),
		"kept", len(report.Kept),
		"dropped", len(report.Dropped),
		"added", len(report.Added),
	)

	if r.hooks.OnReconciled != nil {
		r.hooks.OnReconciled(ctx, &domain.ReconcileEvent{
			EventBase: domain.NewEventBase(domain.EventReconciled, r.surface),
			Report:    report,
		})
	}
	return report, nil
}
