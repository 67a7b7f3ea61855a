package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventImageLoaded       EventType = "image_loaded"
	EventAnnotationAdded   EventType = "annotation_added"
	EventAnnotationRemoved EventType = "annotation_removed"
	EventDuplicate         EventType = "duplicate_suppressed"
	EventRemovalTier       EventType = "removal_tier"
	EventReconciled        EventType = "reconciled"
	EventSelectionChanged  EventType = "selection_changed"
	EventRegistryChanged   EventType = "registry_changed"
	EventClosed            EventType = "closed"
)

// ReconcileTrigger names the reason a reconciliation ran.
type ReconcileTrigger string

const (
	TriggerRemoveFailed   ReconcileTrigger = "remove_failed"
	TriggerActivateFailed ReconcileTrigger = "activate_failed"
	TriggerBeforeDraw     ReconcileTrigger = "before_draw"
	TriggerDrift          ReconcileTrigger = "drift"
	TriggerManual         ReconcileTrigger = "manual"
)

// RemovalTier identifies which removal strategy succeeded.
type RemovalTier int

const (
	TierExact RemovalTier = iota + 1
	TierSingleRecord
	TierRebuild
)

func (t RemovalTier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSingleRecord:
		return "single_record"
	case TierRebuild:
		return "rebuild"
	}
	return "unknown"
}

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Surface   string    `json:"surface"`
}

// NewEventBase stamps an event of type t on surface.
func NewEventBase(t EventType, surface string) EventBase {
	return EventBase{Timestamp: time.Now(), Type: t, Surface: surface}
}

// ImageEvent is emitted once an image has been decoded and displayed.
type ImageEvent struct {
	EventBase
	Image Image `json:"image"`
}

// AnnotationEvent is emitted when an annotation enters or leaves the registry,
// or when a duplicate notification is absorbed.
type AnnotationEvent struct {
	EventBase
	UID         string `json:"uid"`
	DisplayName string `json:"display_name,omitempty"`
}

// RemovalEvent reports the tier that removed a record from the external store.
type RemovalEvent struct {
	EventBase
	UID  string      `json:"uid"`
	Tier RemovalTier `json:"tier"`
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	Trigger ReconcileTrigger `json:"trigger"`
	Kept    []string         `json:"kept"`
	Dropped []string         `json:"dropped"`
	Added   []string         `json:"added"`
}

// Changed reports whether the pass altered the registry membership.
func (r ReconcileReport) Changed() bool {
	return len(r.Dropped) > 0 || len(r.Added) > 0
}

// ReconcileEvent wraps a report for hooks.
type ReconcileEvent struct {
	EventBase
	Report ReconcileReport `json:"report"`
}

// SelectionEvent is emitted on every selection transition.
type SelectionEvent struct {
	EventBase
	Previous Selection `json:"previous"`
	Current  Selection `json:"current"`
}

// RegistryEvent carries the label list before and after a committed change.
type RegistryEvent struct {
	EventBase
	Previous          []Label   `json:"previous"`
	Labels            []Label   `json:"labels"`
	PreviousSelection Selection `json:"previous_selection"`
	Selection         Selection `json:"selection"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run while the workspace is locked and must not call back into it.
type LifecycleHooks struct {
	OnImageLoaded       func(context.Context, *ImageEvent)
	OnAnnotationAdded   func(context.Context, *AnnotationEvent)
	OnAnnotationRemoved func(context.Context, *AnnotationEvent)
	OnDuplicate         func(context.Context, *AnnotationEvent)
	OnRemovalTier       func(context.Context, *RemovalEvent)
	OnReconciled        func(context.Context, *ReconcileEvent)
	OnSelectionChanged  func(context.Context, *SelectionEvent)
	OnRegistryChanged   func(context.Context, *RegistryEvent)
	OnClosed            func(context.Context, *EventBase)
}

// ComposeHooks fans every callback out to each of the given hook sets in order.
func ComposeHooks(sets ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnImageLoaded: func(ctx context.Context, e *ImageEvent) {
			for _, h := range sets {
				if h.OnImageLoaded != nil {
					h.OnImageLoaded(ctx, e)
				}
			}
		},
		OnAnnotationAdded: func(ctx context.Context, e *AnnotationEvent) {
			for _, h := range sets {
				if h.OnAnnotationAdded != nil {
					h.OnAnnotationAdded(ctx, e)
				}
			}
		},
		OnAnnotationRemoved: func(ctx context.Context, e *AnnotationEvent) {
			for _, h := range sets {
				if h.OnAnnotationRemoved != nil {
					h.OnAnnotationRemoved(ctx, e)
				}
			}
		},
		OnDuplicate: func(ctx context.Context, e *AnnotationEvent) {
			for _, h := range sets {
				if h.OnDuplicate != nil {
					h.OnDuplicate(ctx, e)
				}
			}
		},
		OnRemovalTier: func(ctx context.Context, e *RemovalEvent) {
			for _, h := range sets {
				if h.OnRemovalTier != nil {
					h.OnRemovalTier(ctx, e)
				}
			}
		},
		OnReconciled: func(ctx context.Context, e *ReconcileEvent) {
			for _, h := range sets {
				if h.OnReconciled != nil {
					h.OnReconciled(ctx, e)
				}
			}
		},
		OnSelectionChanged: func(ctx context.Context, e *SelectionEvent) {
			for _, h := range sets {
				if h.OnSelectionChanged != nil {
					h.OnSelectionChanged(ctx, e)
				}
			}
		},
		OnRegistryChanged: func(ctx context.Context, e *RegistryEvent) {
			for _, h := range sets {
				if h.OnRegistryChanged != nil {
					h.OnRegistryChanged(ctx, e)
				}
			}
		},
		OnClosed: func(ctx context.Context, e *EventBase) {
			for _, h := range sets {
				if h.OnClosed != nil {
					h.OnClosed(ctx, e)
				}
			}
		},
	}
}
