package observability

import (
	"context"

	"github.com/aretw0/regions/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for workspaces.
type Metrics struct {
	AnnotationsAdded   prometheus.Counter
	AnnotationsRemoved prometheus.Counter
	Duplicates         prometheus.Counter

	// Reconciliations by trigger
	Reconciliations *prometheus.CounterVec

	// Removals by the tier that confirmed them
	RemovalTiers *prometheus.CounterVec

	// Label count per open surface after the last registry change
	RegistrySize *prometheus.GaugeVec

	ImagesLoaded prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		AnnotationsAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "regions_annotations_added_total",
			Help: "Total annotations admitted into the label list",
		}),
		AnnotationsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "regions_annotations_removed_total",
			Help: "Total annotations deleted by user command",
		}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "regions_duplicates_suppressed_total",
			Help: "Total completion notifications discarded as duplicates",
		}),
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regions_reconciliations_total",
			Help: "Total reconciliations by trigger",
		}, []string{"trigger"}),
		RemovalTiers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regions_removal_tier_total",
			Help: "Total confirmed removals by removal tier",
		}, []string{"tier"}), // tier: "exact", "single_record", "rebuild"
		RegistrySize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regions_registry_size",
			Help: "Number of labels currently listed",
		}, []string{"surface"}),
		ImagesLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "regions_images_loaded_total",
			Help: "Total images decoded and displayed",
		}),
	}
}

// Hooks returns lifecycle hooks that feed the metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	if m == nil {
		return domain.LifecycleHooks{}
	}
	return domain.LifecycleHooks{
		OnImageLoaded: func(context.Context, *domain.ImageEvent) {
			m.ImagesLoaded.Inc()
		},
		OnAnnotationAdded: func(context.Context, *domain.AnnotationEvent) {
			m.AnnotationsAdded.Inc()
		},
		OnAnnotationRemoved: func(context.Context, *domain.AnnotationEvent) {
			m.AnnotationsRemoved.Inc()
		},
		OnDuplicate: func(context.Context, *domain.AnnotationEvent) {
			m.Duplicates.Inc()
		},
		OnReconciled: func(_ context.Context, e *domain.ReconcileEvent) {
			m.Reconciliations.WithLabelValues(string(e.Report.Trigger)).Inc()
		},
		OnRemovalTier: func(_ context.Context, e *domain.RemovalEvent) {
			m.RemovalTiers.WithLabelValues(e.Tier.String()).Inc()
		},
		OnRegistryChanged: func(_ context.Context, e *domain.RegistryEvent) {
			m.RegistrySize.WithLabelValues(e.Surface).Set(float64(len(e.Labels)))
		},
		OnClosed: func(_ context.Context, e *domain.EventBase) {
			m.RegistrySize.DeleteLabelValues(e.Surface)
		},
	}
}
