/*
Package observability exports workspace activity to Prometheus.

Metrics are fed exclusively through domain.LifecycleHooks, so any workspace
can be instrumented by composing Metrics.Hooks with its other hooks.
*/
package observability
