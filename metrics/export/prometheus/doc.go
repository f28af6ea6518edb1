// Package prometheus provides Prometheus collectors for identity metrics.
//
// [NewPrometheusExporter] accepts an [identity.Engine] and exposes an [http.Handler]
// that renders all identity counters and histograms in Prometheus text exposition format.
// Counter names are prefixed identity_*_total; the single histogram is
// identity_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
