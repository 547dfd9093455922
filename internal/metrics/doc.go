// Package metrics records export run metrics.
//
// Components receive a Recorder by injection and default to NoopRecorder, so
// metric calls never need nil checks. The watch command swaps in a
// PrometheusRecorder and serves it through HTTPHandler.
package metrics
