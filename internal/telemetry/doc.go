// Package telemetry wraps OpenTelemetry SDK initialization, giving the
// beads coordinator a centralized TracerProvider and MeterProvider setup.
// When telemetry is disabled, a noop implementation is used and no
// external service is contacted.
package telemetry
