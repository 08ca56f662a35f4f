// Package telemetry wraps OpenTelemetry SDK initialization, providing the
// bridge with a central TracerProvider and MeterProvider configuration.
// When telemetry is disabled, noop implementations are used and no
// external service is contacted.
package telemetry
