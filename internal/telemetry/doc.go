// Package telemetry wires OpenTelemetry tracing and metrics for instinctd.
// Telemetry is disabled by default; when disabled, the otel API runs against
// its no-op globals. Provider failures degrade gracefully instead of
// failing the process.
package telemetry
