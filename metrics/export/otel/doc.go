// Package otel bridges engine metrics into OpenTelemetry observable
// instruments. Counters and cumulative histogram buckets are observed from a
// snapshot on each collection cycle.
package otel
