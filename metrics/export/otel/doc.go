// Package otel publishes engine counters through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter and the validate latency
// histogram becomes one Int64ObservableGauge per cumulative bucket. The
// caller owns the MeterProvider.
package otel
