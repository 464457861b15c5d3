// Package otel publishes goOTP engine metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter. The latency histogram is
// reported as one cumulative bucket gauge with an "le" attribute per bound
// plus a count gauge. A single callback reads the engine snapshot on each
// collection. Callers own the MeterProvider.
package otel
