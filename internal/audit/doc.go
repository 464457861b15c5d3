// Package audit relays authentication events to pluggable sinks off the request path.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, zap logger, fan-out).
//   - [Dispatcher]: buffered async relay; drops or blocks when the buffer is full.
//   - [Event]: one audit record.
//
// The engine decides which events to emit. This package only buffers and delivers.
package audit
