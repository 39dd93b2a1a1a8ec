// Package audit provides the async audit event dispatcher and the built-in
// sinks. Persisting events is the caller's concern: the engine only hands
// events to a Sink.
package audit
