// Package credential defines the persistence contract the token lifecycle
// engine depends on: the stored user record, the hidden fields that must be
// requested explicitly, and the conditional single-row update that serves as
// the engine's only concurrency primitive.
//
// Backends live under store/. Every backend must pass store/storetest.
package credential
