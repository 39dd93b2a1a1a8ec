// Package internal holds helpers private to nonceauth: nonce and secret
// generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - confloader: koanf-backed configuration loading for the binaries
//   - flows: pure-function orchestrators for every Engine operation
package internal
