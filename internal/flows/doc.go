// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRegister, RunLogin, RunRefresh, RunLogout,
// RunValidate, IssueTokenPair) accepts a typed dependency struct and returns a
// result carrying either the payload or a classified failure. The root
// package maps failure kinds to public errors, metrics, audit events and log
// lines.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import nonceauth (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through credential.Store.
//   - Log. Flows classify, the Engine reports.
package flows
