// Package middleware adapts nonceauth.Engine access validation to net/http.
//
// [Guard] reads the Authorization bearer token, calls Engine.ValidateAccess
// and stores the resulting user in the request context, where handlers read
// it back with [UserFromContext].
//
// The package never parses tokens or touches a store itself. Every decision
// is delegated to the Engine.
package middleware
