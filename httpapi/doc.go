// Package httpapi mounts the token lifecycle on net/http:
//
//	POST <prefix>/register  create a user
//	POST <prefix>/login     issue a token pair
//	POST <prefix>/refresh   rotate a refresh token (header or body)
//	POST <prefix>/logout    clear the caller's session (bearer access token)
//	GET  <prefix>/me        return the caller (bearer access token)
//
// Request keys for the identifier and passkey follow the engine's field map.
// Routes listed in Routes.Disabled answer 403 before the engine is called.
package httpapi
