// Package jwt signs and verifies the nonce-bound tokens issued by the engine.
//
// A Manager serves exactly one token class. The engine builds one for access
// tokens and one for refresh tokens, each with its own key and TTL, and every
// parse rejects tokens minted for the other class.
package jwt
