// Package password hashes and verifies secrets: user passkeys and the
// per-token nonces the engine stores in place of tokens.
//
// # Output formats
//
// Argon2id hashes use PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes use the standard $2a$ modular crypt format. Digest hashes
// (nonces only) are encoded as:
//
//	$sha256$<salt>$<sum>
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Passkey length policy is
// enforced by the Engine. Hashers never log and never import other nonceauth
// packages.
package password
