// Package nonceauth issues, validates and rotates authentication tokens for a
// credentialed user store.
//
// Every issued token carries a random nonce. Only a hash of the latest nonce
// per token class is persisted on the user record, so a token is live only
// while its nonce still verifies against that hash. Logging in, refreshing or
// logging out therefore revokes every older token without a blacklist.
//
// # Architecture
//
//	credential.Store   conditional single-row persistence (store/...)
//	password           passkey and nonce hashing (Argon2id, bcrypt, digest)
//	jwt                one Manager per token class
//	internal/flows     pure orchestration of each operation
//	Engine             maps flow results to errors, metrics, audit and logs
//	middleware, httpapi  net/http guard and routes over an Engine
//
// # Concurrency
//
// An Engine holds no mutable per-user state and is safe for concurrent use.
// Refresh consumes the stored refresh hash with a compare-and-swap on the value
// it read, so for any refresh token at most one concurrent caller succeeds.
//
// # Usage
//
//	engine, err := nonceauth.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithLogger(logger).
//		Build()
package nonceauth
