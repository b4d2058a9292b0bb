// Package credlock is an embeddable session and credential lifecycle engine.
//
// It issues and rotates dual JWT token pairs, throttles login attempts through
// Redis, stores refresh tokens as one-way argon2id hashes in a bounded
// per-account registry, and drives the surrounding credential flows: email
// verification, email change, password change/set/reset, and account deletion
// scheduling. Persistence is pluggable behind the [CredentialStore] interface;
// store/memory and store/postgres ship with the module.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// credlock is the public surface. It exposes [Engine], [Builder], [Config],
// the error sentinels, and the audit/metric value types. Mechanism lives in
// sub-packages: jwt signing under jwt/, argon2id hashing under password/,
// the Redis attempt counter under internal/rate.
//
// # Token model
//
// Access tokens are short-lived JWTs validated offline by callers. Refresh
// tokens are longer-lived JWTs that are additionally matched against the
// account's registry of hashed refresh tokens on every rotation; a token that
// parses but has no registry record is rejected. The registry is FIFO-bounded,
// so each login beyond the retention limit silently evicts the oldest session.
package credlock
