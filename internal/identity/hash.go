// Package identity provides the single fingerprinting primitive used to turn
// every textual key in the store (paths, USRs, command strings, kinds,
// argument vectors) into a fixed-width, joinable 64-bit integer.
package identity

import "github.com/cespare/xxhash/v2"

// Hash fingerprints s into a 64-bit value. The store treats the result as
// opaque: deterministic across runs and processes (xxhash has no per-process
// seed, so there is nothing to pin beyond the algorithm itself), well
// distributed, and reinterpreted as a signed int64 purely because that is
// what database/sql's driver round-trips cleanly — the sign bit carries no
// meaning and a "negative hash" is expected, not an error.
//
// Collisions are tolerated at the theoretical level but not expected at the
// corpus sizes this store is built for. Callers that need user-visible
// identity (error messages, CLI output) must use the original string, stored
// alongside the hash in the dictionary tables — never reverse a hash.
func Hash(s string) int64 {
	return int64(xxhash.Sum64String(s))
}

// HashBytes is Hash for already-encoded byte keys (argument vectors joined
// with a separator, for instance), avoiding a string conversion at call
// sites that already hold a []byte.
func HashBytes(b []byte) int64 {
	return int64(xxhash.Sum64(b))
}
