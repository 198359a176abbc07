// Package password implements password hashing, legacy verification, and the
// password lifecycle policy (complexity, expiry, reuse history).
//
// # Output format
//
// New hashes are bcrypt modular-crypt strings:
//
//	$2a$<cost>$<22-char salt><31-char hash>
//
// Stored values without a bcrypt prefix are treated as legacy digests:
// the first 32 lowercase hex characters of sha256(password + salt). [Hasher.Verify]
// accepts both so pre-migration accounts keep working, and [Hasher.NeedsUpgrade]
// reports when a stored value should be re-hashed after a successful login.
//
// # Architecture boundaries
//
// This package owns hashing and policy evaluation only. It never stores or
// retrieves hashes; persistence of history entries and change timestamps is
// performed by the Engine through its store.
//
// # What this package must NOT do
//
//   - Import any other goGuard package.
//   - Log plaintext passwords.
package password
