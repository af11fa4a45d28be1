// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Parameters are embedded in the digest, so verification of old hashes keeps
// working after a cost increase; [Argon2.NeedsUpgrade] reports whether a
// stored digest is below the configured cost so the caller can re-hash on
// the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// character classes) is enforced by the Engine's configuration.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords — callers supply plaintext and receive digests.
//   - Import any other authcore package.
//   - Return "valid" for a malformed digest: parse failures always verify false.
package password
