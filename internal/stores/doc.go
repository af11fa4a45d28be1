// Package stores provides the storage backends for identities and attempt
// windows: a Redis implementation for production and an in-memory
// implementation for embedding and tests.
//
// Both implement the contracts in internal/account and internal/rate. The
// Redis identity backend keeps one JSON document per identity plus plain
// index keys (email, employee ID, live token hashes); single-use token
// consumption runs as a Lua script that validates, mutates the record, and
// deletes the index key in one atomic step, so two concurrent consumers of
// the same token can never both succeed and a failed consume never leaves a
// half-burned token behind.
package stores
