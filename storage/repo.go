// Package storage provides the durable key/value record store backing the
// persisted session subset. Records are opaque strings; callers are
// responsible for encoding.
package storage

// Store is a namespaced record store. Implementations must make Set
// all-or-nothing: a failed write leaves the previous value intact.
type Store interface {
	// Get retrieves a record. The boolean is false when no record exists.
	Get(key string) (string, bool, error)

	// Set writes a record, replacing any previous value.
	Set(key, value string) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(key string) error
}
