// Package storage provides the durable key-value store backing the sync
// queue. Values are opaque byte strings; the queue serializes itself as
// JSON under well-known keys.
package storage

import "errors"

// Well-known keys used by the sync core.
const (
	KeyQueue     = "sync/queue"
	KeyLastSync  = "sync/last_sync"
	KeyConflicts = "sync/conflicts"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Delete removes the value stored under key. Deleting a missing
	// key is not an error.
	Delete(key string) error

	// Close releases the store's resources.
	Close() error
}
