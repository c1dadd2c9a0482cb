package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by a backend handle used after Close
var ErrClosed = errors.New("store: backend closed")

// Backend is one handle onto the shared key/value namespace. Every handle
// has its own origin id; writes made through a handle are reported to the
// watchers of every other handle but never to its own.
type Backend interface {
	Name() string
	Origin() string

	// Get returns the raw value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// CompareAndSwap writes value only if the current value equals *old,
	// or the key is absent when old is nil
	CompareAndSwap(ctx context.Context, key string, old *string, value string) (bool, error)

	// Keys lists keys starting with prefix, in no particular order
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Change describes one write observed by another handle
type Change struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Old    string `json:"old,omitempty"`
	New    string `json:"new,omitempty"`
}

// Watcher is implemented by backends that can signal writes made by other
// handles. The channel is closed when ctx ends or the backend closes.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}
