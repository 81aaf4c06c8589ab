// Package store persists vault state on an abstract key-value store.
//
// Backends implement KV. Service invocations never write to a backend
// directly: they stage writes in a Staging overlay and commit the whole batch
// with one Apply call, so a failed invocation leaves the backend untouched.
// The batch carries the values the invocation read, and Apply refuses it with
// sentinel.ErrConflict when another writer changed any of them first.
package store

import (
	"bytes"
	"context"
)

// KV is the persistence boundary. Get returns sentinel.ErrNotFound for a
// missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	// Apply commits every write or none of them. Each read must still match
	// the stored value, otherwise nothing is written and Apply returns
	// sentinel.ErrConflict.
	Apply(ctx context.Context, writes []Write, reads ...Read) error
}

// Write is one staged mutation. Delete removes Key and ignores Value.
type Write struct {
	Key    string
	Value  []byte
	Delete bool
}

// Read is a value observed before staging writes. Missing records that Key
// had no value.
type Read struct {
	Key     string
	Value   []byte
	Missing bool
}

// Holds reports whether the current value of the key still equals r.
func (r Read) Holds(value []byte, found bool) bool {
	if r.Missing || !found {
		return r.Missing == !found
	}
	return bytes.Equal(r.Value, value)
}
