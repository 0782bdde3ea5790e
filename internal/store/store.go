// Package store defines the conditional key-value contract the prompt
// repository runs on: point reads with a concurrency token, resumable
// prefix scans, and multi-key atomic commits guarded by per-key
// preconditions.
package store

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound signals an absent key on a point read.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCommitConflict signals a failed precondition: a guarded key
	// changed since it was read, or a key required absent exists. The
	// commit applied nothing.
	ErrCommitConflict = errors.New("commit precondition failed")

	// ErrUnavailable signals a transport failure against the backing
	// store. Retryable with backoff.
	ErrUnavailable = errors.New("store unavailable")
)

// Record is a stored value plus the opaque token required by a later
// conditional write. Tokens are never empty for an existing key.
type Record struct {
	Key   string
	Value []byte
	Token string
}

// Precondition guards one key inside a Commit. An empty Token requires the
// key to be absent; otherwise the key must still hold the token observed at
// read time.
type Precondition struct {
	Key   string
	Token string
}

// Mutation is one write inside a Commit: a set, or a delete when Delete is
// true.
type Mutation struct {
	Key    string
	Value  []byte
	Delete bool
}

// KV is the substrate contract. Implementations must apply Commit all or
// nothing: a failed precondition leaves every key untouched.
type KV interface {
	// Get returns the record at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// Scan returns up to limit records whose keys share prefix, resuming
	// from cursor (empty = start). The returned cursor is empty when the
	// range is exhausted.
	//
	// Delivery order is implementation-defined and a cursor walk is
	// at-least-once: a key may appear again on a later page (Redis SCAN
	// behaves this way under concurrent rehashing). Callers that need a
	// key exactly once must track what they have seen.
	Scan(ctx context.Context, prefix, cursor string, limit int) ([]Record, string, error)

	// Commit atomically applies muts if every precondition holds.
	Commit(ctx context.Context, preconds []Precondition, muts []Mutation) error
}

// Put builds a set mutation.
func Put(key string, value []byte) Mutation {
	return Mutation{Key: key, Value: value}
}

// Del builds a delete mutation.
func Del(key string) Mutation {
	return Mutation{Key: key, Delete: true}
}

// MustMatch guards a key against concurrent modification since rec was read.
func MustMatch(rec Record) Precondition {
	return Precondition{Key: rec.Key, Token: rec.Token}
}

// MustBeAbsent guards a key against concurrent creation.
func MustBeAbsent(key string) Precondition {
	return Precondition{Key: key}
}
