// Package memkv is an in-memory implementation of the store.KV contract:
// key-ordered scans and token-guarded atomic commits over a plain map.
// It backs the repository and resolver unit tests, and can serve as a
// throwaway backend for local experiments.
package memkv

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/promptd/promptd/internal/store"
)

type entry struct {
	value []byte
	token uint64
}

// KV is a mutex-guarded in-memory key-value store.
type KV struct {
	mu      sync.RWMutex
	entries map[string]entry
	seq     uint64
}

// New creates an empty store.
func New() *KV {
	return &KV{entries: map[string]entry{}}
}

// Get returns the record at key.
func (kv *KV) Get(ctx context.Context, key string) (store.Record, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	e, ok := kv.entries[key]
	if !ok {
		return store.Record{}, store.ErrKeyNotFound
	}
	return record(key, e), nil
}

// Scan walks keys sharing prefix in lexicographic order. The cursor is the
// last key of the previous page.
func (kv *KV) Scan(ctx context.Context, prefix, cursor string, limit int) ([]store.Record, string, error) {
	if limit <= 0 {
		limit = 100
	}

	kv.mu.RLock()
	keys := make([]string, 0, len(kv.entries))
	for k := range kv.entries {
		if strings.HasPrefix(k, prefix) && k > cursor {
			keys = append(keys, k)
		}
	}
	kv.mu.RUnlock()

	sort.Strings(keys)

	more := len(keys) > limit
	if more {
		keys = keys[:limit]
	}

	kv.mu.RLock()
	defer kv.mu.RUnlock()
	recs := make([]store.Record, 0, len(keys))
	for _, k := range keys {
		// A key may vanish between the two lock windows; skip it.
		if e, ok := kv.entries[k]; ok {
			recs = append(recs, record(k, e))
		}
	}

	next := ""
	if more && len(recs) > 0 {
		next = recs[len(recs)-1].Key
	}
	return recs, next, nil
}

// Commit applies muts if every precondition holds, all under one lock.
func (kv *KV) Commit(ctx context.Context, preconds []store.Precondition, muts []store.Mutation) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	for _, p := range preconds {
		e, ok := kv.entries[p.Key]
		if p.Token == "" {
			if ok {
				return store.ErrCommitConflict
			}
			continue
		}
		if !ok || tokenString(e.token) != p.Token {
			return store.ErrCommitConflict
		}
	}

	for _, m := range muts {
		if m.Delete {
			delete(kv.entries, m.Key)
			continue
		}
		kv.seq++
		kv.entries[m.Key] = entry{value: append([]byte(nil), m.Value...), token: kv.seq}
	}
	return nil
}

// Len returns the number of stored keys.
func (kv *KV) Len() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return len(kv.entries)
}

func record(key string, e entry) store.Record {
	return store.Record{
		Key:   key,
		Value: append([]byte(nil), e.value...),
		Token: tokenString(e.token),
	}
}

func tokenString(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}
