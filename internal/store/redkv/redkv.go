// Package redkv implements the store.KV contract on Redis.
//
// Concurrency tokens are the raw stored values: a conditional commit runs
// inside WATCH/MULTI/EXEC, re-reads every guarded key, compares it against
// the token observed by the caller and aborts if anything moved. Prefix
// scans ride on SCAN cursors.
package redkv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/promptd/promptd/internal/store"
)

// Store is a Redis-backed store.KV.
type Store struct {
	client *redis.Client
}

// New wraps an already connected Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Get returns the record at key. The token is the value itself.
func (s *Store) Get(ctx context.Context, key string) (store.Record, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.Record{}, store.ErrKeyNotFound
		}
		return store.Record{}, unavailable("get", key, err)
	}
	return store.Record{Key: key, Value: []byte(val), Token: val}, nil
}

// Scan walks keys matching prefix using a SCAN cursor and fetches the
// values of one page with a single MGET. Pages may run short of limit;
// only an empty returned cursor ends the range.
func (s *Store) Scan(ctx context.Context, prefix, cursor string, limit int) ([]store.Record, string, error) {
	if limit <= 0 {
		limit = 100
	}

	var cur uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid scan cursor %q: %w", cursor, err)
		}
		cur = parsed
	}

	keys, next, err := s.client.Scan(ctx, cur, prefix+"*", int64(limit)).Result()
	if err != nil {
		return nil, "", unavailable("scan", prefix, err)
	}

	recs := make([]store.Record, 0, len(keys))
	if len(keys) > 0 {
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, "", unavailable("mget", prefix, err)
		}
		for i, v := range vals {
			// Keys can expire or be deleted between SCAN and MGET.
			sv, ok := v.(string)
			if !ok {
				continue
			}
			recs = append(recs, store.Record{Key: keys[i], Value: []byte(sv), Token: sv})
		}
	}

	nextCursor := ""
	if next != 0 {
		nextCursor = strconv.FormatUint(next, 10)
	}
	return recs, nextCursor, nil
}

// Commit applies muts inside a transaction after verifying every
// precondition. WATCH covers all guarded keys, so a write that slips in
// between the checks and EXEC also aborts the commit.
func (s *Store) Commit(ctx context.Context, preconds []store.Precondition, muts []store.Mutation) error {
	watched := make([]string, 0, len(preconds))
	for _, p := range preconds {
		watched = append(watched, p.Key)
	}

	txf := func(tx *redis.Tx) error {
		for _, p := range preconds {
			val, err := tx.Get(ctx, p.Key).Result()
			switch {
			case errors.Is(err, redis.Nil):
				if p.Token != "" {
					return store.ErrCommitConflict
				}
			case err != nil:
				return unavailable("get", p.Key, err)
			default:
				if p.Token == "" || val != p.Token {
					return store.ErrCommitConflict
				}
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, m := range muts {
				if m.Delete {
					pipe.Del(ctx, m.Key)
				} else {
					pipe.Set(ctx, m.Key, m.Value, 0)
				}
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, watched...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return store.ErrCommitConflict
	case errors.Is(err, store.ErrCommitConflict), errors.Is(err, store.ErrUnavailable):
		return err
	default:
		return unavailable("commit", "", err)
	}
}

func unavailable(op, key string, err error) error {
	if key == "" {
		return fmt.Errorf("redis %s: %v: %w", op, err, store.ErrUnavailable)
	}
	return fmt.Errorf("redis %s %s: %v: %w", op, key, err, store.ErrUnavailable)
}
