package redkv

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/promptd/promptd/internal/store"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("failed to close redis client: %v", err)
		}
	})
	return New(client), mr
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Get(ctx, "promptd:prompts:missing")
	if !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Get() = %v, want ErrKeyNotFound", err)
	}
}

func TestCommitCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	err := s.Commit(ctx,
		[]store.Precondition{store.MustBeAbsent("k1")},
		[]store.Mutation{store.Put("k1", []byte("v1"))},
	)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rec, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(rec.Value) != "v1" {
		t.Errorf("Value = %q, want v1", rec.Value)
	}
	if rec.Token != "v1" {
		t.Errorf("Token = %q, want the stored value", rec.Token)
	}
}

func TestCommitMustBeAbsentConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Commit(ctx, nil, []store.Mutation{store.Put("k1", []byte("v1"))}); err != nil {
		t.Fatal(err)
	}

	err := s.Commit(ctx,
		[]store.Precondition{store.MustBeAbsent("k1")},
		[]store.Mutation{store.Put("k1", []byte("v2"))},
	)
	if !errors.Is(err, store.ErrCommitConflict) {
		t.Errorf("Commit() = %v, want ErrCommitConflict", err)
	}

	rec, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Value) != "v1" {
		t.Errorf("conflicted commit mutated the key: %q", rec.Value)
	}
}

func TestCommitStaleToken(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Commit(ctx, nil, []store.Mutation{store.Put("k1", []byte("v1"))}); err != nil {
		t.Fatal(err)
	}
	rec, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}

	// Another writer moves the key after our read.
	if err := s.Commit(ctx, nil, []store.Mutation{store.Put("k1", []byte("v2"))}); err != nil {
		t.Fatal(err)
	}

	err = s.Commit(ctx,
		[]store.Precondition{store.MustMatch(rec)},
		[]store.Mutation{store.Put("k1", []byte("v3"))},
	)
	if !errors.Is(err, store.ErrCommitConflict) {
		t.Errorf("Commit() with stale token = %v, want ErrCommitConflict", err)
	}

	cur, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if string(cur.Value) != "v2" {
		t.Errorf("conflicted commit mutated the key: %q", cur.Value)
	}
}

func TestCommitGuardedOnDeletedKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Commit(ctx, nil, []store.Mutation{store.Put("k1", []byte("v1"))}); err != nil {
		t.Fatal(err)
	}
	rec, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(ctx, nil, []store.Mutation{store.Del("k1")}); err != nil {
		t.Fatal(err)
	}

	err = s.Commit(ctx,
		[]store.Precondition{store.MustMatch(rec)},
		[]store.Mutation{store.Put("k1", []byte("v2"))},
	)
	if !errors.Is(err, store.ErrCommitConflict) {
		t.Errorf("Commit() on deleted guarded key = %v, want ErrCommitConflict", err)
	}
}

func TestCommitMultiKeyAtomic(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Commit(ctx, nil, []store.Mutation{store.Put("taken", []byte("x"))}); err != nil {
		t.Fatal(err)
	}

	// One failing precondition must leave every mutation unapplied.
	err := s.Commit(ctx,
		[]store.Precondition{store.MustBeAbsent("taken")},
		[]store.Mutation{
			store.Put("a", []byte("1")),
			store.Put("b", []byte("2")),
		},
	)
	if !errors.Is(err, store.ErrCommitConflict) {
		t.Fatalf("Commit() = %v, want ErrCommitConflict", err)
	}
	for _, key := range []string{"a", "b"} {
		if _, err := s.Get(ctx, key); !errors.Is(err, store.ErrKeyNotFound) {
			t.Errorf("key %s written by an aborted commit", key)
		}
	}

	// All-clear applies both.
	err = s.Commit(ctx, nil, []store.Mutation{
		store.Put("a", []byte("1")),
		store.Del("taken"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "taken"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Error("delete mutation not applied")
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Errorf("set mutation not applied: %v", err)
	}
}

func TestScanPrefixWalk(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	want := map[string]string{}
	for i := 0; i < 25; i++ {
		key := fmt.Sprintf("promptd:prompts:%02d", i)
		want[key] = fmt.Sprintf("v%02d", i)
		if err := s.Commit(ctx, nil, []store.Mutation{store.Put(key, []byte(want[key]))}); err != nil {
			t.Fatal(err)
		}
	}
	// Foreign partition must stay invisible to the walk.
	if err := s.Commit(ctx, nil, []store.Mutation{store.Put("promptd:prompts_default:ns", []byte("x"))}); err != nil {
		t.Fatal(err)
	}

	got := map[string]string{}
	cursor := ""
	for pages := 0; pages < 100; pages++ {
		recs, next, err := s.Scan(ctx, "promptd:prompts:", cursor, 8)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		for _, rec := range recs {
			// At-least-once delivery: track, don't count.
			got[rec.Key] = string(rec.Value)
			if rec.Token != string(rec.Value) {
				t.Errorf("Token = %q, want value %q", rec.Token, rec.Value)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if len(got) != len(want) {
		t.Fatalf("walk saw %d keys, want %d", len(got), len(want))
	}
	for key, val := range want {
		if got[key] != val {
			t.Errorf("key %s = %q, want %q", key, got[key], val)
		}
	}
}

func TestScanBadCursor(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, _, err := s.Scan(ctx, "promptd:prompts:", "not-a-cursor", 10); err == nil {
		t.Error("Scan() with malformed cursor should return error")
	}
}

func TestUnavailableWhenServerDown(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	mr.Close()

	if _, err := s.Get(ctx, "k1"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Get() = %v, want ErrUnavailable", err)
	}
	if _, _, err := s.Scan(ctx, "promptd:", "", 10); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Scan() = %v, want ErrUnavailable", err)
	}
	err := s.Commit(ctx, nil, []store.Mutation{store.Put("k1", []byte("v"))})
	if !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("Commit() = %v, want ErrUnavailable", err)
	}
}
