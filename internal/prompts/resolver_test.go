package prompts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/promptd/promptd/internal/domain"
	"github.com/promptd/promptd/internal/logger"
	"github.com/promptd/promptd/internal/store"
	"github.com/promptd/promptd/internal/store/memkv"
)

func newTestResolver(t *testing.T) (*Resolver, *Repository, *memkv.KV) {
	t.Helper()
	kv := memkv.New()
	repo := NewRepository(kv, logger.Nop())
	repo.now = (&fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}).Now
	return NewResolver(repo, kv, logger.Nop()), repo, kv
}

func create(t *testing.T, repo *Repository, in domain.PromptInput) *domain.Prompt {
	t.Helper()
	p, err := repo.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("creating %s/%s v%d: %v", in.Namespace, in.Name, in.Version, err)
	}
	return p
}

func TestSetDefaultAndGetDefault(t *testing.T) {
	ctx := context.Background()
	rs, repo, _ := newTestResolver(t)

	a := create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 1, Text: "a", IsActive: true})
	b := create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 2, Text: "b", IsActive: true})

	if _, err := rs.SetDefault(ctx, a.ID, ""); err != nil {
		t.Fatalf("SetDefault(a) = %v", err)
	}
	got, err := rs.GetDefault(ctx, "d")
	if err != nil || got.ID != a.ID {
		t.Fatalf("GetDefault() = %v, %v, want a", got, err)
	}

	// Switching demotes the previous default.
	if _, err := rs.SetDefault(ctx, b.ID, ""); err != nil {
		t.Fatalf("SetDefault(b) = %v", err)
	}
	got, err = rs.GetDefault(ctx, "d")
	if err != nil || got.ID != b.ID {
		t.Fatalf("GetDefault() = %v, %v, want b", got, err)
	}
	prev, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if prev.IsDefault {
		t.Error("previous default not demoted")
	}
}

func TestSetDefaultMissingID(t *testing.T) {
	rs, _, _ := newTestResolver(t)
	if _, err := rs.SetDefault(context.Background(), "ghost", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetDefault() = %v, want ErrNotFound", err)
	}
}

func TestGetDefaultStaleMapping(t *testing.T) {
	ctx := context.Background()
	rs, _, kv := newTestResolver(t)

	// Mapping points at a record that no longer exists.
	err := kv.Commit(ctx, nil, []store.Mutation{store.Put(DefaultKey("d"), []byte("gone"))})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := rs.GetDefault(ctx, "d"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetDefault() = %v, want ErrNotFound", err)
	}
}

func TestGetDefaultWithoutNamespaceFallsBackToScan(t *testing.T) {
	ctx := context.Background()
	rs, repo, _ := newTestResolver(t)

	create(t, repo, domain.PromptInput{Namespace: "a", Name: "x", Version: 1, Text: "t"})
	want := create(t, repo, domain.PromptInput{Namespace: "b", Name: "y", Version: 1, Text: "t", IsDefault: true})

	got, err := rs.GetDefault(ctx, "")
	if err != nil {
		t.Fatalf("GetDefault() = %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("GetDefault() = %s, want %s", got.ID, want.ID)
	}
}

func TestGetDefaultNothingAnywhere(t *testing.T) {
	rs, repo, _ := newTestResolver(t)
	create(t, repo, domain.PromptInput{Namespace: "a", Name: "x", Version: 1, Text: "t"})

	if _, err := rs.GetDefault(context.Background(), ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetDefault() = %v, want ErrNotFound", err)
	}
}

func TestFindByCriteriaTieBreak(t *testing.T) {
	ctx := context.Background()
	rs, repo, _ := newTestResolver(t)

	create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 1, Text: "t", Priority: 5})
	want := create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 2, Text: "t", Priority: 5})
	create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 3, Text: "t", Priority: 3})

	got, err := rs.FindByCriteria(ctx, domain.Criteria{Namespace: "d", Name: "p"})
	if err != nil {
		t.Fatalf("FindByCriteria() = %v", err)
	}
	// Priority 5 beats 3; among the 5s the higher version wins.
	if got.ID != want.ID {
		t.Errorf("FindByCriteria() = v%d priority %d, want v2 priority 5", got.Version, got.Priority)
	}
}

func TestFindByCriteriaUpdatedAtTieBreak(t *testing.T) {
	ctx := context.Background()
	rs, repo, _ := newTestResolver(t)

	// Same priority, same version, different names: latest update wins.
	create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 1, Text: "t", Priority: 1})
	want := create(t, repo, domain.PromptInput{Namespace: "d", Name: "q", Version: 1, Text: "t", Priority: 1})

	got, err := rs.FindByCriteria(ctx, domain.Criteria{Namespace: "d"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != want.ID {
		t.Errorf("FindByCriteria() = %s, want most recently updated %s", got.ID, want.ID)
	}
}

func TestFindByCriteriaExactPath(t *testing.T) {
	ctx := context.Background()
	rs, repo, _ := newTestResolver(t)

	p := create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 2, Text: "t", Lang: "en"})

	got, err := rs.FindByCriteria(ctx, domain.Criteria{Namespace: "d", Name: "p", Version: 2})
	if err != nil || got.ID != p.ID {
		t.Fatalf("FindByCriteria() = %v, %v", got, err)
	}

	// The pinned record must still satisfy the soft predicates.
	_, err = rs.FindByCriteria(ctx, domain.Criteria{Namespace: "d", Name: "p", Version: 2, Lang: "fr"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindByCriteria() = %v, want ErrNotFound", err)
	}

	_, err = rs.FindByCriteria(ctx, domain.Criteria{Namespace: "d", Name: "p", Version: 9})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindByCriteria() missing version = %v, want ErrNotFound", err)
	}
}

func TestFindByCriteriaEmpty(t *testing.T) {
	rs, _, _ := newTestResolver(t)
	if _, err := rs.FindByCriteria(context.Background(), domain.Criteria{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindByCriteria() = %v, want ErrNotFound", err)
	}
}

func TestFindByCriteriaCrossNamespaceScan(t *testing.T) {
	ctx := context.Background()
	rs, repo, _ := newTestResolver(t)

	create(t, repo, domain.PromptInput{Namespace: "a", Name: "x", Version: 1, Text: "t", Lang: "fr", Priority: 1})
	want := create(t, repo, domain.PromptInput{Namespace: "b", Name: "y", Version: 1, Text: "t", Lang: "fr", Priority: 4})

	got, err := rs.FindByCriteria(ctx, domain.Criteria{Lang: "fr"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != want.ID {
		t.Errorf("FindByCriteria() = %s, want %s", got.ID, want.ID)
	}
}

func TestFindDefaultVisionPrompt(t *testing.T) {
	ctx := context.Background()
	rs, repo, _ := newTestResolver(t)

	// Wrong namespace, inactive, wrong priority: all ignored.
	create(t, repo, domain.PromptInput{Namespace: "other", Name: "p", Version: 1, Text: "t", Priority: 1, IsActive: true, IsDefault: true})
	create(t, repo, domain.PromptInput{Namespace: "default", Name: "p", Version: 1, Text: "t", Priority: 1, IsDefault: true})
	create(t, repo, domain.PromptInput{Namespace: "default", Name: "p", Version: 2, Text: "t", Priority: 9, IsActive: true, IsDefault: true})
	want := create(t, repo, domain.PromptInput{Namespace: "default", Name: "p", Version: 3, Text: "t", Priority: 1, IsActive: true, IsDefault: true})

	got, err := rs.FindDefaultVisionPrompt(ctx)
	if err != nil {
		t.Fatalf("FindDefaultVisionPrompt() = %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("FindDefaultVisionPrompt() = v%d, want v3", got.Version)
	}
}

func TestSyncNamespaceDemotesLosers(t *testing.T) {
	ctx := context.Background()
	rs, repo, _ := newTestResolver(t)

	// Two defaults created directly, simulating a race that bypassed
	// SetDefault. Same priority; B is both higher version and more
	// recently updated, so B survives.
	a := create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 1, Text: "t", Priority: 1, IsDefault: true})
	b := create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 2, Text: "t", Priority: 1, IsDefault: true})

	res, err := rs.SyncNamespace(ctx, "d")
	if err != nil {
		t.Fatalf("SyncNamespace() = %v", err)
	}
	if res.ID != b.ID {
		t.Errorf("winner = %s, want %s", res.ID, b.ID)
	}
	if len(res.Demoted) != 1 || res.Demoted[0] != a.ID {
		t.Errorf("demoted = %v, want [%s]", res.Demoted, a.ID)
	}

	// Exactly one flagged record remains and the mapping agrees with it.
	flagged := 0
	err = repo.walkNamespace(ctx, "d", func(p *domain.Prompt) error {
		if p.IsDefault {
			flagged++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if flagged != 1 {
		t.Errorf("flagged defaults = %d, want 1", flagged)
	}
	got, err := rs.GetDefault(ctx, "d")
	if err != nil || got.ID != b.ID {
		t.Errorf("GetDefault() = %v, %v, want b", got, err)
	}
}

func TestSyncNamespaceWithoutCandidates(t *testing.T) {
	ctx := context.Background()
	rs, repo, kv := newTestResolver(t)

	create(t, repo, domain.PromptInput{Namespace: "d", Name: "p", Version: 1, Text: "t"})
	// Stale mapping left behind by a deleted default.
	if err := kv.Commit(ctx, nil, []store.Mutation{store.Put(DefaultKey("d"), []byte("gone"))}); err != nil {
		t.Fatal(err)
	}

	res, err := rs.SyncNamespace(ctx, "d")
	if err != nil {
		t.Fatalf("SyncNamespace() = %v", err)
	}
	if res.ID != "" || len(res.Demoted) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
	if _, err := kv.Get(ctx, DefaultKey("d")); !errors.Is(err, store.ErrKeyNotFound) {
		t.Error("stale mapping not deleted")
	}
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	rs, repo, kv := newTestResolver(t)

	create(t, repo, domain.PromptInput{Namespace: "a", Name: "x", Version: 1, Text: "t", IsDefault: true})
	create(t, repo, domain.PromptInput{Namespace: "b", Name: "y", Version: 1, Text: "t"})
	// Namespace with nothing but a stale mapping.
	if err := kv.Commit(ctx, nil, []store.Mutation{store.Put(DefaultKey("c"), []byte("gone"))}); err != nil {
		t.Fatal(err)
	}

	results, err := rs.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("SyncAll() covered %d namespaces, want 3", len(results))
	}

	byNS := map[string]*domain.SyncResult{}
	for _, r := range results {
		byNS[r.Namespace] = r
	}
	if byNS["a"] == nil || byNS["a"].ID == "" {
		t.Error("namespace a lost its default")
	}
	if byNS["b"] == nil || byNS["b"].ID != "" {
		t.Error("namespace b grew a default from nowhere")
	}
	if _, err := kv.Get(ctx, DefaultKey("c")); !errors.Is(err, store.ErrKeyNotFound) {
		t.Error("stale mapping for namespace c not deleted")
	}
}
