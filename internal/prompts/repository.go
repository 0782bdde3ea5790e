// Package prompts implements the prompt record store: a CRUD repository
// with a transactionally maintained natural-key index, and the resolver
// that keeps the per-namespace default mapping honest.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/promptd/promptd/internal/domain"
	"github.com/promptd/promptd/internal/logger"
	"github.com/promptd/promptd/internal/store"
)

const (
	// scanPageSize is the store-level page used by internal walks.
	scanPageSize = 256
	// deleteRetries bounds the re-read loop when a delete races an update.
	deleteRetries = 3
)

// Repository owns prompt CRUD and listing against the conditional store.
// Every mutation is one atomic multi-key commit; the natural-key index
// entry moves in lockstep with the primary record.
type Repository struct {
	kv     store.KV
	logger logger.Logger

	// injected for tests
	now   func() time.Time
	newID func() string

	// defaultSync, when set, is invoked best-effort after a commit that
	// touched default state. Wired to the resolver's namespace sync at
	// startup; kept as a hook so the repository does not depend on the
	// resolver.
	defaultSync func(ctx context.Context, namespace string) error
}

// NewRepository creates a repository on the given store.
func NewRepository(kv store.KV, log logger.Logger) *Repository {
	return &Repository{
		kv:     kv,
		logger: log,
		now:    time.Now,
		newID:  newPromptID,
	}
}

// SetDefaultSyncHook wires the best-effort default-mapping sync side effect.
func (r *Repository) SetDefaultSyncHook(fn func(ctx context.Context, namespace string) error) {
	r.defaultSync = fn
}

// newPromptID returns a UUIDv7: globally unique and lexicographically
// sortable by creation time.
func newPromptID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4
		// rather than refusing the write.
		return uuid.NewString()
	}
	return id.String()
}

// Create stores a new prompt. The natural key must be unused: the commit is
// conditioned on the index entry being absent, so of two racing creates
// exactly one succeeds and the loser gets ErrConflict.
func (r *Repository) Create(ctx context.Context, in domain.PromptInput) (*domain.Prompt, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	p := &domain.Prompt{
		ID:        r.newID(),
		Namespace: in.Namespace,
		Name:      in.Name,
		Version:   in.Version,
		Lang:      in.Lang,
		Text:      in.Text,
		Tags:      append([]string(nil), in.Tags...),
		Priority:  in.Priority,
		IsActive:  in.IsActive,
		IsDefault: in.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := encodePrompt(p)
	if err != nil {
		return nil, err
	}

	idxKey := IndexKey(p.NaturalKey())
	err = r.kv.Commit(ctx,
		[]store.Precondition{store.MustBeAbsent(idxKey)},
		[]store.Mutation{
			store.Put(PromptKey(p.ID), data),
			store.Put(idxKey, []byte(p.ID)),
		},
	)
	if err != nil {
		if errors.Is(err, store.ErrCommitConflict) {
			return nil, fmt.Errorf("prompt %s/%s v%d already exists: %w",
				p.Namespace, p.Name, p.Version, domain.ErrConflict)
		}
		return nil, mapStoreErr(err)
	}

	r.logger.Info("prompt created",
		logger.String("id", p.ID),
		logger.String("namespace", p.Namespace),
		logger.String("name", p.Name),
		logger.Int("version", p.Version))

	if p.IsDefault {
		r.syncDefaults(ctx, p.Namespace)
	}
	return p, nil
}

// Get returns the prompt with the given id, or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Prompt, error) {
	p, _, err := r.getWithRecord(ctx, id)
	return p, err
}

func (r *Repository) getWithRecord(ctx context.Context, id string) (*domain.Prompt, store.Record, error) {
	rec, err := r.kv.Get(ctx, PromptKey(id))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, store.Record{}, fmt.Errorf("prompt %s: %w", id, domain.ErrNotFound)
		}
		return nil, store.Record{}, mapStoreErr(err)
	}
	p, err := decodePrompt(rec.Value)
	if err != nil {
		return nil, store.Record{}, err
	}
	return p, rec, nil
}

// UpdateOptions tunes a single update call.
type UpdateOptions struct {
	// SkipDefaultSync suppresses the default-mapping sync side effect.
	// Used by the resolver to avoid re-entering itself.
	SkipDefaultSync bool
}

// Update merges patch over the current record under an optimistic lock.
// A writer that lost the race gets ErrConflict and should re-read and retry.
// If the natural key changed, the index entry relocates inside the same
// commit, conditioned on the new slot being free.
func (r *Repository) Update(ctx context.Context, id string, patch domain.PromptPatch) (*domain.Prompt, error) {
	return r.UpdateWith(ctx, id, patch, UpdateOptions{})
}

// UpdateWith is Update with explicit options.
func (r *Repository) UpdateWith(ctx context.Context, id string, patch domain.PromptPatch, opts UpdateOptions) (*domain.Prompt, error) {
	cur, rec, err := r.getWithRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *cur
	updated.Tags = append([]string(nil), cur.Tags...)
	patch.Apply(&updated)

	in := domain.PromptInput{
		Namespace: updated.Namespace,
		Name:      updated.Name,
		Version:   updated.Version,
		Text:      updated.Text,
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	if now.After(updated.UpdatedAt) {
		updated.UpdatedAt = now
	}

	data, err := encodePrompt(&updated)
	if err != nil {
		return nil, err
	}

	preconds := []store.Precondition{store.MustMatch(rec)}
	muts := []store.Mutation{store.Put(PromptKey(id), data)}

	oldKey, newKey := cur.NaturalKey(), updated.NaturalKey()
	if oldKey != newKey {
		preconds = append(preconds, store.MustBeAbsent(IndexKey(newKey)))
		muts = append(muts,
			store.Del(IndexKey(oldKey)),
			store.Put(IndexKey(newKey), []byte(id)),
		)
	}

	if err := r.kv.Commit(ctx, preconds, muts); err != nil {
		if errors.Is(err, store.ErrCommitConflict) {
			return nil, fmt.Errorf("prompt %s changed concurrently: %w", id, domain.ErrConflict)
		}
		return nil, mapStoreErr(err)
	}

	r.logger.Debug("prompt updated",
		logger.String("id", id),
		logger.String("namespace", updated.Namespace))

	// A namespace move of a default-flagged prompt leaves the old
	// namespace's mapping pointing across namespaces, so it needs the
	// same repair as a default-flag change.
	namespaceMoved := oldKey.Namespace != newKey.Namespace
	if !opts.SkipDefaultSync &&
		(patch.TouchesDefault() || (namespaceMoved && (cur.IsDefault || updated.IsDefault))) {
		r.syncDefaults(ctx, updated.Namespace)
		if namespaceMoved {
			r.syncDefaults(ctx, oldKey.Namespace)
		}
	}
	return &updated, nil
}

// Delete removes a prompt and its index entry atomically. Returns false
// when the id does not exist. It does not repair the default mapping; the
// resolver sweep handles a deleted default.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	for attempt := 0; attempt < deleteRetries; attempt++ {
		cur, rec, err := r.getWithRecord(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return false, nil
			}
			return false, err
		}

		err = r.kv.Commit(ctx,
			[]store.Precondition{store.MustMatch(rec)},
			[]store.Mutation{
				store.Del(PromptKey(id)),
				store.Del(IndexKey(cur.NaturalKey())),
			},
		)
		if err == nil {
			r.logger.Info("prompt deleted",
				logger.String("id", id),
				logger.String("namespace", cur.Namespace))
			return true, nil
		}
		if !errors.Is(err, store.ErrCommitConflict) {
			return false, mapStoreErr(err)
		}
		// A concurrent update moved the record; re-read and try again.
	}
	return false, fmt.Errorf("prompt %s kept changing while deleting: %w", id, domain.ErrConflict)
}

// List returns one page of prompts matching the filter.
//
// With a namespace and no name the walk stays on that namespace's index
// prefix; otherwise it scans the whole primary partition and filters in
// memory. Name, isActive and tag predicates apply after the store-level
// page boundary, so pages can run short of limit while matches remain:
// follow NextCursor until it is empty.
//
// Each page is deduplicated, but the cursor walk inherits the store's
// at-least-once scan semantics: on Redis a prompt seen on one page can
// reappear on a later one while writers are active. Callers that need a
// clean enumeration keep a seen-set across pages.
func (r *Repository) List(ctx context.Context, f domain.ListFilter) (*domain.ListPage, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}

	var (
		items []*domain.Prompt
		next  string
		err   error
	)
	if f.Namespace != "" && f.Name == "" {
		items, next, err = r.listByIndex(ctx, &f)
	} else {
		items, next, err = r.listByScan(ctx, &f)
	}
	if err != nil {
		return nil, err
	}

	sortPrompts(items, f.SortBy, f.SortOrder)
	return &domain.ListPage{Items: items, NextCursor: next}, nil
}

// listByIndex pages over the namespace's index prefix and fetches each
// candidate record, skipping unrelated namespaces entirely.
func (r *Repository) listByIndex(ctx context.Context, f *domain.ListFilter) ([]*domain.Prompt, string, error) {
	recs, next, err := r.kv.Scan(ctx, IndexPrefix(f.Namespace), f.Cursor, f.Limit)
	if err != nil {
		return nil, "", mapStoreErr(err)
	}

	items := make([]*domain.Prompt, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		id := string(rec.Value)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Dangling index entry, the sweep or the next delete
				// rewrites it. Not this page's problem.
				r.logger.Warn("index entry points to missing prompt",
					logger.String("key", rec.Key),
					logger.String("id", id))
				continue
			}
			return nil, "", err
		}
		if f.Matches(p) {
			items = append(items, p)
		}
	}
	return items, next, nil
}

// listByScan pages over the primary partition and filters in memory.
func (r *Repository) listByScan(ctx context.Context, f *domain.ListFilter) ([]*domain.Prompt, string, error) {
	recs, next, err := r.kv.Scan(ctx, KeyPrefixPrompt, f.Cursor, f.Limit)
	if err != nil {
		return nil, "", mapStoreErr(err)
	}

	items := make([]*domain.Prompt, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		p, err := decodePrompt(rec.Value)
		if err != nil {
			return nil, "", err
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if f.Matches(p) {
			items = append(items, p)
		}
	}
	return items, next, nil
}

// walkNamespace visits every prompt of one namespace via its index prefix.
func (r *Repository) walkNamespace(ctx context.Context, namespace string, visit func(*domain.Prompt) error) error {
	cursor := ""
	for {
		recs, next, err := r.kv.Scan(ctx, IndexPrefix(namespace), cursor, scanPageSize)
		if err != nil {
			return mapStoreErr(err)
		}
		for _, rec := range recs {
			p, err := r.Get(ctx, string(rec.Value))
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return err
			}
			if err := visit(p); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

func (r *Repository) syncDefaults(ctx context.Context, namespace string) {
	if r.defaultSync == nil {
		return
	}
	// Best effort: the create/update already committed, and the periodic
	// sweep repairs whatever this pass misses.
	if err := r.defaultSync(ctx, namespace); err != nil {
		r.logger.Warn("default mapping sync failed",
			logger.String("namespace", namespace),
			logger.Error(err))
	}
}

func sortPrompts(items []*domain.Prompt, sortBy, order string) {
	less := func(a, b *domain.Prompt) bool {
		switch sortBy {
		case domain.SortByPriority:
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			return a.CreatedAt.Before(b.CreatedAt)
		case domain.SortByUpdatedAt:
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if order == domain.SortDesc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		return domain.ErrNotFound
	case errors.Is(err, store.ErrCommitConflict):
		return domain.ErrConflict
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%v: %w", err, domain.ErrUnavailable)
	default:
		return err
	}
}
