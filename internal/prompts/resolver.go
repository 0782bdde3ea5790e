package prompts

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/promptd/promptd/internal/domain"
	"github.com/promptd/promptd/internal/logger"
	"github.com/promptd/promptd/internal/store"
)

// RuntimeNamespace is the namespace consulted when an inbound request
// carries no explicit prompt.
const RuntimeNamespace = "default"

// runtimePriority pins the priority band of the runtime fallback prompt.
const runtimePriority = 1

// fallbackScanCap bounds the no-namespace default lookup. That path walks
// the whole primary partition; it exists for compatibility and gets slower
// as the record count grows. Known scaling limit, callers should pass a
// namespace.
const fallbackScanCap = 1000

// Resolver maintains the namespace -> default-prompt mapping and answers
// criteria-based best-match lookups.
//
// SetDefault is deliberately not one atomic commit: it demotes the old
// default, promotes the new one and rewrites the mapping as three separate
// writes. A crash or a concurrent call in between can leave zero or two
// flagged records; SyncNamespace is the repair and runs on a schedule.
type Resolver struct {
	repo   *Repository
	kv     store.KV
	logger logger.Logger
}

// NewResolver creates a resolver over the repository and its store.
func NewResolver(repo *Repository, kv store.KV, log logger.Logger) *Resolver {
	return &Resolver{repo: repo, kv: kv, logger: log}
}

// GetDefault returns the default prompt of namespace via the mapping entry.
// A mapping pointing at a deleted record reads as ErrNotFound; it is not
// repaired here. With an empty namespace it falls back to scanning the
// primary partition for any flagged record, capped at fallbackScanCap.
func (rs *Resolver) GetDefault(ctx context.Context, namespace string) (*domain.Prompt, error) {
	if namespace == "" {
		return rs.anyDefault(ctx)
	}

	rec, err := rs.kv.Get(ctx, DefaultKey(namespace))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, fmt.Errorf("namespace %s has no default: %w", namespace, domain.ErrNotFound)
		}
		return nil, mapStoreErr(err)
	}
	return rs.repo.Get(ctx, string(rec.Value))
}

func (rs *Resolver) anyDefault(ctx context.Context) (*domain.Prompt, error) {
	seen := 0
	cursor := ""
	for {
		recs, next, err := rs.kv.Scan(ctx, KeyPrefixPrompt, cursor, scanPageSize)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		for _, rec := range recs {
			p, err := decodePrompt(rec.Value)
			if err != nil {
				return nil, err
			}
			if p.IsDefault {
				return p, nil
			}
		}
		seen += len(recs)
		if next == "" || seen >= fallbackScanCap {
			return nil, fmt.Errorf("no default prompt in any namespace: %w", domain.ErrNotFound)
		}
		cursor = next
	}
}

// SetDefault makes id the default of its namespace (or of the explicitly
// given one). The previous default, if any, is demoted first; the mapping
// entry is written last.
func (rs *Resolver) SetDefault(ctx context.Context, id, namespace string) (*domain.Prompt, error) {
	target, err := rs.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if namespace == "" {
		namespace = target.Namespace
	}

	skip := UpdateOptions{SkipDefaultSync: true}
	flag := func(v bool) domain.PromptPatch { return domain.PromptPatch{IsDefault: &v} }

	rec, err := rs.kv.Get(ctx, DefaultKey(namespace))
	switch {
	case err == nil:
		if prev := string(rec.Value); prev != id {
			if _, err := rs.repo.UpdateWith(ctx, prev, flag(false), skip); err != nil &&
				!errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("demoting previous default %s: %w", prev, err)
			}
		}
	case errors.Is(err, store.ErrKeyNotFound):
		// No current default for the namespace.
	default:
		return nil, mapStoreErr(err)
	}

	updated, err := rs.repo.UpdateWith(ctx, id, flag(true), skip)
	if err != nil {
		return nil, err
	}

	err = rs.kv.Commit(ctx, nil, []store.Mutation{store.Put(DefaultKey(namespace), []byte(id))})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	rs.logger.Info("default prompt set",
		logger.String("namespace", namespace),
		logger.String("id", id))
	return updated, nil
}

// FindByCriteria returns the best prompt matching every supplied predicate:
// higher priority wins, ties break on higher version, then on the more
// recently updated record. An empty criteria is a no-op returning
// ErrNotFound. A fully specified natural key short-circuits to a single
// index lookup.
func (rs *Resolver) FindByCriteria(ctx context.Context, c domain.Criteria) (*domain.Prompt, error) {
	if c.Empty() {
		return nil, fmt.Errorf("empty criteria: %w", domain.ErrNotFound)
	}

	if c.Exact() {
		return rs.findExact(ctx, c)
	}

	var prefix string
	switch {
	case c.Namespace != "" && c.Name != "":
		prefix = IndexNamePrefix(c.Namespace, c.Name)
	case c.Namespace != "":
		prefix = IndexPrefix(c.Namespace)
	default:
		return rs.findByFullScan(ctx, c)
	}

	var best *domain.Prompt
	cursor := ""
	for {
		recs, next, err := rs.kv.Scan(ctx, prefix, cursor, scanPageSize)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		for _, rec := range recs {
			p, err := rs.repo.Get(ctx, string(rec.Value))
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if c.Matches(p) && (best == nil || p.Beats(best)) {
				best = p
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}

	if best == nil {
		return nil, fmt.Errorf("no prompt matches criteria: %w", domain.ErrNotFound)
	}
	return best, nil
}

func (rs *Resolver) findExact(ctx context.Context, c domain.Criteria) (*domain.Prompt, error) {
	key := domain.NaturalKey{Namespace: c.Namespace, Name: c.Name, Version: c.Version}
	rec, err := rs.kv.Get(ctx, IndexKey(key))
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, fmt.Errorf("prompt %s/%s v%d: %w", c.Namespace, c.Name, c.Version, domain.ErrNotFound)
		}
		return nil, mapStoreErr(err)
	}
	p, err := rs.repo.Get(ctx, string(rec.Value))
	if err != nil {
		return nil, err
	}
	// The remaining soft predicates still apply to the pinned record.
	if !c.Matches(p) {
		return nil, fmt.Errorf("prompt %s/%s v%d does not match criteria: %w",
			c.Namespace, c.Name, c.Version, domain.ErrNotFound)
	}
	return p, nil
}

func (rs *Resolver) findByFullScan(ctx context.Context, c domain.Criteria) (*domain.Prompt, error) {
	var best *domain.Prompt
	cursor := ""
	for {
		recs, next, err := rs.kv.Scan(ctx, KeyPrefixPrompt, cursor, scanPageSize)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		for _, rec := range recs {
			p, err := decodePrompt(rec.Value)
			if err != nil {
				return nil, err
			}
			if c.Matches(p) && (best == nil || p.Beats(best)) {
				best = p
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if best == nil {
		return nil, fmt.Errorf("no prompt matches criteria: %w", domain.ErrNotFound)
	}
	return best, nil
}

// FindDefaultVisionPrompt resolves the prompt used when an inbound vision
// request names none: active, flagged default, priority 1, in the runtime
// namespace; highest version then latest update among ties.
func (rs *Resolver) FindDefaultVisionPrompt(ctx context.Context) (*domain.Prompt, error) {
	priority := runtimePriority
	active, flagged := true, true
	return rs.FindByCriteria(ctx, domain.Criteria{
		Namespace: RuntimeNamespace,
		Priority:  &priority,
		IsActive:  &active,
		IsDefault: &flagged,
	})
}

// SyncNamespace restores the default invariant for one namespace: among all
// records flagged isDefault the best one (priority, version, updatedAt)
// survives, every other flag flips off, and the mapping points at the
// winner, or is deleted when no candidate exists. Idempotent.
func (rs *Resolver) SyncNamespace(ctx context.Context, namespace string) (*domain.SyncResult, error) {
	var candidates []*domain.Prompt
	seen := map[string]struct{}{}
	err := rs.repo.walkNamespace(ctx, namespace, func(p *domain.Prompt) error {
		// SCAN-style walks may hand the same key out twice.
		if _, dup := seen[p.ID]; dup {
			return nil
		}
		seen[p.ID] = struct{}{}
		if p.IsDefault {
			candidates = append(candidates, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &domain.SyncResult{Namespace: namespace, Demoted: []string{}}

	if len(candidates) == 0 {
		err := rs.kv.Commit(ctx, nil, []store.Mutation{store.Del(DefaultKey(namespace))})
		if err != nil {
			return nil, mapStoreErr(err)
		}
		rs.logger.Debug("namespace has no default", logger.String("namespace", namespace))
		return result, nil
	}

	winner := candidates[0]
	for _, p := range candidates[1:] {
		if p.Beats(winner) {
			winner = p
		}
	}
	result.ID = winner.ID

	skip := UpdateOptions{SkipDefaultSync: true}
	off := false
	for _, p := range candidates {
		if p.ID == winner.ID {
			continue
		}
		if _, err := rs.repo.UpdateWith(ctx, p.ID, domain.PromptPatch{IsDefault: &off}, skip); err != nil {
			// The sweep reruns periodically; log and keep going.
			rs.logger.Warn("failed to demote stale default",
				logger.String("namespace", namespace),
				logger.String("id", p.ID),
				logger.Error(err))
			continue
		}
		result.Demoted = append(result.Demoted, p.ID)
	}

	err = rs.kv.Commit(ctx, nil, []store.Mutation{store.Put(DefaultKey(namespace), []byte(winner.ID))})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if len(result.Demoted) > 0 {
		rs.logger.Info("default mapping repaired",
			logger.String("namespace", namespace),
			logger.String("winner", winner.ID),
			logger.Int("demoted", len(result.Demoted)))
	}
	return result, nil
}

// SyncAll discovers every namespace present in the index or the default
// mapping and runs SyncNamespace on each. Namespaces that only have a
// stale mapping left get their mapping deleted.
func (rs *Resolver) SyncAll(ctx context.Context) ([]*domain.SyncResult, error) {
	namespaces := map[string]struct{}{}

	collect := func(prefix string, extract func(string) (string, error)) error {
		cursor := ""
		for {
			recs, next, err := rs.kv.Scan(ctx, prefix, cursor, scanPageSize)
			if err != nil {
				return mapStoreErr(err)
			}
			for _, rec := range recs {
				ns, err := extract(rec.Key)
				if err != nil {
					rs.logger.Warn("skipping malformed key", logger.String("key", rec.Key))
					continue
				}
				namespaces[ns] = struct{}{}
			}
			if next == "" {
				return nil
			}
			cursor = next
		}
	}

	if err := collect(KeyPrefixIndex, NamespaceFromIndexKey); err != nil {
		return nil, err
	}
	if err := collect(KeyPrefixDefault, NamespaceFromDefaultKey); err != nil {
		return nil, err
	}

	sorted := make([]string, 0, len(namespaces))
	for ns := range namespaces {
		sorted = append(sorted, ns)
	}
	sort.Strings(sorted)

	results := make([]*domain.SyncResult, 0, len(sorted))
	for _, ns := range sorted {
		res, err := rs.SyncNamespace(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("syncing namespace %s: %w", ns, err)
		}
		results = append(results, res)
	}
	return results, nil
}
