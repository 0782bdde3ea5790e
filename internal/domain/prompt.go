package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxTextBytes caps the template body. The underlying store enforces a
// per-value size limit in the tens of kilobytes; we reject earlier with a
// clear error instead of letting the write fail.
const MaxTextBytes = 64 * 1024

// KeySeparator joins the natural-key segments inside store keys. Namespace
// and name must not contain it.
const KeySeparator = ":"

// Prompt is a versioned text template.
//
// The JSON field names are an external wire contract (namespace, isActive,
// isDefault, createdAt, ...) and must not be renamed.
type Prompt struct {
	// ID is the canonical unique identifier. Generated at creation time,
	// lexicographically sortable by creation time, immutable.
	ID string `json:"id"`

	// Namespace, Name and Version together form the natural key.
	// The combination is unique across the store.
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Version   int    `json:"version"`

	// Lang is a free-form short language tag. Example: "en", "fr".
	Lang string `json:"lang"`

	// Text is the template body.
	Text string `json:"text"`

	// Tags is an unordered set of short labels. Order is not significant.
	Tags []string `json:"tags"`

	// Priority drives sorting and default-selection tie-breaking.
	// Higher wins in resolution.
	Priority int `json:"priority"`

	// IsActive gates visibility in default-resolution queries.
	IsActive bool `json:"isActive"`

	// IsDefault marks the authoritative prompt of its namespace.
	// At most one record per namespace should carry it; the invariant is
	// restored by the resolver sweep, not enforced by the store.
	IsDefault bool `json:"isDefault"`

	// CreatedAt is set once at creation.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is refreshed on every mutation. Always >= CreatedAt.
	UpdatedAt time.Time `json:"updatedAt"`
}

// NaturalKey is the business-meaningful unique tuple of a prompt.
type NaturalKey struct {
	Namespace string
	Name      string
	Version   int
}

// NaturalKey returns the prompt's natural key.
func (p *Prompt) NaturalKey() NaturalKey {
	return NaturalKey{Namespace: p.Namespace, Name: p.Name, Version: p.Version}
}

// HasTag reports whether the prompt carries the given tag.
func (p *Prompt) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Beats reports whether p wins over q in default selection and criteria
// resolution: higher priority first, then higher version, then the more
// recently updated record.
func (p *Prompt) Beats(q *Prompt) bool {
	if p.Priority != q.Priority {
		return p.Priority > q.Priority
	}
	if p.Version != q.Version {
		return p.Version > q.Version
	}
	return p.UpdatedAt.After(q.UpdatedAt)
}

// PromptInput carries the caller-supplied fields of a new prompt.
// ID and timestamps are assigned by the repository.
type PromptInput struct {
	Namespace string   `json:"namespace"`
	Name      string   `json:"name"`
	Version   int      `json:"version"`
	Lang      string   `json:"lang"`
	Text      string   `json:"text"`
	Tags      []string `json:"tags"`
	Priority  int      `json:"priority"`
	IsActive  bool     `json:"isActive"`
	IsDefault bool     `json:"isDefault"`
}

// Validate checks the input against the natural-key and size constraints.
func (in *PromptInput) Validate() error {
	if err := validateKeySegment("namespace", in.Namespace); err != nil {
		return err
	}
	if err := validateKeySegment("name", in.Name); err != nil {
		return err
	}
	if in.Version < 1 {
		return &ValidationError{Field: "version", Message: fmt.Sprintf("must be >= 1, got %d", in.Version)}
	}
	if in.Text == "" {
		return &ValidationError{Field: "text", Message: "must not be empty"}
	}
	if len(in.Text) > MaxTextBytes {
		return &ValidationError{Field: "text", Message: fmt.Sprintf("exceeds %d bytes", MaxTextBytes)}
	}
	return nil
}

func validateKeySegment(field, v string) error {
	if v == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	if strings.Contains(v, KeySeparator) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must not contain %q", KeySeparator)}
	}
	return nil
}

// PromptPatch is a partial update. Nil fields are left untouched.
type PromptPatch struct {
	Namespace *string   `json:"namespace,omitempty"`
	Name      *string   `json:"name,omitempty"`
	Version   *int      `json:"version,omitempty"`
	Lang      *string   `json:"lang,omitempty"`
	Text      *string   `json:"text,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Priority  *int      `json:"priority,omitempty"`
	IsActive  *bool     `json:"isActive,omitempty"`
	IsDefault *bool     `json:"isDefault,omitempty"`
}

// Apply merges the patch over p. Timestamps are not touched here; the
// repository refreshes UpdatedAt when it commits.
func (pp *PromptPatch) Apply(p *Prompt) {
	if pp.Namespace != nil {
		p.Namespace = *pp.Namespace
	}
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Version != nil {
		p.Version = *pp.Version
	}
	if pp.Lang != nil {
		p.Lang = *pp.Lang
	}
	if pp.Text != nil {
		p.Text = *pp.Text
	}
	if pp.Tags != nil {
		p.Tags = append([]string(nil), (*pp.Tags)...)
	}
	if pp.Priority != nil {
		p.Priority = *pp.Priority
	}
	if pp.IsActive != nil {
		p.IsActive = *pp.IsActive
	}
	if pp.IsDefault != nil {
		p.IsDefault = *pp.IsDefault
	}
}

// Empty reports whether the patch touches nothing.
func (pp *PromptPatch) Empty() bool {
	return pp.Namespace == nil && pp.Name == nil && pp.Version == nil &&
		pp.Lang == nil && pp.Text == nil && pp.Tags == nil &&
		pp.Priority == nil && pp.IsActive == nil && pp.IsDefault == nil
}

// TouchesDefault reports whether the patch changes default-mapping state.
func (pp *PromptPatch) TouchesDefault() bool {
	return pp.IsDefault != nil
}

// SyncResult reports the outcome of a default sweep over one namespace.
type SyncResult struct {
	Namespace string `json:"namespace"`
	// ID is the surviving default, empty when the namespace has none.
	ID string `json:"id,omitempty"`
	// Demoted lists the ids whose isDefault flag was flipped off.
	Demoted []string `json:"demoted"`
}
