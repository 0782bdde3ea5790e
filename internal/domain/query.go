package domain

// Sort keys accepted by ListFilter.
const (
	SortByPriority  = "priority"
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// MaxListLimit caps the page size of a listing.
const MaxListLimit = 200

// DefaultListLimit applies when the caller does not supply one.
const DefaultListLimit = 50

// ListFilter narrows and pages a prompt listing. Equality and containment
// predicates only; everything beyond the namespace prefix is applied in
// memory after the store-level page is fetched.
type ListFilter struct {
	Namespace string
	Name      string
	IsActive  *bool
	Tag       string

	Limit  int
	Cursor string

	SortBy    string // priority | createdAt | updatedAt (default createdAt)
	SortOrder string // asc | desc (default asc)
}

// Normalize applies defaults and caps, and validates the sort keys.
func (f *ListFilter) Normalize() error {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	switch f.SortBy {
	case "":
		f.SortBy = SortByCreatedAt
	case SortByPriority, SortByCreatedAt, SortByUpdatedAt:
	default:
		return &ValidationError{Field: "sortBy", Message: "must be one of priority, createdAt, updatedAt"}
	}
	switch f.SortOrder {
	case "":
		f.SortOrder = SortAsc
	case SortAsc, SortDesc:
	default:
		return &ValidationError{Field: "sortOrder", Message: "must be asc or desc"}
	}
	return nil
}

// Matches applies the in-memory predicates of the filter.
// The namespace predicate is included so the full-scan path can use it too.
func (f *ListFilter) Matches(p *Prompt) bool {
	if f.Namespace != "" && p.Namespace != f.Namespace {
		return false
	}
	if f.Name != "" && p.Name != f.Name {
		return false
	}
	if f.IsActive != nil && p.IsActive != *f.IsActive {
		return false
	}
	if f.Tag != "" && !p.HasTag(f.Tag) {
		return false
	}
	return true
}

// ListPage is one page of a listing. An empty NextCursor means the scan is
// exhausted. A page may hold fewer than limit items while more matches exist
// further in the scan; callers follow NextCursor until it is empty.
type ListPage struct {
	Items      []*Prompt `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// Criteria is a soft query for best-match resolution. Any subset of the
// fields may be set; an entirely empty criteria resolves to nothing.
type Criteria struct {
	Namespace string
	Name      string
	Version   int // 0 = unset; versions start at 1
	Lang      string
	Tags      []string
	Priority  *int

	// Flag gates used by the fixed runtime specialization.
	IsActive  *bool
	IsDefault *bool
}

// Empty reports whether no selective predicate is present.
func (c *Criteria) Empty() bool {
	return c.Namespace == "" && c.Name == "" && c.Version == 0 &&
		c.Lang == "" && len(c.Tags) == 0 && c.Priority == nil
}

// Exact reports whether the criteria pins a full natural key, enabling a
// single index lookup instead of a scan.
func (c *Criteria) Exact() bool {
	return c.Namespace != "" && c.Name != "" && c.Version > 0
}

// Matches applies every supplied predicate to p.
func (c *Criteria) Matches(p *Prompt) bool {
	if c.Namespace != "" && p.Namespace != c.Namespace {
		return false
	}
	if c.Name != "" && p.Name != c.Name {
		return false
	}
	if c.Version > 0 && p.Version != c.Version {
		return false
	}
	if c.Lang != "" && p.Lang != c.Lang {
		return false
	}
	for _, tag := range c.Tags {
		if !p.HasTag(tag) {
			return false
		}
	}
	if c.Priority != nil && p.Priority != *c.Priority {
		return false
	}
	if c.IsActive != nil && p.IsActive != *c.IsActive {
		return false
	}
	if c.IsDefault != nil && p.IsDefault != *c.IsDefault {
		return false
	}
	return true
}
