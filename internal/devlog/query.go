package devlog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ArchiveMode controls whether archived entries take part in a query.
type ArchiveMode string

const (
	// ArchiveExclude hides archived entries (the zero value).
	ArchiveExclude ArchiveMode = ""
	// ArchiveOnly returns archived entries only.
	ArchiveOnly ArchiveMode = "only"
	// ArchiveInclude returns both.
	ArchiveInclude ArchiveMode = "all"
)

// ParseArchiveMode maps the query-string spelling to a mode.
// "true" → only, "false"/"" → exclude, "all" → include.
func ParseArchiveMode(v string) (ArchiveMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false":
		return ArchiveExclude, nil
	case "true", "only":
		return ArchiveOnly, nil
	case "all":
		return ArchiveInclude, nil
	}
	return ArchiveExclude, fmt.Errorf("invalid archived value %q: must be true, false or all", v)
}

// Filter narrows a listing. Zero values mean "no constraint", except
// Archived whose zero value excludes archived entries.
type Filter struct {
	ProjectID int64       `json:"projectId,omitempty"`
	Status    []Status    `json:"status,omitempty"`
	Type      []EntryType `json:"type,omitempty"`
	Priority  []Priority  `json:"priority,omitempty"`
	Assignee  string      `json:"assignee,omitempty"`
	FromDate  *time.Time  `json:"fromDate,omitempty"`
	ToDate    *time.Time  `json:"toDate,omitempty"`
	Search    string      `json:"search,omitempty"`
	Archived  ArchiveMode `json:"archived,omitempty"`
}

// Validate checks every enum value in the filter.
func (f Filter) Validate() error {
	for _, s := range f.Status {
		if err := ValidateStatus(s); err != nil {
			return err
		}
	}
	for _, t := range f.Type {
		if err := ValidateType(t); err != nil {
			return err
		}
	}
	for _, p := range f.Priority {
		if err := ValidatePriority(p); err != nil {
			return err
		}
	}
	if f.FromDate != nil && f.ToDate != nil && f.ToDate.Before(*f.FromDate) {
		return fmt.Errorf("toDate must not be before fromDate")
	}
	return nil
}

// Matches applies the filter to a single entry. Providers that cannot
// push a filter into their backend use this to finish the job in memory.
func Matches(e *Entry, f Filter) bool {
	if f.ProjectID != 0 && e.ProjectID != f.ProjectID {
		return false
	}
	switch f.Archived {
	case ArchiveExclude:
		if e.Archived {
			return false
		}
	case ArchiveOnly:
		if !e.Archived {
			return false
		}
	}
	if len(f.Status) > 0 && !contains(f.Status, e.Status) {
		return false
	}
	if len(f.Type) > 0 && !contains(f.Type, e.Type) {
		return false
	}
	if len(f.Priority) > 0 && !contains(f.Priority, e.Priority) {
		return false
	}
	if f.Assignee != "" && !strings.EqualFold(f.Assignee, e.Assignee) {
		return false
	}
	if f.FromDate != nil && e.CreatedAt.Before(*f.FromDate) {
		return false
	}
	if f.ToDate != nil && e.CreatedAt.After(*f.ToDate) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(e.Title + "\n" + e.Description + "\n" +
			e.Context.BusinessContext + "\n" + e.Context.TechnicalContext)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// --- Pagination ---

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SortField names a sortable column.
type SortField string

const (
	SortID        SortField = "id"
	SortTitle     SortField = "title"
	SortType      SortField = "type"
	SortStatus    SortField = "status"
	SortPriority  SortField = "priority"
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortClosedAt  SortField = "closedAt"
)

var validSortFields = map[SortField]bool{
	SortID: true, SortTitle: true, SortType: true, SortStatus: true,
	SortPriority: true, SortCreatedAt: true, SortUpdatedAt: true, SortClosedAt: true,
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Pagination selects one page of a sorted listing.
type Pagination struct {
	Page      int       `json:"page"`
	Limit     int       `json:"limit"`
	SortBy    SortField `json:"sortBy"`
	SortOrder SortOrder `json:"sortOrder"`
}

// NormalizePagination fills defaults and clamps out-of-range values.
// Unknown sort fields fall back to updatedAt.
func NormalizePagination(p Pagination) Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if !validSortFields[p.SortBy] {
		p.SortBy = SortUpdatedAt
	}
	if p.SortOrder != SortAsc {
		p.SortOrder = SortDesc
	}
	return p
}

// Offset returns the number of rows to skip for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageMeta describes where a page sits in the full result.
type PageMeta struct {
	Page            int  `json:"page"`
	Limit           int  `json:"limit"`
	Total           int  `json:"total"`
	TotalPages      int  `json:"totalPages"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	HasNextPage     bool `json:"hasNextPage"`
}

// Page is one page of results with its metadata.
type Page[T any] struct {
	Items      []T      `json:"items"`
	Pagination PageMeta `json:"pagination"`
}

// NewPage builds a page from already-sliced items and the full total.
func NewPage[T any](items []T, p Pagination, total int) Page[T] {
	p = NormalizePagination(p)
	totalPages := 0
	if total > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items: items,
		Pagination: PageMeta{
			Page:            p.Page,
			Limit:           p.Limit,
			Total:           total,
			TotalPages:      totalPages,
			HasPreviousPage: p.Page > 1,
			HasNextPage:     p.Page < totalPages,
		},
	}
}

// Paginate sorts, slices and wraps an in-memory result set.
func Paginate(entries []*Entry, p Pagination) Page[*Entry] {
	p = NormalizePagination(p)
	SortEntries(entries, p)

	total := len(entries)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return NewPage(entries[start:end], p, total)
}

// SortEntries sorts in place by the pagination's sort field and order.
// Ties are broken by id so the order is total.
func SortEntries(entries []*Entry, p Pagination) {
	p = NormalizePagination(p)
	less := lessFunc(p.SortBy)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		c := less(a, b)
		if c == 0 {
			c = cmpInt(a.ID, b.ID)
		}
		if p.SortOrder == SortAsc {
			return c < 0
		}
		return c > 0
	})
}

func lessFunc(field SortField) func(a, b *Entry) int {
	switch field {
	case SortID:
		return func(a, b *Entry) int { return cmpInt(a.ID, b.ID) }
	case SortTitle:
		return func(a, b *Entry) int { return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) }
	case SortType:
		return func(a, b *Entry) int { return strings.Compare(string(a.Type), string(b.Type)) }
	case SortStatus:
		return func(a, b *Entry) int { return strings.Compare(string(a.Status), string(b.Status)) }
	case SortPriority:
		return func(a, b *Entry) int { return cmpInt(int64(a.Priority.Rank()), int64(b.Priority.Rank())) }
	case SortCreatedAt:
		return func(a, b *Entry) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortClosedAt:
		return func(a, b *Entry) int { return cmpTimePtr(a.ClosedAt, b.ClosedAt) }
	default:
		return func(a, b *Entry) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// cmpTimePtr orders nil (still open) before any timestamp.
func cmpTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}
