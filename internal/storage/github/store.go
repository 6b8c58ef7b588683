// Package github stores devlog entries as GitHub issues. Entry ids are
// issue numbers, notes are marked issue comments, and enum fields travel
// as labels. Hierarchy and event data are not kept here; the backend
// pairs this store with a SQLite database for those.
package github

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	gh "github.com/HendryAvila/devlog/internal/github"
	"github.com/HendryAvila/devlog/internal/ratelimit"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	searchPageSize  = 100
	// The search API never returns more than this many results.
	searchResultCap = 1000
	fetchWorkers    = 4
)

// Store implements storage.DevlogStore on one repository.
type Store struct {
	client    *gh.Client
	labels    gh.LabelConfig
	labelDefs map[string]gh.Label
	projectID int64
	logger    *zap.Logger

	mu sync.Mutex // serializes Save so key checks and creates do not interleave
}

var _ storage.DevlogStore = (*Store)(nil)

// New returns a store over client's repository. projectID is assigned to
// issues whose metadata names no project (issues opened by hand).
func New(client *gh.Client, labels gh.LabelConfig, projectID int64, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	defs := map[string]gh.Label{}
	for _, l := range labels.Definitions() {
		defs[l.Name] = l
	}
	return &Store{
		client:    client,
		labels:    labels,
		labelDefs: defs,
		projectID: projectID,
		logger:    logger.Named("github-store"),
	}
}

// RateLimit returns the GitHub budget last reported to the client.
func (s *Store) RateLimit() ratelimit.Snapshot { return s.client.RateLimit() }

// Close is a no-op; the client holds no connections of its own.
func (s *Store) Close() error { return nil }

// ─── Entries ─────────────────────────────────────────────────────────────────

// Exists reports whether id is a devlog issue.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Get returns the entry with its notes, oldest first.
func (s *Store) Get(ctx context.Context, id int64) (*devlog.Entry, error) {
	e, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Notes, err = s.notes(ctx, id); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByKey searches issue bodies for the key and confirms the match
// against the decoded metadata.
func (s *Store) GetByKey(ctx context.Context, projectID int64, key string) (*devlog.Entry, error) {
	q := s.baseQuery() + ` in:body "` + strings.ReplaceAll(key, `"`, "") + `"`
	res, err := s.client.SearchIssues(ctx, q, 1, searchPageSize)
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get devlog by key %q", key), err)
	}
	for i := range res.Items {
		issue := &res.Items[i]
		if !s.isDevlog(issue) {
			continue
		}
		e := s.toEntry(issue)
		if e.Key != key || (projectID != 0 && e.ProjectID != projectID) {
			continue
		}
		if e.Notes, err = s.notes(ctx, e.ID); err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("get devlog by key %q: %w", key, storage.ErrNotFound)
}

// Save creates an issue for a new entry or rewrites an existing one.
func (s *Store) Save(ctx context.Context, e *devlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := gh.EntryToIssue(e, s.labels)
	if err := s.ensureLabels(ctx, req.Labels); err != nil {
		return err
	}

	if e.ID != 0 {
		if _, err := s.client.UpdateIssue(ctx, e.ID, req); err != nil {
			return mapErr(fmt.Sprintf("update devlog %d", e.ID), err)
		}
		return nil
	}

	_, err := s.GetByKey(ctx, e.ProjectID, e.Key)
	switch {
	case err == nil:
		return fmt.Errorf("create devlog %q: key exists: %w", e.Key, storage.ErrConflict)
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	// Issues are always created open; closing is a second edit.
	create := req
	create.State, create.StateReason = "", ""
	issue, err := s.client.CreateIssue(ctx, create)
	if err != nil {
		return mapErr(fmt.Sprintf("create devlog %q", e.Key), err)
	}
	e.ID = issue.Number
	if req.State == "closed" {
		if _, err := s.client.UpdateIssue(ctx, issue.Number, req); err != nil {
			return mapErr(fmt.Sprintf("close devlog %d", e.ID), err)
		}
	}
	if !issue.CreatedAt.IsZero() {
		e.CreatedAt = issue.CreatedAt.UTC()
		devlog.Touch(e, e.UpdatedAt)
	}
	s.logger.Debug("issue created", zap.Int64("number", issue.Number), zap.String("key", e.Key))
	return nil
}

// Delete archives the entry: the issue is closed as not planned and gets
// the archived label. Issues cannot be deleted through the REST API
// without admin rights.
func (s *Store) Delete(ctx context.Context, id int64) error {
	e, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	e.Archived = true
	if err := devlog.ApplyStatus(e, devlog.StatusCancelled, devlog.Now()); err != nil {
		return err
	}
	req := gh.EntryToIssue(e, s.labels)
	if err := s.ensureLabels(ctx, req.Labels); err != nil {
		return err
	}
	if _, err := s.client.UpdateIssue(ctx, id, req); err != nil {
		return mapErr(fmt.Sprintf("delete devlog %d", id), err)
	}
	return nil
}

// List returns one page of matching entries.
func (s *Store) List(ctx context.Context, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error) {
	return s.Search(ctx, f.Search, f, p)
}

// Search pushes what it can of the filter into a search query, then
// finishes filtering, sorting and paging in memory.
func (s *Store) Search(ctx context.Context, query string, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error) {
	entries, err := s.matching(ctx, query, f)
	if err != nil {
		return devlog.Page[*devlog.Entry]{}, err
	}
	return devlog.Paginate(entries, p), nil
}

// Stats aggregates every matching entry in memory.
func (s *Store) Stats(ctx context.Context, f devlog.Filter) (*devlog.Stats, error) {
	entries, err := s.matching(ctx, f.Search, f)
	if err != nil {
		return nil, err
	}
	return devlog.ComputeStats(entries), nil
}

// TimeSeries counts every entry of the project, archived ones included.
func (s *Store) TimeSeries(ctx context.Context, projectID int64, from, to time.Time) (*devlog.TimeSeriesStats, error) {
	entries, err := s.matching(ctx, "", devlog.Filter{ProjectID: projectID, Archived: devlog.ArchiveInclude})
	if err != nil {
		return nil, err
	}
	return devlog.ComputeTimeSeries(entries, from, to), nil
}

// ─── Notes ───────────────────────────────────────────────────────────────────

// AddNote posts the note as a comment. A note repeating one posted within
// devlog.NoteDedupeWindow is not posted again; n is filled from the
// earlier note instead.
func (s *Store) AddNote(ctx context.Context, entryID int64, n *devlog.Note) error {
	if _, err := s.get(ctx, entryID); err != nil {
		return err
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = devlog.Now()
	}
	n.EntryID = entryID

	existing, err := s.notes(ctx, entryID)
	if err != nil {
		return err
	}
	hash := n.ContentHash()
	cutoff := n.Timestamp.Add(-devlog.NoteDedupeWindow)
	for i := len(existing) - 1; i >= 0; i-- {
		ex := existing[i]
		if ex.Timestamp.Before(cutoff) {
			break
		}
		if ex.ContentHash() == hash {
			*n = ex
			return nil
		}
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if _, err := s.client.CreateComment(ctx, entryID, gh.FormatNoteComment(n)); err != nil {
		return mapErr(fmt.Sprintf("add note to devlog %d", entryID), err)
	}
	return nil
}

// Notes returns the newest notes first.
func (s *Store) Notes(ctx context.Context, entryID int64, limit int) ([]devlog.Note, error) {
	notes, err := s.notes(ctx, entryID)
	if err != nil {
		return nil, err
	}
	slices.Reverse(notes)
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

// notes returns the entry's notes oldest first.
func (s *Store) notes(ctx context.Context, entryID int64) ([]devlog.Note, error) {
	comments, err := s.client.ListComments(ctx, entryID)
	if err != nil {
		return nil, mapErr(fmt.Sprintf("list notes of devlog %d", entryID), err)
	}
	out := []devlog.Note{}
	for _, c := range comments {
		n, ok := gh.ParseNoteComment(c.Body)
		if !ok {
			continue
		}
		n.EntryID = entryID
		out = append(out, *n)
	}
	slices.SortStableFunc(out, func(a, b devlog.Note) int { return a.Timestamp.Compare(b.Timestamp) })
	return out, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Store) get(ctx context.Context, id int64) (*devlog.Entry, error) {
	issue, err := s.client.GetIssue(ctx, id)
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get devlog %d", id), err)
	}
	if !s.isDevlog(issue) {
		return nil, fmt.Errorf("get devlog %d: issue is not a devlog entry: %w", id, storage.ErrNotFound)
	}
	return s.toEntry(issue), nil
}

func (s *Store) isDevlog(issue *gh.Issue) bool {
	return issue.PullRequest == nil && s.labels.Parse(issue.LabelNames()).IsDevlog
}

func (s *Store) toEntry(issue *gh.Issue) *devlog.Entry {
	e := gh.IssueToEntry(issue, s.labels)
	if e.ProjectID == 0 {
		e.ProjectID = s.projectID
	}
	return e
}

func (s *Store) ensureLabels(ctx context.Context, names []string) error {
	for _, name := range names {
		def, ok := s.labelDefs[name]
		if !ok {
			def = gh.Label{Name: name}
		}
		if err := s.client.EnsureLabel(ctx, def); err != nil {
			return mapErr("ensure labels", err)
		}
	}
	return nil
}

func quoteLabel(name string) string { return `label:"` + name + `"` }

func (s *Store) baseQuery() string {
	return "repo:" + s.client.Repo() + " is:issue " + quoteLabel(s.labels.Base())
}

// searchQuery narrows the search with single-valued filters. Multi-valued
// filters are applied in memory.
func (s *Store) searchQuery(text string, f devlog.Filter) string {
	parts := []string{s.baseQuery()}
	if len(f.Status) == 1 {
		parts = append(parts, quoteLabel(s.labels.Status(f.Status[0])))
	}
	if len(f.Type) == 1 {
		parts = append(parts, quoteLabel(s.labels.Type(f.Type[0])))
	}
	if len(f.Priority) == 1 {
		parts = append(parts, quoteLabel(s.labels.Priority(f.Priority[0])))
	}
	switch f.Archived {
	case devlog.ArchiveExclude:
		parts = append(parts, "-"+quoteLabel(s.labels.Archived()))
	case devlog.ArchiveOnly:
		parts = append(parts, quoteLabel(s.labels.Archived()))
	}
	if f.Assignee != "" {
		parts = append(parts, "assignee:"+f.Assignee)
	}
	if text = strings.TrimSpace(text); text != "" {
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// matching fetches every issue for the query and applies the filter. The
// text search is left to GitHub, whose word matching differs from the
// substring match devlog.Matches would apply.
func (s *Store) matching(ctx context.Context, text string, f devlog.Filter) ([]*devlog.Entry, error) {
	issues, err := s.fetchAll(ctx, s.searchQuery(text, f))
	if err != nil {
		return nil, err
	}
	f.Search = ""
	seen := map[int64]bool{}
	out := []*devlog.Entry{}
	for i := range issues {
		issue := &issues[i]
		if seen[issue.Number] || !s.isDevlog(issue) {
			continue
		}
		seen[issue.Number] = true
		if e := s.toEntry(issue); devlog.Matches(e, f) {
			out = append(out, e)
		}
	}
	return out, nil
}

// fetchAll reads the first page to learn the total, then the remaining
// pages concurrently.
func (s *Store) fetchAll(ctx context.Context, query string) ([]gh.Issue, error) {
	first, err := s.client.SearchIssues(ctx, query, 1, searchPageSize)
	if err != nil {
		return nil, mapErr("search devlogs", err)
	}
	total := min(first.TotalCount, searchResultCap)
	pages := (total + searchPageSize - 1) / searchPageSize
	if pages <= 1 {
		return first.Items, nil
	}

	results := make([][]gh.Issue, pages)
	results[0] = first.Items
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for page := 2; page <= pages; page++ {
		g.Go(func() error {
			res, err := s.client.SearchIssues(gctx, query, page, searchPageSize)
			if err != nil {
				return err
			}
			results[page-1] = res.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, mapErr("search devlogs", err)
	}
	return slices.Concat(results...), nil
}

func mapErr(op string, err error) error {
	if gh.IsNotFound(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
