package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/devlog/internal/devlog"
	gh "github.com/HendryAvila/devlog/internal/github"
	"github.com/HendryAvila/devlog/internal/storage"
	ghstore "github.com/HendryAvila/devlog/internal/storage/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeGitHub keeps issues and comments in memory and serves the handful
// of endpoints the store uses. Search ignores free text and returns every
// issue carrying all label: qualifiers and none of the -label: ones.
type fakeGitHub struct {
	mu       sync.Mutex
	issues   map[int64]*gh.Issue
	comments map[int64][]gh.Comment
	next     int64
	searches int
}

func newFake() *fakeGitHub {
	return &fakeGitHub{issues: map[int64]*gh.Issue{}, comments: map[int64][]gh.Comment{}, next: 1}
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	number := func(r *http.Request) int64 {
		n, _ := strconv.ParseInt(r.PathValue("n"), 10, 64)
		return n
	}
	notFound := map[string]string{"message": "Not Found"}

	mux.HandleFunc("GET /repos/acme/app/labels/{name}", func(w http.ResponseWriter, r *http.Request) {
		write(w, 200, gh.Label{Name: r.PathValue("name")})
	})
	mux.HandleFunc("POST /repos/acme/app/issues", func(w http.ResponseWriter, r *http.Request) {
		var req gh.IssueRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		defer f.mu.Unlock()
		issue := &gh.Issue{Number: f.next, State: "open", CreatedAt: t0, UpdatedAt: t0}
		f.next++
		apply(issue, req)
		f.issues[issue.Number] = issue
		write(w, 201, issue)
	})
	mux.HandleFunc("GET /repos/acme/app/issues/{n}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		issue, ok := f.issues[number(r)]
		if !ok {
			write(w, 404, notFound)
			return
		}
		write(w, 200, issue)
	})
	mux.HandleFunc("PATCH /repos/acme/app/issues/{n}", func(w http.ResponseWriter, r *http.Request) {
		var req gh.IssueRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		defer f.mu.Unlock()
		issue, ok := f.issues[number(r)]
		if !ok {
			write(w, 404, notFound)
			return
		}
		apply(issue, req)
		write(w, 200, issue)
	})
	mux.HandleFunc("GET /repos/acme/app/issues/{n}/comments", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.issues[number(r)]; !ok {
			write(w, 404, notFound)
			return
		}
		out := f.comments[number(r)]
		if out == nil {
			out = []gh.Comment{}
		}
		write(w, 200, out)
	})
	mux.HandleFunc("POST /repos/acme/app/issues/{n}/comments", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Body string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		c := gh.Comment{ID: int64(len(f.comments[number(r)]) + 1), Body: body.Body}
		f.comments[number(r)] = append(f.comments[number(r)], c)
		write(w, 201, c)
	})
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.searches++
		q := r.URL.Query().Get("q")
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

		var matched []gh.Issue
		for _, n := range sortedKeys(f.issues) {
			if searchMatches(f.issues[n], q) {
				matched = append(matched, *f.issues[n])
			}
		}
		res := gh.SearchResult{TotalCount: len(matched), Items: []gh.Issue{}}
		start := (page - 1) * perPage
		if start < len(matched) {
			res.Items = matched[start:min(start+perPage, len(matched))]
		}
		write(w, 200, res)
	})
	return mux
}

func apply(issue *gh.Issue, req gh.IssueRequest) {
	issue.Title, issue.Body = req.Title, req.Body
	issue.Labels = nil
	for _, l := range req.Labels {
		issue.Labels = append(issue.Labels, gh.Label{Name: l})
	}
	issue.Assignees = nil
	for _, a := range req.Assignees {
		issue.Assignees = append(issue.Assignees, gh.User{Login: a})
	}
	if req.State != "" {
		issue.State, issue.StateReason = req.State, req.StateReason
	}
	issue.UpdatedAt = issue.UpdatedAt.Add(time.Minute)
}

func searchMatches(issue *gh.Issue, q string) bool {
	names := issue.LabelNames()
	for _, part := range strings.Split(q, " ") {
		neg := strings.HasPrefix(part, "-label:")
		if !neg && !strings.HasPrefix(part, "label:") {
			continue
		}
		name := strings.Trim(part[strings.Index(part, ":")+1:], `"`)
		if slices.Contains(names, name) == neg {
			return false
		}
	}
	return true
}

func sortedKeys(m map[int64]*gh.Issue) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func newTestStore(t *testing.T) (*ghstore.Store, *fakeGitHub) {
	t.Helper()
	fake := newFake()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	client := gh.NewClient(gh.Config{BaseURL: srv.URL, Owner: "acme", Repo: "app", Token: "tok"}, nil, nil, nil)
	return ghstore.New(client, gh.LabelConfig{}, 1, nil), fake
}

func newEntry(title string, typ devlog.EntryType) *devlog.Entry {
	return &devlog.Entry{
		Key:         devlog.GenerateKey(title),
		Title:       title,
		Type:        typ,
		Status:      devlog.StatusNew,
		Priority:    devlog.PriorityMedium,
		ProjectID:   1,
		Description: "About " + title,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
}

func TestSave_CreateGetUpdate(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	e := newEntry("Add webhook retries", devlog.TypeFeature)
	e.Context.AcceptanceCriteria = []string{"Retries back off"}
	require.NoError(t, s.Save(ctx, e))
	assert.Equal(t, int64(1), e.ID)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Key, got.Key)
	assert.Equal(t, devlog.TypeFeature, got.Type)
	assert.Equal(t, []string{"Retries back off"}, got.Context.AcceptanceCriteria)
	assert.Empty(t, got.Notes)

	require.NoError(t, devlog.ApplyStatus(got, devlog.StatusDone, t0.Add(time.Hour)))
	require.NoError(t, s.Save(ctx, got))
	assert.Equal(t, "closed", fake.issues[e.ID].State)
	assert.Equal(t, "completed", fake.issues[e.ID].StateReason)

	dup := newEntry("Add webhook retries", devlog.TypeTask)
	assert.ErrorIs(t, s.Save(ctx, dup), storage.ErrConflict)
}

func TestSave_CreateClosedEntry(t *testing.T) {
	s, fake := newTestStore(t)
	e := newEntry("Drop legacy API", devlog.TypeRefactor)
	require.NoError(t, devlog.ApplyStatus(e, devlog.StatusCancelled, t0))
	require.NoError(t, s.Save(context.Background(), e))
	assert.Equal(t, "closed", fake.issues[e.ID].State)
	assert.Equal(t, "not_planned", fake.issues[e.ID].StateReason)
}

func TestGet_NotFoundAndForeignIssue(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	fake.issues[99] = &gh.Issue{Number: 99, Title: "Random bug report", State: "open"}
	fake.next = 100

	_, err := s.Get(ctx, 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Get(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound, "issues without the devlog label are invisible")

	ok, err := s.Exists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_ArchivesIssue(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	e := newEntry("Flaky test", devlog.TypeBugfix)
	require.NoError(t, s.Save(ctx, e))

	require.NoError(t, s.Delete(ctx, e.ID))
	issue := fake.issues[e.ID]
	assert.Equal(t, "closed", issue.State)
	assert.Equal(t, "not_planned", issue.StateReason)
	assert.Contains(t, issue.LabelNames(), "devlog-archived")

	page, err := s.List(ctx, devlog.Filter{}, devlog.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Pagination.Total, "archived entries are hidden by default")

	page, err = s.List(ctx, devlog.Filter{Archived: devlog.ArchiveOnly}, devlog.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Total)

	assert.ErrorIs(t, s.Delete(ctx, 404), storage.ErrNotFound)
}

func TestList_FiltersAndPagesConcurrently(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	for i := range 230 {
		typ := devlog.TypeTask
		if i%10 == 0 {
			typ = devlog.TypeBugfix
		}
		e := newEntry("Entry "+strconv.Itoa(i), typ)
		require.NoError(t, s.Save(ctx, e))
	}
	fake.searches = 0

	page, err := s.List(ctx, devlog.Filter{Type: []devlog.EntryType{devlog.TypeBugfix, devlog.TypeTask}}, devlog.Pagination{Page: 2, Limit: 50, SortBy: devlog.SortID, SortOrder: devlog.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, 230, page.Pagination.Total)
	assert.Equal(t, 3, fake.searches, "three search pages of 100")
	require.Len(t, page.Items, 50)
	assert.Equal(t, int64(51), page.Items[0].ID)

	bugs, err := s.List(ctx, devlog.Filter{Type: []devlog.EntryType{devlog.TypeBugfix}}, devlog.Pagination{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 23, bugs.Pagination.Total)

	stats, err := s.Stats(ctx, devlog.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 230, stats.TotalEntries)
	assert.Equal(t, 23, stats.ByType[devlog.TypeBugfix])
}

func TestNotes_DedupeAndOrder(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	e := newEntry("Tune GC", devlog.TypeTask)
	require.NoError(t, s.Save(ctx, e))

	// Discussion comments are not notes.
	fake.comments[e.ID] = append(fake.comments[e.ID], gh.Comment{ID: 100, Body: "nice work"})

	first := &devlog.Note{Category: devlog.NoteProgress, Content: "Set GOGC=200", Timestamp: t0}
	require.NoError(t, s.AddNote(ctx, e.ID, first))
	require.NotEmpty(t, first.ID)

	repeat := &devlog.Note{Category: devlog.NoteProgress, Content: "set gogc=200 ", Timestamp: t0.Add(time.Minute)}
	require.NoError(t, s.AddNote(ctx, e.ID, repeat))
	assert.Equal(t, first.ID, repeat.ID)

	second := &devlog.Note{Category: devlog.NoteSolution, Content: "Heap is stable", Timestamp: t0.Add(2 * time.Minute)}
	require.NoError(t, s.AddNote(ctx, e.ID, second))

	notes, err := s.Notes(ctx, e.ID, 0)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, second.ID, notes[0].ID, "newest first")

	latest, err := s.Notes(ctx, e.ID, 1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got.Notes, 2)
	assert.Equal(t, first.ID, got.Notes[0].ID, "entry notes oldest first")

	err = s.AddNote(ctx, 999, &devlog.Note{Category: devlog.NoteIdea, Content: "x"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestGetByKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a := newEntry("Cache warmup", devlog.TypeTask)
	b := newEntry("Cache eviction", devlog.TypeTask)
	require.NoError(t, s.Save(ctx, a))
	require.NoError(t, s.Save(ctx, b))

	got, err := s.GetByKey(ctx, 1, "cache-eviction")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = s.GetByKey(ctx, 2, "cache-eviction")
	assert.ErrorIs(t, err, storage.ErrNotFound, "key belongs to another project")
}

func TestTimeSeries(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	e := newEntry("Ship it", devlog.TypeTask)
	require.NoError(t, s.Save(ctx, e))

	ts, err := s.TimeSeries(ctx, 1, t0, t0.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, ts.DataPoints, 3)
	assert.Equal(t, 1, ts.DataPoints[0].DailyCreated)
	assert.Equal(t, 1, ts.DataPoints[2].Open)
}
