package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/postgres"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// newTestStore connects to DEVLOG_TEST_POSTGRES_DSN. Every test works in
// a project with a unique name so runs do not collide.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("DEVLOG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DEVLOG_TEST_POSTGRES_DSN not set")
	}
	s, err := postgres.Open(context.Background(), dsn, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newProject(t *testing.T, s *postgres.Store) int64 {
	t.Helper()
	ctx := context.Background()
	p := &hierarchy.Project{Name: "test-" + uuid.NewString(), CreatedAt: t0, UpdatedAt: t0}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteProject(context.Background(), p.ID) })
	return p.ID
}

func newEntry(projectID int64, title string) *devlog.Entry {
	return &devlog.Entry{
		Key:       devlog.GenerateKey(title),
		Title:     title,
		Type:      devlog.TypeFeature,
		Status:    devlog.StatusNew,
		Priority:  devlog.PriorityHigh,
		ProjectID: projectID,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func TestDevlogs_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	e := newEntry(pid, "Add webhook retries")
	e.Description = "Retry failed webhook deliveries with backoff"
	e.Files = []string{"internal/webhook/retry.go"}
	if err := s.Save(ctx, e); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if e.ID == 0 {
		t.Fatal("Save did not assign an id")
	}

	dup := newEntry(pid, "Add webhook retries")
	if err := s.Save(ctx, dup); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate key err = %v, want ErrConflict", err)
	}

	note := &devlog.Note{Category: devlog.NoteProgress, Content: "Backoff implemented", Timestamp: t0.Add(time.Hour)}
	if err := s.AddNote(ctx, e.ID, note); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	again := &devlog.Note{Category: devlog.NoteProgress, Content: "backoff   IMPLEMENTED", Timestamp: t0.Add(time.Hour + time.Minute)}
	if err := s.AddNote(ctx, e.ID, again); err != nil {
		t.Fatalf("AddNote (duplicate): %v", err)
	}
	if again.ID != note.ID {
		t.Errorf("duplicate note got a new id %q, want %q", again.ID, note.ID)
	}

	got, err := s.GetByKey(ctx, pid, e.Key)
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if got.Title != e.Title || len(got.Notes) != 1 || len(got.Files) != 1 {
		t.Errorf("entry = %+v", got)
	}

	page, err := s.Search(ctx, "webhook", devlog.Filter{ProjectID: pid}, devlog.Pagination{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Pagination.Total != 1 {
		t.Errorf("search total = %d, want 1", page.Pagination.Total)
	}

	if err := s.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
}

func TestEvents_FoldIntoSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)
	sid := uuid.NewString()

	if err := s.CreateSession(ctx, &agent.Session{ID: sid, AgentID: "claude", ProjectID: pid, StartTime: t0}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	events := []agent.Event{
		{ID: uuid.NewString(), Timestamp: t0, Type: agent.EventFileWrite, AgentID: "claude", SessionID: sid, ProjectID: pid, Severity: agent.SeverityInfo},
		{ID: uuid.NewString(), Timestamp: t0.Add(time.Minute), Type: agent.EventLLMResponse, AgentID: "claude", SessionID: sid, ProjectID: pid,
			Severity: agent.SeverityError, Metrics: &agent.EventMetrics{TokenCount: 40}},
	}
	if err := s.InsertEvents(ctx, events); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	sess, err := s.GetSession(ctx, sid)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Metrics.EventsCount != 2 || sess.Metrics.TokensUsed != 40 || sess.Metrics.ErrorsEncountered != 1 {
		t.Errorf("metrics = %+v", sess.Metrics)
	}

	buckets, err := s.EventBuckets(ctx, agent.EventFilter{SessionID: sid}, agent.IntervalHour)
	if err != nil {
		t.Fatalf("EventBuckets: %v", err)
	}
	if len(buckets) != 1 || !buckets[0].Bucket.Equal(t0) || buckets[0].EventCount != 2 {
		t.Errorf("buckets = %+v", buckets)
	}
}
