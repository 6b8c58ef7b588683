package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/HendryAvila/devlog/internal/hierarchy"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestServices opens services over a SQLite database in a temp dir,
// with a clock starting at t0.
func newTestServices(t *testing.T) (*service.Services, *clock) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "devlog.db"), zap.NewNop())
	require.NoError(t, err)
	b := storage.NewBackend(s, s, s, s)
	t.Cleanup(func() { _ = b.Close() })

	c := &clock{now: t0}
	return service.New(b, zap.NewNop(), service.WithClock(c.Now)), c
}

func newProject(t *testing.T, svc *service.Services, name string) int64 {
	t.Helper()
	p, err := svc.Hierarchy.CreateProject(context.Background(), hierarchy.ProjectInput{Name: name})
	require.NoError(t, err)
	return p.ID
}

func ptr[T any](v T) *T { return &v }
