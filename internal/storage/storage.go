// Package storage defines the provider contracts that the service layer
// persists through, and the sentinel errors providers wrap.
//
// Three stores make up a backend:
// - DevlogStore: devlog entries and their notes
// - HierarchyStore: projects, machines, workspaces, chat sessions
// - EventStore: agent events and agent sessions
//
// Providers live in subpackages (sqlite, postgres, github).
package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/hierarchy"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique-key collisions.
	ErrConflict = errors.New("conflict")
	// ErrInvalid is returned when input fails provider-side validation.
	ErrInvalid = errors.New("invalid input")
	// ErrUnsupported is returned for operations a provider cannot perform.
	ErrUnsupported = errors.New("unsupported operation")
)

// DevlogStore persists devlog entries.
type DevlogStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
	// Get returns the entry with all of its notes.
	Get(ctx context.Context, id int64) (*devlog.Entry, error)
	GetByKey(ctx context.Context, projectID int64, key string) (*devlog.Entry, error)
	// Save inserts when e.ID is zero (assigning the id) and updates
	// otherwise. Notes on e are ignored; use AddNote.
	Save(ctx context.Context, e *devlog.Entry) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error)
	// Search runs a full-text query. An empty query behaves like List.
	Search(ctx context.Context, query string, f devlog.Filter, p devlog.Pagination) (devlog.Page[*devlog.Entry], error)
	AddNote(ctx context.Context, entryID int64, n *devlog.Note) error
	// Notes returns the newest notes first; limit <= 0 returns all.
	Notes(ctx context.Context, entryID int64, limit int) ([]devlog.Note, error)
	Stats(ctx context.Context, f devlog.Filter) (*devlog.Stats, error)
	TimeSeries(ctx context.Context, projectID int64, from, to time.Time) (*devlog.TimeSeriesStats, error)
	Close() error
}

// HierarchyStore persists the project → machine → workspace → chat
// session tree.
type HierarchyStore interface {
	CreateProject(ctx context.Context, p *hierarchy.Project) error
	GetProject(ctx context.Context, id int64) (*hierarchy.Project, error)
	GetProjectByName(ctx context.Context, name string) (*hierarchy.Project, error)
	ListProjects(ctx context.Context) ([]hierarchy.Project, error)
	UpdateProject(ctx context.Context, p *hierarchy.Project) error
	DeleteProject(ctx context.Context, id int64) error

	// UpsertMachine matches on MachineID and fills in ID and CreatedAt.
	UpsertMachine(ctx context.Context, m *hierarchy.Machine) error
	GetMachine(ctx context.Context, id int64) (*hierarchy.Machine, error)
	ListMachines(ctx context.Context) ([]hierarchy.Machine, error)

	// UpsertWorkspace matches on WorkspaceID and fills in ID and CreatedAt.
	UpsertWorkspace(ctx context.Context, w *hierarchy.Workspace) error
	GetWorkspace(ctx context.Context, workspaceID string) (*hierarchy.Workspace, error)
	ListWorkspaces(ctx context.Context, projectID int64) ([]hierarchy.Workspace, error)

	CreateChatSession(ctx context.Context, s *hierarchy.ChatSession) error
	GetChatSession(ctx context.Context, sessionID string) (*hierarchy.ChatSession, error)
	UpdateChatSession(ctx context.Context, s *hierarchy.ChatSession) error
	ListChatSessions(ctx context.Context, workspaceID int64, limit int) ([]hierarchy.ChatSession, error)
	// CountChatSessions returns chat-session counts keyed by workspace row
	// id for every workspace of the project.
	CountChatSessions(ctx context.Context, projectID int64) (map[int64]int, error)

	Close() error
}

// EventStore persists agent events and agent sessions.
type EventStore interface {
	// InsertEvents stores the events and folds them into the metrics of
	// their sessions, all in one transaction.
	InsertEvents(ctx context.Context, events []agent.Event) error
	QueryEvents(ctx context.Context, f agent.EventFilter) ([]agent.Event, error)
	EventStats(ctx context.Context, f agent.EventFilter) (*agent.EventStats, error)
	EventBuckets(ctx context.Context, f agent.EventFilter, interval agent.Interval) ([]agent.TimeBucket, error)

	CreateSession(ctx context.Context, s *agent.Session) error
	GetSession(ctx context.Context, id string) (*agent.Session, error)
	// EndSession writes the end columns (end time, duration, outcome,
	// quality score, context) of a session that is still active. Metrics
	// are left as InsertEvents folded them. An ended session gives
	// ErrConflict, a missing one ErrNotFound.
	EndSession(ctx context.Context, s *agent.Session) error
	ListSessions(ctx context.Context, f agent.SessionFilter) ([]agent.Session, error)

	Close() error
}

// Backend bundles the three stores of one configuration.
type Backend struct {
	Devlogs   DevlogStore
	Hierarchy HierarchyStore
	Events    EventStore

	closers []io.Closer
	once    sync.Once
	err     error
}

// NewBackend bundles stores. closers are closed in order by Close; a
// store backed by a shared handle should appear only once.
func NewBackend(d DevlogStore, h HierarchyStore, e EventStore, closers ...io.Closer) *Backend {
	return &Backend{Devlogs: d, Hierarchy: h, Events: e, closers: closers}
}

// Close releases every underlying handle exactly once.
func (b *Backend) Close() error {
	b.once.Do(func() {
		var errs []error
		for _, c := range b.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		b.err = errors.Join(errs...)
	})
	return b.err
}
