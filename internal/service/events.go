package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxEventBatch caps the events accepted by one IngestBatch call.
const MaxEventBatch = 1000

// EventService records agent events and manages agent sessions.
type EventService struct {
	store  storage.EventStore
	logger *zap.Logger
	now    func() time.Time
}

// ─── Events ──────────────────────────────────────────────────────────────────

// Ingest validates and stores one event.
func (s *EventService) Ingest(ctx context.Context, e *agent.Event) error {
	if err := s.prepare(e); err != nil {
		return err
	}
	return s.store.InsertEvents(ctx, []agent.Event{*e})
}

// IngestBatch validates every event first and then stores them all in one
// transaction; one bad event rejects the batch.
func (s *EventService) IngestBatch(ctx context.Context, events []agent.Event) error {
	if len(events) == 0 {
		return invalidf("events must not be empty")
	}
	if len(events) > MaxEventBatch {
		return invalidf("at most %d events per batch, got %d", MaxEventBatch, len(events))
	}
	for i := range events {
		if err := s.prepare(&events[i]); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	if err := s.store.InsertEvents(ctx, events); err != nil {
		return err
	}
	s.logger.Debug("event batch stored", zap.Int("count", len(events)))
	return nil
}

// prepare fills the id and timestamp and validates the event.
func (s *EventService) prepare(e *agent.Event) error {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if err := e.Validate(); err != nil {
		return invalid(err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *EventService) Query(ctx context.Context, f agent.EventFilter) ([]agent.Event, error) {
	if err := f.Normalize(); err != nil {
		return nil, invalid(err)
	}
	return s.store.QueryEvents(ctx, f)
}

// Stats aggregates matching events.
func (s *EventService) Stats(ctx context.Context, f agent.EventFilter) (*agent.EventStats, error) {
	if err := f.Normalize(); err != nil {
		return nil, invalid(err)
	}
	return s.store.EventStats(ctx, f)
}

// TimeBuckets groups matching events per interval ("minute", "hour" or
// "day"; empty means hour).
func (s *EventService) TimeBuckets(ctx context.Context, f agent.EventFilter, interval string) ([]agent.TimeBucket, error) {
	iv, err := agent.ParseInterval(interval)
	if err != nil {
		return nil, invalid(err)
	}
	if err := f.Normalize(); err != nil {
		return nil, invalid(err)
	}
	return s.store.EventBuckets(ctx, f, iv)
}

// ─── Agent sessions ──────────────────────────────────────────────────────────

// StartSession opens an agent session. A missing id gets a UUID.
func (s *EventService) StartSession(ctx context.Context, in agent.StartInput) (*agent.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	a := &agent.Session{
		ID:           strings.TrimSpace(in.ID),
		AgentID:      in.AgentID,
		AgentVersion: in.AgentVersion,
		ProjectID:    in.ProjectID,
		StartTime:    s.now(),
		Context:      in.Context,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := s.store.CreateSession(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("agent session started", zap.String("session", a.ID), zap.String("agent", a.AgentID), zap.Int64("project", a.ProjectID))
	return a, nil
}

// EndSession closes an agent session, computing its duration. Ending a
// session twice is a conflict. The returned session carries every event
// folded in up to the end, including ones ingested while ending.
func (s *EventService) EndSession(ctx context.Context, id string, in agent.EndInput) (*agent.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	a, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Active() {
		return nil, fmt.Errorf("agent session %q already ended: %w", id, storage.ErrConflict)
	}
	if err := a.End(in, s.now()); err != nil {
		return nil, invalid(err)
	}
	if err := s.store.EndSession(ctx, a); err != nil {
		return nil, err
	}
	ended, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("agent session ended",
		zap.String("session", ended.ID),
		zap.String("outcome", string(ended.Outcome)),
		zap.Int64("duration_s", *a.Duration),
		zap.Int("events", ended.Metrics.EventsCount))
	return ended, nil
}

// GetSession returns an agent session by id.
func (s *EventService) GetSession(ctx context.Context, id string) (*agent.Session, error) {
	return s.store.GetSession(ctx, id)
}

// ListSessions returns matching sessions, most recently started first.
func (s *EventService) ListSessions(ctx context.Context, f agent.SessionFilter) ([]agent.Session, error) {
	if err := f.Normalize(); err != nil {
		return nil, invalid(err)
	}
	return s.store.ListSessions(ctx, f)
}

// SessionEvents returns the events of one session, newest first.
func (s *EventService) SessionEvents(ctx context.Context, id string, limit, offset int) ([]agent.Event, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return s.Query(ctx, agent.EventFilter{SessionID: id, Limit: limit, Offset: offset})
}
