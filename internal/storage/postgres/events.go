package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlq"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ─── Events ──────────────────────────────────────────────────────────────────

const eventColumns = `id, timestamp, event_type, agent_id, agent_version, session_id, project_id,
	context, data, metrics, parent_event_id, related_event_ids, tags, severity`

func scanEvent(row pgx.Row) (*agent.Event, error) {
	var e agent.Event
	var ctxJSON, dataJSON, metrics, related, tags []byte
	if err := row.Scan(&e.ID, &e.Timestamp, &e.Type, &e.AgentID, &e.AgentVersion, &e.SessionID, &e.ProjectID,
		&ctxJSON, &dataJSON, &metrics, &e.ParentEventID, &related, &tags, &e.Severity); err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	fromJSON(ctxJSON, &e.Context)
	fromJSON(dataJSON, &e.Data)
	if len(metrics) > 0 && string(metrics) != "null" {
		e.Metrics = &agent.EventMetrics{}
		fromJSON(metrics, e.Metrics)
	}
	fromJSON(related, &e.RelatedEventIDs)
	fromJSON(tags, &e.Tags)
	return &e, nil
}

// InsertEvents stores events and folds them into their sessions' metrics
// in one transaction. The inserts go out as one pgx batch.
func (s *Store) InsertEvents(ctx context.Context, events []agent.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("insert events: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	perSession := map[string]*agent.SessionMetrics{}
	var order []string
	batch := &pgx.Batch{}
	for i := range events {
		e := &events[i]
		var metrics []byte
		if e.Metrics != nil {
			metrics = jsonb(e.Metrics)
		}
		data := e.Data
		if data == nil {
			data = map[string]any{}
		}
		batch.Queue(
			`INSERT INTO agent_events (`+eventColumns+`, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			e.ID, e.Timestamp.UTC(), string(e.Type), e.AgentID, e.AgentVersion, e.SessionID, e.ProjectID,
			jsonb(e.Context), jsonb(data), metrics, e.ParentEventID,
			jsonb(nonNil(e.RelatedEventIDs)), jsonb(nonNil(e.Tags)), string(e.Severity), e.TokenCount(),
		)

		m, ok := perSession[e.SessionID]
		if !ok {
			m = &agent.SessionMetrics{}
			perSession[e.SessionID] = m
			order = append(order, e.SessionID)
		}
		m.Add(e)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range events {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return mapErr(fmt.Sprintf("insert event %q", events[i].ID), err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}

	for _, id := range order {
		var raw []byte
		err := tx.QueryRow(ctx, "SELECT metrics FROM agent_sessions WHERE id = $1 FOR UPDATE", id).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("insert events: load session %q: %w", id, err)
		}
		var current agent.SessionMetrics
		fromJSON(raw, &current)
		current.Merge(*perSession[id])
		if _, err := tx.Exec(ctx, "UPDATE agent_sessions SET metrics = $1 WHERE id = $2", jsonb(current), id); err != nil {
			return fmt.Errorf("insert events: update session %q: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("insert events: commit: %w", err)
	}
	s.logger.Debug("events stored", zap.Int("count", len(events)), zap.Int("sessions", len(order)))
	return nil
}

// QueryEvents returns matching events, newest first.
func (s *Store) QueryEvents(ctx context.Context, f agent.EventFilter) ([]agent.Event, error) {
	if f.Limit <= 0 {
		f.Limit = agent.DefaultEventLimit
	}
	where, args := sqlq.EventFilter(sqlq.New(sqlq.Postgres), f).Where()
	rows, err := s.pool.Query(ctx,
		q("SELECT "+eventColumns+" FROM agent_events"+where+" ORDER BY timestamp DESC, id LIMIT ? OFFSET ?"),
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []agent.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("query events: scan: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// EventStats aggregates matching events. Limit and offset are ignored.
func (s *Store) EventStats(ctx context.Context, f agent.EventFilter) (*agent.EventStats, error) {
	where, args := sqlq.EventFilter(sqlq.New(sqlq.Postgres), f).Where()
	rows, err := s.pool.Query(ctx, q(
		"SELECT event_type, severity, COUNT(*), COALESCE(SUM(token_count), 0) FROM agent_events"+where+
			" GROUP BY event_type, severity"), args...)
	if err != nil {
		return nil, fmt.Errorf("event stats: %w", err)
	}
	defer rows.Close()

	stats := agent.NewEventStats()
	for rows.Next() {
		var typ agent.EventType
		var sev agent.Severity
		var n, tokens int64
		if err := rows.Scan(&typ, &sev, &n, &tokens); err != nil {
			return nil, fmt.Errorf("event stats: scan: %w", err)
		}
		stats.TotalEvents += int(n)
		stats.ByType[typ] += int(n)
		stats.BySeverity[sev] += int(n)
		stats.TotalTokens += int(tokens)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.Finalize()
	return stats, nil
}

// EventBuckets groups matching events with date_trunc in UTC, oldest
// bucket first.
func (s *Store) EventBuckets(ctx context.Context, f agent.EventFilter, interval agent.Interval) ([]agent.TimeBucket, error) {
	if interval == "" {
		interval = agent.IntervalHour
	}
	where, args := sqlq.EventFilter(sqlq.New(sqlq.Postgres), f).Where()
	query := `SELECT date_trunc(?, timestamp AT TIME ZONE 'UTC') AS bucket,
			COUNT(*),
			COALESCE(SUM(token_count), 0),
			COUNT(*) FILTER (WHERE severity IN ('error', 'critical')),
			COUNT(DISTINCT event_type)
		 FROM agent_events` + where + `
		 GROUP BY bucket ORDER BY bucket`
	rows, err := s.pool.Query(ctx, q(query), append([]any{string(interval)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("event buckets: %w", err)
	}
	defer rows.Close()

	out := []agent.TimeBucket{}
	for rows.Next() {
		var b agent.TimeBucket
		var events, tokens, errs, types int64
		if err := rows.Scan(&b.Bucket, &events, &tokens, &errs, &types); err != nil {
			return nil, fmt.Errorf("event buckets: scan: %w", err)
		}
		b.Bucket = b.Bucket.UTC()
		b.EventCount, b.TokenCount, b.ErrorCount, b.UniqueTypes = int(events), int(tokens), int(errs), int(types)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ─── Agent sessions ──────────────────────────────────────────────────────────

const sessionColumns = "id, agent_id, agent_version, project_id, start_time, end_time, duration, context, metrics, outcome, quality_score"

func scanSession(row pgx.Row) (*agent.Session, error) {
	var a agent.Session
	var ctxJSON, metrics []byte
	if err := row.Scan(&a.ID, &a.AgentID, &a.AgentVersion, &a.ProjectID, &a.StartTime, &a.EndTime, &a.Duration,
		&ctxJSON, &metrics, &a.Outcome, &a.QualityScore); err != nil {
		return nil, err
	}
	a.StartTime = a.StartTime.UTC()
	a.EndTime = utcPtr(a.EndTime)
	fromJSON(ctxJSON, &a.Context)
	fromJSON(metrics, &a.Metrics)
	return &a, nil
}

// CreateSession inserts an agent session.
func (s *Store) CreateSession(ctx context.Context, a *agent.Session) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO agent_sessions ("+sessionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		a.ID, a.AgentID, a.AgentVersion, a.ProjectID, a.StartTime.UTC(), utcPtr(a.EndTime),
		a.Duration, jsonb(a.Context), jsonb(a.Metrics), string(a.Outcome), a.QualityScore,
	)
	return mapErr(fmt.Sprintf("create session %q", a.ID), err)
}

// GetSession returns an agent session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*agent.Session, error) {
	a, err := scanSession(s.pool.QueryRow(ctx, "SELECT "+sessionColumns+" FROM agent_sessions WHERE id = $1", id))
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get session %q", id), err)
	}
	return a, nil
}

// EndSession stamps the end of an active session in one conditional
// UPDATE, so concurrent ends and event folds cannot overwrite each other.
func (s *Store) EndSession(ctx context.Context, a *agent.Session) error {
	op := fmt.Sprintf("end session %q", a.ID)
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_sessions SET end_time = $1, duration = $2, context = $3, outcome = $4, quality_score = $5
		 WHERE id = $6 AND end_time IS NULL`,
		utcPtr(a.EndTime), a.Duration, jsonb(a.Context), string(a.Outcome), a.QualityScore, a.ID,
	)
	if err != nil {
		return mapErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetSession(ctx, a.ID); err != nil {
			return err
		}
		return fmt.Errorf("%s: already ended: %w", op, storage.ErrConflict)
	}
	return nil
}

// ListSessions returns matching sessions, most recently started first.
func (s *Store) ListSessions(ctx context.Context, f agent.SessionFilter) ([]agent.Session, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	where, args := sqlq.SessionFilter(sqlq.New(sqlq.Postgres), f).Where()
	rows, err := s.pool.Query(ctx,
		q("SELECT "+sessionColumns+" FROM agent_sessions"+where+" ORDER BY start_time DESC, id LIMIT ? OFFSET ?"),
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []agent.Session{}
	for rows.Next() {
		a, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
