package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/HendryAvila/devlog/internal/agent"
	"github.com/HendryAvila/devlog/internal/api"
)

// ─── Events ──────────────────────────────────────────────────────────────────

// IngestEvent records one event and returns it with its id and
// timestamp filled.
func (c *Client) IngestEvent(ctx context.Context, e agent.Event) (*agent.Event, error) {
	var out agent.Event
	if _, err := c.do(ctx, http.MethodPost, "/api/events", nil, e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IngestEvents records a batch of events atomically.
func (c *Client) IngestEvents(ctx context.Context, events []agent.Event) (*api.BatchAccepted, error) {
	var out api.BatchAccepted
	if _, err := c.do(ctx, http.MethodPost, "/api/events/batch", nil, api.EventBatch{Events: events}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryEvents returns matching events, newest first.
func (c *Client) QueryEvents(ctx context.Context, f agent.EventFilter) ([]agent.Event, error) {
	var out []agent.Event
	_, err := c.do(ctx, http.MethodGet, "/api/events", eventQuery(f), nil, &out)
	return out, err
}

// EventStats aggregates matching events.
func (c *Client) EventStats(ctx context.Context, f agent.EventFilter) (*agent.EventStats, error) {
	var out agent.EventStats
	if _, err := c.do(ctx, http.MethodGet, "/api/events/stats", eventQuery(f), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventTimeSeries groups matching events per interval.
func (c *Client) EventTimeSeries(ctx context.Context, f agent.EventFilter, interval agent.Interval) ([]agent.TimeBucket, error) {
	q := eventQuery(f)
	setString(q, "interval", string(interval))
	var out []agent.TimeBucket
	_, err := c.do(ctx, http.MethodGet, "/api/events/timeseries", q, nil, &out)
	return out, err
}

// ─── Agent sessions ──────────────────────────────────────────────────────────

// ListSessions returns matching agent sessions.
func (c *Client) ListSessions(ctx context.Context, f agent.SessionFilter) ([]agent.Session, error) {
	var out []agent.Session
	_, err := c.do(ctx, http.MethodGet, "/api/sessions", sessionQuery(f), nil, &out)
	return out, err
}

// StartSession opens an agent session.
func (c *Client) StartSession(ctx context.Context, in agent.StartInput) (*agent.Session, error) {
	return c.session(ctx, http.MethodPost, "/api/sessions", in)
}

// GetSession returns an agent session.
func (c *Client) GetSession(ctx context.Context, id string) (*agent.Session, error) {
	return c.session(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil)
}

// EndSession closes an agent session.
func (c *Client) EndSession(ctx context.Context, id string, in agent.EndInput) (*agent.Session, error) {
	return c.session(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/end", in)
}

func (c *Client) session(ctx context.Context, method, path string, body any) (*agent.Session, error) {
	var out agent.Session
	if _, err := c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionEvents returns the events of one session, newest first.
func (c *Client) SessionEvents(ctx context.Context, id string, limit, offset int) ([]agent.Event, error) {
	q := url.Values{}
	setInt(q, "limit", limit)
	setInt(q, "offset", offset)
	var out []agent.Event
	_, err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id)+"/events", q, nil, &out)
	return out, err
}
