package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/HendryAvila/devlog/internal/api"
	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/service"
)

func devlogsPath(projectID int64) string {
	return fmt.Sprintf("/api/projects/%d/devlogs", projectID)
}

func entryPath(projectID, id int64) string {
	return fmt.Sprintf("/api/projects/%d/devlogs/%d", projectID, id)
}

// ListDevlogs returns one page of a project's entries.
func (c *Client) ListDevlogs(ctx context.Context, projectID int64, f devlog.Filter, p devlog.Pagination) (devlog.Page[devlog.Entry], error) {
	return c.page(ctx, devlogsPath(projectID), devlogQuery(f, p))
}

// SearchDevlogs runs a full-text search within a project.
func (c *Client) SearchDevlogs(ctx context.Context, projectID int64, query string, f devlog.Filter, p devlog.Pagination) (devlog.Page[devlog.Entry], error) {
	q := devlogQuery(f, p)
	q.Set("q", query)
	return c.page(ctx, devlogsPath(projectID)+"/search", q)
}

func (c *Client) page(ctx context.Context, path string, q url.Values) (devlog.Page[devlog.Entry], error) {
	var page devlog.Page[devlog.Entry]
	meta, err := c.do(ctx, http.MethodGet, path, q, nil, &page.Items)
	if err != nil {
		return page, err
	}
	if meta != nil && meta.Pagination != nil {
		page.Pagination = *meta.Pagination
	}
	return page, nil
}

// RelatedDevlogs finds entries that share significant words with text.
func (c *Client) RelatedDevlogs(ctx context.Context, projectID int64, text string, limit int) ([]service.RelatedEntry, error) {
	q := url.Values{"text": {text}}
	setInt(q, "limit", limit)
	var out []service.RelatedEntry
	_, err := c.do(ctx, http.MethodGet, devlogsPath(projectID)+"/related", q, nil, &out)
	return out, err
}

// DevlogStats returns the overview counters of a project.
func (c *Client) DevlogStats(ctx context.Context, projectID int64, f devlog.Filter) (*devlog.Stats, error) {
	var out devlog.Stats
	if _, err := c.do(ctx, http.MethodGet, devlogsPath(projectID)+"/stats/overview", devlogQuery(f, devlog.Pagination{}), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DevlogTimeSeries returns the per-day history of the last days days.
func (c *Client) DevlogTimeSeries(ctx context.Context, projectID int64, days int) (*devlog.TimeSeriesStats, error) {
	q := url.Values{}
	setInt(q, "days", days)
	var out devlog.TimeSeriesStats
	if _, err := c.do(ctx, http.MethodGet, devlogsPath(projectID)+"/stats/timeseries", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDevlog creates an entry in a project.
func (c *Client) CreateDevlog(ctx context.Context, projectID int64, in service.CreateInput) (*devlog.Entry, error) {
	return c.entry(ctx, http.MethodPost, devlogsPath(projectID), in)
}

// GetDevlog returns an entry with its notes.
func (c *Client) GetDevlog(ctx context.Context, projectID, id int64) (*devlog.Entry, error) {
	return c.entry(ctx, http.MethodGet, entryPath(projectID, id), nil)
}

// UpdateDevlog applies a partial update.
func (c *Client) UpdateDevlog(ctx context.Context, projectID, id int64, in service.UpdateInput) (*devlog.Entry, error) {
	return c.entry(ctx, http.MethodPut, entryPath(projectID, id), in)
}

// DeleteDevlog removes an entry.
func (c *Client) DeleteDevlog(ctx context.Context, projectID, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, entryPath(projectID, id), nil, nil, nil)
	return err
}

// CompleteDevlog marks an entry done with a summary.
func (c *Client) CompleteDevlog(ctx context.Context, projectID, id int64, summary string) (*devlog.Entry, error) {
	return c.entry(ctx, http.MethodPost, entryPath(projectID, id)+"/complete", api.CompleteRequest{Summary: summary})
}

// CloseDevlog cancels an entry with a reason.
func (c *Client) CloseDevlog(ctx context.Context, projectID, id int64, reason string) (*devlog.Entry, error) {
	return c.entry(ctx, http.MethodPost, entryPath(projectID, id)+"/close", api.CloseRequest{Reason: reason})
}

// ArchiveDevlog hides an entry from default listings.
func (c *Client) ArchiveDevlog(ctx context.Context, projectID, id int64) (*devlog.Entry, error) {
	return c.entry(ctx, http.MethodPost, entryPath(projectID, id)+"/archive", nil)
}

// UnarchiveDevlog restores an archived entry.
func (c *Client) UnarchiveDevlog(ctx context.Context, projectID, id int64) (*devlog.Entry, error) {
	return c.entry(ctx, http.MethodPost, entryPath(projectID, id)+"/unarchive", nil)
}

func (c *Client) entry(ctx context.Context, method, path string, body any) (*devlog.Entry, error) {
	var out devlog.Entry
	if _, err := c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notes returns an entry's notes, newest first. limit 0 means all.
func (c *Client) Notes(ctx context.Context, projectID, id int64, limit int) ([]devlog.Note, error) {
	q := url.Values{}
	setInt(q, "limit", limit)
	var out []devlog.Note
	_, err := c.do(ctx, http.MethodGet, entryPath(projectID, id)+"/notes", q, nil, &out)
	return out, err
}

// AddNote appends a note to an entry.
func (c *Client) AddNote(ctx context.Context, projectID, id int64, in service.NoteInput) (*devlog.Note, error) {
	var out devlog.Note
	if _, err := c.do(ctx, http.MethodPost, entryPath(projectID, id)+"/notes", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchUpdate applies one update to many entries.
func (c *Client) BatchUpdate(ctx context.Context, projectID int64, ids []int64, in service.UpdateInput) ([]service.BatchResult, error) {
	return c.batch(ctx, projectID, "update", api.BatchRequest{IDs: ids, Updates: &in})
}

// BatchDelete removes many entries.
func (c *Client) BatchDelete(ctx context.Context, projectID int64, ids []int64) ([]service.BatchResult, error) {
	return c.batch(ctx, projectID, "delete", api.BatchRequest{IDs: ids})
}

// BatchNote adds the same note to many entries.
func (c *Client) BatchNote(ctx context.Context, projectID int64, ids []int64, in service.NoteInput) ([]service.BatchResult, error) {
	return c.batch(ctx, projectID, "note", api.BatchRequest{IDs: ids, Note: &in})
}

func (c *Client) batch(ctx context.Context, projectID int64, op string, req api.BatchRequest) ([]service.BatchResult, error) {
	var out []service.BatchResult
	_, err := c.do(ctx, http.MethodPost, devlogsPath(projectID)+"/batch/"+op, nil, req, &out)
	return out, err
}
