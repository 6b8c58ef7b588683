package api

import (
	"net/http"
	"strings"

	"github.com/HendryAvila/devlog/internal/service"
)

// ─── Devlog entries ──────────────────────────────────────────────────────────

func (h *Handler) listDevlogs(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	f, err := devlogFilter(q, projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := pagination(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.Devlogs.List(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, page.Items, &page.Pagination)
}

func (h *Handler) searchDevlogs(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		h.fail(w, r, badRequest("q is required"))
		return
	}
	f, err := devlogFilter(q, projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := pagination(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.Devlogs.Search(r.Context(), query, f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, page.Items, &page.Pagination)
}

func (h *Handler) relatedDevlogs(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	limit, err := queryInt(q, "limit", service.DefaultRelatedLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	related, err := h.svc.Devlogs.DiscoverRelated(r.Context(), projectID, q.Get("text"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, related, nil)
}

func (h *Handler) devlogStats(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := devlogFilter(r.URL.Query(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.svc.Devlogs.Stats(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, stats, nil)
}

func (h *Handler) devlogTimeSeries(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	days, err := queryInt(r.URL.Query(), "days", 30)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ts, err := h.svc.Devlogs.TimeSeries(r.Context(), projectID, days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ts, nil)
}

func (h *Handler) createDevlog(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in service.CreateInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.ProjectID = projectID
	e, err := h.svc.Devlogs.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, e, nil)
}

// entryIDs reads the project and entry ids of a single-entry route.
func entryIDs(r *http.Request) (projectID, id int64, err error) {
	if projectID, err = pathID(r, "projectID"); err != nil {
		return 0, 0, err
	}
	if id, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	return projectID, id, nil
}

func (h *Handler) getDevlog(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Devlogs.Get(r.Context(), projectID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, e, nil)
}

func (h *Handler) updateDevlog(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in service.UpdateInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Devlogs.Update(r.Context(), projectID, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, e, nil)
}

// Deleted is the body of a successful DELETE.
type Deleted struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

func (h *Handler) deleteDevlog(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Devlogs.Delete(r.Context(), projectID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, Deleted{ID: id, Deleted: true}, nil)
}

// ─── Notes and workflow ──────────────────────────────────────────────────────

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r.URL.Query(), "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	notes, err := h.svc.Devlogs.Notes(r.Context(), projectID, id, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, notes, nil)
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in service.NoteInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.svc.Devlogs.AddNote(r.Context(), projectID, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, n, nil)
}

// CompleteRequest is the body of the complete route.
type CompleteRequest struct {
	Summary string `json:"summary"`
}

// CloseRequest is the body of the close route.
type CloseRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) completeDevlog(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in CompleteRequest
	if err := decodeOptional(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Devlogs.Complete(r.Context(), projectID, id, in.Summary)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, e, nil)
}

func (h *Handler) closeDevlog(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in CloseRequest
	if err := decodeOptional(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Devlogs.Close(r.Context(), projectID, id, in.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, e, nil)
}

func (h *Handler) archiveDevlog(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Devlogs.Archive(r.Context(), projectID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, e, nil)
}

func (h *Handler) unarchiveDevlog(w http.ResponseWriter, r *http.Request) {
	projectID, id, err := entryIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Devlogs.Unarchive(r.Context(), projectID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, e, nil)
}

// ─── Batch operations ────────────────────────────────────────────────────────

// BatchRequest is the body of the batch routes. Updates is read by
// batch/update and Note by batch/note.
type BatchRequest struct {
	IDs     []int64              `json:"ids"`
	Updates *service.UpdateInput `json:"updates,omitempty"`
	Note    *service.NoteInput   `json:"note,omitempty"`
}

func (h *Handler) batchUpdate(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, func(req BatchRequest, projectID int64) ([]service.BatchResult, error) {
		if req.Updates == nil {
			return nil, badRequest("updates is required")
		}
		return h.svc.Devlogs.BatchUpdate(r.Context(), projectID, req.IDs, *req.Updates)
	})
}

func (h *Handler) batchDelete(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, func(req BatchRequest, projectID int64) ([]service.BatchResult, error) {
		return h.svc.Devlogs.BatchDelete(r.Context(), projectID, req.IDs)
	})
}

func (h *Handler) batchNote(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, func(req BatchRequest, projectID int64) ([]service.BatchResult, error) {
		if req.Note == nil {
			return nil, badRequest("note is required")
		}
		return h.svc.Devlogs.BatchNote(r.Context(), projectID, req.IDs, *req.Note)
	})
}

// batch decodes a BatchRequest and responds with the per-id results.
// Per-id failures do not fail the request.
func (h *Handler) batch(w http.ResponseWriter, r *http.Request, run func(BatchRequest, int64) ([]service.BatchResult, error)) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req BatchRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	results, err := run(req, projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, results, nil)
}
