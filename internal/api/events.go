package api

import (
	"net/http"

	"github.com/HendryAvila/devlog/internal/agent"
)

// ─── Events ──────────────────────────────────────────────────────────────────

func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var e agent.Event
	if err := decode(w, r, &e); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Events.Ingest(r.Context(), &e); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, e, nil)
}

// EventBatch is the body of POST /api/events/batch.
type EventBatch struct {
	Events []agent.Event `json:"events"`
}

// BatchAccepted reports how many events a batch stored.
type BatchAccepted struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

func (h *Handler) ingestEvents(w http.ResponseWriter, r *http.Request) {
	var in EventBatch
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Events.IngestBatch(r.Context(), in.Events); err != nil {
		h.fail(w, r, err)
		return
	}
	out := BatchAccepted{Count: len(in.Events), IDs: make([]string, len(in.Events))}
	for i, e := range in.Events {
		out.IDs[i] = e.ID
	}
	h.respond(w, r, http.StatusCreated, out, nil)
}

func (h *Handler) queryEvents(w http.ResponseWriter, r *http.Request) {
	f, err := eventFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.svc.Events.Query(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, events, nil)
}

func (h *Handler) eventStats(w http.ResponseWriter, r *http.Request) {
	f, err := eventFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.svc.Events.Stats(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, stats, nil)
}

func (h *Handler) eventTimeSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := eventFilter(q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	buckets, err := h.svc.Events.TimeBuckets(r.Context(), f, q.Get("interval"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, buckets, nil)
}

// ─── Agent sessions ──────────────────────────────────────────────────────────

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	f, err := sessionFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sessions, err := h.svc.Events.ListSessions(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, sessions, nil)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var in agent.StartInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.svc.Events.StartSession(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, s, nil)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Events.GetSession(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, s, nil)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	var in agent.EndInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.svc.Events.EndSession(r.Context(), r.PathValue("sessionID"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, s, nil)
}

func (h *Handler) sessionEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, err := queryInt(q, "offset", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.svc.Events.SessionEvents(r.Context(), r.PathValue("sessionID"), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, events, nil)
}
