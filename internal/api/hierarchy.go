package api

import (
	"net/http"

	"github.com/HendryAvila/devlog/internal/hierarchy"
)

// ─── Projects ────────────────────────────────────────────────────────────────

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.Hierarchy.ListProjects(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, projects, nil)
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.ProjectInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.svc.Hierarchy.CreateProject(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, p, nil)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.svc.Hierarchy.GetProject(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, p, nil)
}

func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in hierarchy.ProjectInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.svc.Hierarchy.UpdateProject(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, p, nil)
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Hierarchy.DeleteProject(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, Deleted{ID: id, Deleted: true}, nil)
}

func (h *Handler) projectHierarchy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tree, err := h.svc.Hierarchy.ProjectHierarchy(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, tree, nil)
}

// ─── Machines and workspaces ─────────────────────────────────────────────────

func (h *Handler) listMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := h.svc.Hierarchy.ListMachines(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, machines, nil)
}

func (h *Handler) upsertMachine(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.MachineInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.svc.Hierarchy.UpsertMachine(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, m, nil)
}

func (h *Handler) getMachine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "machineID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.svc.Hierarchy.GetMachine(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, m, nil)
}

func (h *Handler) upsertWorkspace(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.WorkspaceInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	ws, err := h.svc.Hierarchy.UpsertWorkspace(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ws, nil)
}

// resolveWorkspace returns the workspace with its project and machine.
func (h *Handler) resolveWorkspace(w http.ResponseWriter, r *http.Request) {
	wc, err := h.svc.Hierarchy.ResolveWorkspace(r.Context(), r.PathValue("workspaceID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, wc, nil)
}

// ─── Chat sessions ───────────────────────────────────────────────────────────

func (h *Handler) listChatSessions(w http.ResponseWriter, r *http.Request) {
	ws, err := h.svc.Hierarchy.GetWorkspace(r.Context(), r.PathValue("workspaceID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := queryInt(r.URL.Query(), "limit", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sessions, err := h.svc.Hierarchy.ListChatSessions(r.Context(), ws.ID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, sessions, nil)
}

func (h *Handler) createChatSession(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.ChatSessionInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Hierarchy.CreateChatSession(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, c, nil)
}

func (h *Handler) getChatSession(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Hierarchy.GetChatSession(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c, nil)
}

func (h *Handler) endChatSession(w http.ResponseWriter, r *http.Request) {
	var in hierarchy.ChatSessionEnd
	if err := decodeOptional(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Hierarchy.EndChatSession(r.Context(), r.PathValue("sessionID"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, c, nil)
}
