package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/service"
)

type SubjectHandler struct {
	engine *service.Engine
}

func NewSubjectHandler(engine *service.Engine) *SubjectHandler {
	return &SubjectHandler{engine: engine}
}

type ensureSubjectRequest struct {
	ExternalID string `json:"external_id" validate:"required,max=256"`
}

// Ensure creates the subject on first contact and returns it afterwards.
func (h *SubjectHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	var req ensureSubjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "external_id is required")
		return
	}

	sub, created, err := h.engine.EnsureSubject(r.Context(), req.ExternalID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sub)
}

func (h *SubjectHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	sub, err := h.engine.Subject(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subjectResponse{Subject: sub, TurnState: h.engine.TurnState(id)})
}

type subjectResponse struct {
	*domain.Subject
	TurnState service.TurnState `json:"turn_state"`
}

// Rebuild refolds the subject's event log and rewrites its snapshots.
func (h *SubjectHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	res, err := h.engine.RebuildSubject(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SubjectHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	if err := h.engine.ArchiveSubject(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
