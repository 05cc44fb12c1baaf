package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/service"
)

type CuriosityHandler struct {
	engine     *service.Engine
	thresholds domain.Thresholds
}

func NewCuriosityHandler(engine *service.Engine, t domain.Thresholds) *CuriosityHandler {
	return &CuriosityHandler{engine: engine, thresholds: t}
}

type curiosityResponse struct {
	domain.Curiosity
	Band         string `json:"band,omitempty"`
	StatusReason string `json:"status_reason"`
}

func (h *CuriosityHandler) present(c domain.Curiosity) curiosityResponse {
	resp := curiosityResponse{Curiosity: c, StatusReason: h.thresholds.StatusReason(c.Kind, c.Value())}
	if c.Nature == domain.NatureReceptive {
		resp.Band = domain.FullnessBand(c.Value())
	}
	return resp
}

func (h *CuriosityHandler) List(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	active := r.URL.Query().Get("active") == "true"

	list, err := h.engine.Curiosities(r.Context(), subjectID, active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]curiosityResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, h.present(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"curiosities": resp, "count": len(resp)})
}

func (h *CuriosityHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	curiosityID, ok := uuidParam(r, "cid")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid curiosity id")
		return
	}

	c, err := h.engine.Curiosity(r.Context(), subjectID, curiosityID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(*c))
}

func (h *CuriosityHandler) Events(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	var after int64
	if s := r.URL.Query().Get("after"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative sequence")
			return
		}
		after = n
	}

	events, err := h.engine.Events(r.Context(), subjectID, after)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []domain.CuriosityEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
