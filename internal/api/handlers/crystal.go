package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/service"
	"github.com/google/uuid"
)

type CrystalHandler struct {
	engine *service.Engine
}

func NewCrystalHandler(engine *service.Engine) *CrystalHandler {
	return &CrystalHandler{engine: engine}
}

type createCrystalRequest struct {
	RequestID          string   `json:"request_id" validate:"omitempty,uuid"`
	SourceCuriosityIDs []string `json:"source_curiosity_ids" validate:"dive,uuid"`
	SummaryRef         string   `json:"summary_ref" validate:"max=2048"`
}

type crystalResponse struct {
	*domain.Crystal
	Stale bool `json:"stale"`
}

// Create records the synthesizer's answer to a SynthesisRequested notification.
func (h *CrystalHandler) Create(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	var req createCrystalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := &domain.Crystal{SubjectID: subjectID, SummaryRef: req.SummaryRef, SourceCuriosityIDs: []uuid.UUID{}}
	if req.RequestID != "" {
		id := uuid.MustParse(req.RequestID)
		c.RequestID = &id
	}
	for _, s := range req.SourceCuriosityIDs {
		c.SourceCuriosityIDs = append(c.SourceCuriosityIDs, uuid.MustParse(s))
	}

	if err := h.engine.RecordCrystal(r.Context(), c); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, crystalResponse{Crystal: c})
}

func (h *CrystalHandler) Latest(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	c, stale, err := h.engine.LatestCrystal(r.Context(), subjectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, crystalResponse{Crystal: c, Stale: stale})
}
