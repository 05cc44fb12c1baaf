package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Harshitk-cp/curio/internal/service"
	"github.com/google/uuid"
)

type CognitiveHandler struct {
	decayService *service.DecayService
}

func NewCognitiveHandler(ds *service.DecayService) *CognitiveHandler {
	return &CognitiveHandler{decayService: ds}
}

type triggerDecayRequest struct {
	SubjectID string `json:"subject_id" validate:"omitempty,uuid"`
}

// TriggerDecay runs a decay pass now, for one subject or for all of them.
func (h *CognitiveHandler) TriggerDecay(w http.ResponseWriter, r *http.Request) {
	var req triggerDecayRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SubjectID == "" {
		writeJSON(w, http.StatusOK, h.decayService.RunDecay(r.Context()))
		return
	}

	subjectID := uuid.MustParse(req.SubjectID)
	n, err := h.decayService.RunDecayForSubject(r.Context(), subjectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.DecayResult{SubjectsScanned: 1, CuriositiesDecayed: n})
}
