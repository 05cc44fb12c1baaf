package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/curio/internal/oracle"
	"github.com/Harshitk-cp/curio/internal/service"
)

type TurnHandler struct {
	engine *service.Engine
}

func NewTurnHandler(engine *service.Engine) *TurnHandler {
	return &TurnHandler{engine: engine}
}

type submitTurnRequest struct {
	StoryCount int               `json:"story_count" validate:"gte=0"`
	Operations []oracle.ToolCall `json:"operations" validate:"required,max=200"`
}

type callErrorResponse struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Submit applies one batch of oracle decisions. A batch with any malformed
// call is refused whole; semantic rejections are reported per operation.
func (h *TurnHandler) Submit(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}

	var req submitTurnRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	batch, errs := oracle.DecodeBatch(req.Operations, req.StoryCount)
	if len(errs) > 0 {
		resp := make([]callErrorResponse, 0, len(errs))
		for _, err := range errs {
			ce := err.(*oracle.CallError)
			resp = append(resp, callErrorResponse{Index: ce.Index, Type: ce.Type, Error: ce.Err.Error()})
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed operations", "operations": resp})
		return
	}

	result, err := h.engine.SubmitTurn(r.Context(), subjectID, batch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
