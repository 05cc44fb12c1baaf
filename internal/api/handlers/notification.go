package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Harshitk-cp/curio/internal/service"
)

type NotificationHandler struct {
	engine *service.Engine
	hub    *service.Hub
}

func NewNotificationHandler(engine *service.Engine, hub *service.Hub) *NotificationHandler {
	return &NotificationHandler{engine: engine, hub: hub}
}

// Stream sends the subject's notifications as server-sent events until the
// client goes away or the server shuts down. Notifications missed by a slow
// reader can be recovered from the event log.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := uuidParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subject id")
		return
	}
	if _, err := h.engine.Subject(r.Context(), subjectID); err != nil {
		writeServiceError(w, err)
		return
	}

	ch, cancel := h.hub.Subscribe()
	defer cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, ": subscribed\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case n, open := <-ch:
			if !open {
				return
			}
			if n.SubjectID != subjectID {
				continue
			}
			data, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.EventID, n.Type, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
