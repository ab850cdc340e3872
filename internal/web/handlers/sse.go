package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/flow"
	"github.com/kozaktomas/hair-advisor/internal/web/middleware"
)

// EventsHandler streams session events as server-sent events.
type EventsHandler struct {
	log logrus.FieldLogger
}

func NewEventsHandler(log logrus.FieldLogger) *EventsHandler {
	return &EventsHandler{log: log}
}

// setupSSEConnection sets the SSE headers. On failure it writes an error response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

// sendSSEEvent writes one event frame.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}

// Stream sends the current state as a "status" event, then every flow event until the
// session closes or the client disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	eventCh := s.Flow.AddListener()
	defer s.Flow.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "status", s.Flow.View())

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if event.Type == flow.EventClosed {
				return
			}
		}
	}
}
