package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/jacobs-ranch/internal/notify"
)

// eventBuffer is how many events a slow stream may fall behind before the
// bus starts dropping for it.
const eventBuffer = 32

// EventsHandler streams the caller's state-change events as server-sent
// events.
type EventsHandler struct {
	bus    *notify.Bus
	logger *slog.Logger
}

func NewEventsHandler(bus *notify.Bus, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger}
}

// HandleStream
//
// HTTP: GET /api/events
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "Event streaming is not configured.",
		})
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, cancel := h.bus.SubscribeUser(userID, eventBuffer)
	defer cancel()

	if err := rc.Flush(); err != nil {
		h.logger.Warn("event stream not flushable", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, ev)
			_ = rc.Flush()
		}
	}
}

func writeSSE(w io.Writer, ev notify.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "id: %d\n", ev.ID)
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}
