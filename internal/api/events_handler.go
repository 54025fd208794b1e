package api

import (
	"net/http"
	"strings"

	"pairlab/internal/event"
	"pairlab/internal/logging"
)

// EventsHandler streams experiment events to an experimenter dashboard. The
// optional types query parameter is a comma separated allow list; retained
// history is replayed first unless replay=false.
type EventsHandler struct {
	Bus            *event.Bus[event.ExperimentEvent]
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Bus == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "event stream unavailable",
		})
		return
	}

	types := parseTypes(r.URL.Query().Get("types"))
	var (
		output <-chan event.ExperimentEvent
		cancel func()
	)
	if len(types) > 0 {
		output, cancel = h.Bus.SubscribeTypes(types...)
	} else {
		output, cancel = h.Bus.Subscribe()
	}
	defer cancel()

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	_, span := startWebSocketSpan(r, "/ws/events")
	defer span.End()

	var replay []event.ExperimentEvent
	if r.URL.Query().Get("replay") != "false" {
		replay = h.Bus.DumpHistory()
	}
	serveWSStream(wsStreamConfig[event.ExperimentEvent]{
		Conn:   conn,
		Output: output,
		Replay: replay,
		Filter: typeFilter(types),
		Logger: h.Logger,
	})
}

func parseTypes(raw string) []string {
	var types []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, part)
		}
	}
	return types
}

func typeFilter(types []string) func(event.ExperimentEvent) bool {
	if len(types) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(types))
	for _, eventType := range types {
		allowed[eventType] = struct{}{}
	}
	return func(evt event.ExperimentEvent) bool {
		_, ok := allowed[evt.EventType]
		return ok
	}
}
