package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"pairlab/internal/logging"
)

// LogsHandler streams backend log entries. Clients may change the minimum
// level at any time by sending {"level":"warning"}.
type LogsHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type logFilterMessage struct {
	Level string `json:"level"`
}

type levelFilter struct {
	mu    sync.RWMutex
	level logging.Level
}

func (f *levelFilter) Get() logging.Level {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.level
}

func (f *levelFilter) Set(level logging.Level) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

func (f *levelFilter) Allows(entry logging.LogEntry) bool {
	minLevel := f.Get()
	return minLevel == "" || logging.LevelAtLeast(entry.Level, minLevel)
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}

	filter := &levelFilter{}
	if level, ok := logging.ParseLevel(r.URL.Query().Get("level")); ok {
		filter.Set(level)
	}

	output, cancel := h.Logger.Subscribe()
	if output == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
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

	_, span := startWebSocketSpan(r, "/ws/logs")
	defer span.End()

	serveWSStream(wsStreamConfig[logging.LogEntry]{
		Conn:   conn,
		Output: output,
		Replay: h.Logger.Buffer().List(),
		Filter: filter.Allows,
		Logger: h.Logger,
		Control: func(payload []byte) {
			var msg logFilterMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				return
			}
			level, ok := logging.ParseLevel(msg.Level)
			if !ok {
				filter.Set("")
				return
			}
			filter.Set(level)
		},
	})
}
