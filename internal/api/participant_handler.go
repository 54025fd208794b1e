package api

import (
	"net/http"

	"pairlab/internal/gateway"
	"pairlab/internal/logging"
)

// ParticipantHandler upgrades /ws and hands the connection to the hub for
// the rest of its life.
type ParticipantHandler struct {
	Hub            *gateway.Hub
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *ParticipantHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Hub == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "experiment unavailable",
		})
		return
	}

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	ctx, span := startWebSocketSpan(r, "/ws")
	defer span.End()
	h.Hub.ServeConn(ctx, conn)
}
