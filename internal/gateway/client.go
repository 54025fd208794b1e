package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	span    trace.Span

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(hub *Hub, id string, conn *websocket.Conn, span trace.Span) *client {
	return &client{
		id:      id,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.options.SendBuffer),
		limiter: rate.NewLimiter(hub.options.RateLimit, hub.options.RateBurst),
		span:    span,
		done:    make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the client is closed or its
// buffer is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.hub.options.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, truncateCloseReason(reason)), deadline)
		_ = c.conn.Close()
		close(c.done)
		if code != websocket.CloseNormalClosure {
			c.span.AddEvent("websocket.close", trace.WithAttributes(
				attribute.Int("websocket.close_code", code),
				attribute.String("websocket.close_reason", reason),
			))
		}
	})
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.options.WriteTimeout)); err != nil {
				c.close(websocket.CloseGoingAway, "write failed")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close(websocket.CloseGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.hub.options.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.close(websocket.CloseGoingAway, "ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump forwards frames to the hub until the connection fails or is
// closed.
func (c *client) readPump(ctx context.Context) {
	conn := c.conn
	conn.SetReadLimit(c.hub.options.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.hub.options.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.hub.options.PongTimeout))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !c.closed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.hub.logger.Warn("websocket read failed", map[string]string{
					"participant.id": c.id,
					"error":          err.Error(),
				})
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.hub.options.PongTimeout))

		if !c.limiter.Allow() {
			c.hub.metrics.IncRejectedMessage("rate_limited")
			c.hub.logger.Warn("rate limit exceeded", map[string]string{
				"participant.id": c.id,
			})
			c.close(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		c.span.AddEvent("websocket.message", trace.WithAttributes(
			attribute.String("pairlab.participant.id", c.id),
			attribute.Int("websocket.message.bytes", len(payload)),
		))
		if !c.hub.submit(ctx, hubEvent{kind: eventMessage, client: c, payload: payload}) {
			return
		}
	}
}

func truncateCloseReason(reason string) string {
	const maxReasonBytes = 123
	if len(reason) <= maxReasonBytes {
		return reason
	}
	return reason[:maxReasonBytes]
}
