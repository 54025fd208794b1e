package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pairlab/internal/experiment"
	"pairlab/internal/logging"
	"pairlab/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	DefaultSendBuffer     = 64
	DefaultRateLimit      = 20
	DefaultRateBurst      = 40
	DefaultWriteTimeout   = 10 * time.Second
	DefaultPongTimeout    = 60 * time.Second
	DefaultMaxMessageSize = 64 * 1024
	eventQueueSize        = 256
)

var ErrHubStopped = errors.New("hub stopped")

type HubOptions struct {
	// Engine configures the experiment engine the hub owns. Its Sender is
	// always the hub.
	Engine         experiment.Options
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	SendBuffer     int
	RateLimit      rate.Limit
	RateBurst      int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	NewID          func() string
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventDisconnect
	eventMessage
	eventSnapshot
)

type hubEvent struct {
	kind    eventKind
	client  *client
	payload []byte
	reply   chan experiment.Snapshot
}

// Hub serializes every engine interaction onto the goroutine running Run.
type Hub struct {
	options HubOptions
	engine  *experiment.Engine
	clients map[string]*client
	events  chan hubEvent
	done    chan struct{}
	logger  *logging.Logger
	metrics *metrics.Registry
}

func NewHub(options HubOptions) *Hub {
	if options.SendBuffer <= 0 {
		options.SendBuffer = DefaultSendBuffer
	}
	if options.RateLimit <= 0 {
		options.RateLimit = DefaultRateLimit
	}
	if options.RateBurst <= 0 {
		options.RateBurst = DefaultRateBurst
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = DefaultWriteTimeout
	}
	if options.PongTimeout <= 0 {
		options.PongTimeout = DefaultPongTimeout
	}
	if options.PingInterval <= 0 || options.PingInterval >= options.PongTimeout {
		options.PingInterval = options.PongTimeout * 9 / 10
	}
	if options.MaxMessageSize <= 0 {
		options.MaxMessageSize = DefaultMaxMessageSize
	}
	if options.NewID == nil {
		options.NewID = uuid.NewString
	}
	if options.Engine.Logger == nil {
		options.Engine.Logger = options.Logger
	}
	if options.Engine.Metrics == nil {
		options.Engine.Metrics = options.Metrics
	}

	hub := &Hub{
		options: options,
		clients: make(map[string]*client),
		events:  make(chan hubEvent, eventQueueSize),
		done:    make(chan struct{}),
		logger:  options.Logger.Category("gateway"),
		metrics: options.Metrics,
	}
	engineOptions := options.Engine
	engineOptions.Sender = hub
	hub.engine = experiment.NewEngine(engineOptions)
	return hub
}

// Run processes events until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll(websocket.CloseGoingAway, "server shutting down")
			return ctx.Err()
		case evt := <-h.events:
			h.handle(evt)
		}
	}
}

// ServeConn runs one participant connection to completion. ctx carries the
// connection span, if any.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn) {
	span := trace.SpanFromContext(ctx)
	c := newClient(h, h.options.NewID(), conn, span)
	span.SetAttributes(attribute.String("pairlab.participant.id", c.id))

	go c.writePump()
	go func() {
		select {
		case <-h.done:
			c.close(websocket.CloseGoingAway, "server shutting down")
		case <-c.done:
		}
	}()
	if !h.submit(ctx, hubEvent{kind: eventConnect, client: c}) {
		c.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	c.readPump(ctx)
	c.close(websocket.CloseNormalClosure, "")
	h.submit(context.WithoutCancel(ctx), hubEvent{kind: eventDisconnect, client: c})
}

// Status returns an engine snapshot taken on the event loop.
func (h *Hub) Status(ctx context.Context) (experiment.Snapshot, error) {
	reply := make(chan experiment.Snapshot, 1)
	if !h.submit(ctx, hubEvent{kind: eventSnapshot, reply: reply}) {
		return experiment.Snapshot{}, ErrHubStopped
	}
	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-ctx.Done():
		return experiment.Snapshot{}, ctx.Err()
	case <-h.done:
		return experiment.Snapshot{}, ErrHubStopped
	}
}

// Send implements experiment.Sender. It runs on the event loop.
func (h *Hub) Send(participantID string, cmd experiment.Command) {
	c, ok := h.clients[participantID]
	if !ok {
		h.logger.Debug("dropping command for unknown connection", map[string]string{
			"participant.id": participantID,
			"command_type":   string(cmd.Type()),
		})
		return
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		h.logger.Error("encode command failed", map[string]string{
			"participant.id": participantID,
			"command_type":   string(cmd.Type()),
			"error":          err.Error(),
		})
		return
	}
	if !c.enqueue(data) {
		if c.closed() {
			return
		}
		h.metrics.IncRejectedMessage("send_buffer_full")
		h.logger.Warn("send buffer full, closing slow connection", map[string]string{
			"participant.id": participantID,
		})
		go c.close(websocket.CloseTryAgainLater, "send buffer full")
	}
}

func (h *Hub) submit(ctx context.Context, evt hubEvent) bool {
	select {
	case h.events <- evt:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) handle(evt hubEvent) {
	defer func() {
		if recovered := recover(); recovered != nil {
			fields := map[string]string{"panic": fmt.Sprint(recovered)}
			if evt.client != nil {
				fields["participant.id"] = evt.client.id
			}
			h.logger.Error("engine panic recovered", fields)
			if evt.client != nil {
				evt.client.close(websocket.CloseInternalServerErr, "internal error")
			}
		}
	}()

	switch evt.kind {
	case eventConnect:
		h.clients[evt.client.id] = evt.client
		if err := h.engine.OnConnect(evt.client.id); err != nil {
			h.logger.Error("connect rejected", map[string]string{
				"participant.id": evt.client.id,
				"error":          err.Error(),
			})
			delete(h.clients, evt.client.id)
			evt.client.close(websocket.CloseInternalServerErr, "connect rejected")
		}
	case eventDisconnect:
		if h.clients[evt.client.id] != evt.client {
			return
		}
		delete(h.clients, evt.client.id)
		if err := h.engine.OnDisconnect(evt.client.id); err != nil {
			h.logger.Warn("disconnect for unknown participant", map[string]string{
				"participant.id": evt.client.id,
				"error":          err.Error(),
			})
		}
	case eventMessage:
		if h.clients[evt.client.id] != evt.client || evt.client.closed() {
			return
		}
		h.handleMessage(evt.client, evt.payload)
	case eventSnapshot:
		evt.reply <- h.engine.Snapshot()
	}
}

func (h *Hub) handleMessage(c *client, payload []byte) {
	err := h.engine.OnMessage(c.id, payload)
	if err == nil {
		return
	}
	fields := map[string]string{
		"participant.id": c.id,
		"error":          err.Error(),
	}
	switch {
	case errors.Is(err, experiment.ErrMalformedMessage):
		h.logger.Error("malformed message, closing connection", fields)
		c.close(websocket.CloseProtocolError, "malformed message")
	case errors.Is(err, experiment.ErrOutOfSequence):
		h.logger.Warn("out of sequence message ignored", fields)
	default:
		h.logger.Error("message handling failed", fields)
	}
}

func (h *Hub) closeAll(code int, reason string) {
	for id, c := range h.clients {
		c.close(code, reason)
		delete(h.clients, id)
	}
}
