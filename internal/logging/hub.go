package logging

import (
	"context"

	"pairlab/internal/event"
)

const defaultSubscriberBuffer = 100

// LogHub fans entries out to live subscribers over an event bus named
// "logs". Slow subscribers lose entries rather than stall the caller, and
// the losses are counted like any other bus drop.
type LogHub struct {
	bus *event.Bus[LogEntry]
}

func NewLogHub() *LogHub {
	return newLogHub(defaultSubscriberBuffer)
}

func newLogHub(buffer int) *LogHub {
	return &LogHub{bus: event.NewBus[LogEntry](context.Background(), event.BusOptions{
		Name:                 "logs",
		SubscriberBufferSize: buffer,
	})}
}

func (h *LogHub) Subscribe() (<-chan LogEntry, func()) {
	if h == nil {
		return nil, func() {}
	}
	return h.bus.Subscribe()
}

func (h *LogHub) Broadcast(entry LogEntry) {
	if h == nil {
		return
	}
	h.bus.Publish(entry)
}

func (h *LogHub) Close() {
	if h == nil {
		return
	}
	h.bus.Close()
}
