package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"pairlab/internal/event"
	"pairlab/internal/metrics"
	"pairlab/internal/stimuli"
)

type sentCommand struct {
	to  string
	cmd Command
}

type recordingSender struct {
	sent []sentCommand
}

func (r *recordingSender) Send(id string, cmd Command) {
	r.sent = append(r.sent, sentCommand{to: id, cmd: cmd})
}

func (r *recordingSender) commandsFor(id string) []Command {
	var out []Command
	for _, entry := range r.sent {
		if entry.to == id {
			out = append(out, entry.cmd)
		}
	}
	return out
}

func (r *recordingSender) typesFor(id string) []CommandType {
	var out []CommandType
	for _, cmd := range r.commandsFor(id) {
		out = append(out, cmd.Type())
	}
	return out
}

func (r *recordingSender) count(id string, commandType CommandType) int {
	total := 0
	for _, cmd := range r.commandsFor(id) {
		if cmd.Type() == commandType {
			total++
		}
	}
	return total
}

func (r *recordingSender) last(id string) Command {
	commands := r.commandsFor(id)
	if len(commands) == 0 {
		return nil
	}
	return commands[len(commands)-1]
}

type fixedStimuli struct {
	set stimuli.Set
}

func (f fixedStimuli) Current() stimuli.Set { return f.set.Clone() }

type harness struct {
	engine  *Engine
	sender  *recordingSender
	bus     *event.Bus[event.ExperimentEvent]
	metrics *metrics.Registry
}

func newHarness(t *testing.T, source StimulusSource) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := &metrics.Registry{}
	bus := event.NewBus[event.ExperimentEvent](ctx, event.BusOptions{
		Name:        "experiment_test",
		HistorySize: 1024,
		Registry:    registry,
	})
	sender := &recordingSender{}
	pairs := 0
	engine := NewEngine(Options{
		Sender:    sender,
		Stimuli:   source,
		Publisher: bus,
		Metrics:   registry,
		Rand:      rand.New(rand.NewSource(7)),
		NewPairID: func() string {
			pairs++
			return fmt.Sprintf("pair-%d", pairs)
		},
	})
	return &harness{engine: engine, sender: sender, bus: bus, metrics: registry}
}

func (h *harness) connect(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := h.engine.OnConnect(id); err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
	}
}

func (h *harness) message(id string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return h.engine.OnMessage(id, data)
}

func (h *harness) mustMessage(t *testing.T, id string, payload map[string]any) {
	t.Helper()
	if err := h.message(id, payload); err != nil {
		t.Fatalf("message from %s (%v): %v", id, payload["response_type"], err)
	}
}

func (h *harness) participant(t *testing.T, id string) *Participant {
	t.Helper()
	participant, err := h.engine.Registry().Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return participant
}

func (h *harness) eventsOfType(eventType string) []event.ExperimentEvent {
	var out []event.ExperimentEvent
	for _, evt := range h.bus.DumpHistory() {
		if evt.EventType == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// startInteraction connects x and y, reports their client info and takes both
// through the instructions.
func (h *harness) startInteraction(t *testing.T, x, y string) *Pair {
	t.Helper()
	h.connect(t, x, y)
	h.mustMessage(t, x, clientInfo("ext-"+x))
	h.mustMessage(t, y, clientInfo("ext-"+y))
	h.mustMessage(t, x, instructionsComplete())
	h.mustMessage(t, y, instructionsComplete())
	return h.participant(t, x).Pair
}

// playTrial runs one full trial from the Director's label to both partners
// finishing feedback.
func (h *harness) playTrial(t *testing.T, pair *Pair, label, guess string) {
	t.Helper()
	director, matcher := pair.Director, pair.Matcher()
	h.mustMessage(t, director, directorResponse(label))
	h.mustMessage(t, matcher, matcherResponse(guess))
	h.mustMessage(t, matcher, finishedFeedback())
	h.mustMessage(t, director, finishedFeedback())
}

func clientInfo(value any) map[string]any {
	return map[string]any{"response_type": "CLIENT_INFO", "client_info": value}
}

func instructionsComplete() map[string]any {
	return map[string]any{"response_type": "INTERACTION_INSTRUCTIONS_COMPLETE"}
}

func directorResponse(label string) map[string]any {
	return map[string]any{"response_type": "RESPONSE", "role": "Director", "response": label}
}

func matcherResponse(guess string) map[string]any {
	return map[string]any{"response_type": "RESPONSE", "role": "Matcher", "response": guess, "director_label": "echo"}
}

func finishedFeedback() map[string]any {
	return map[string]any{"response_type": "FINISHED_FEEDBACK"}
}
