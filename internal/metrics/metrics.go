package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry holds process-wide experiment counters. The zero value is ready to
// use and a nil *Registry ignores every call.
type Registry struct {
	connected      atomic.Int64
	disconnected   atomic.Int64
	pairsFormed    atomic.Int64
	trialsDone     atomic.Int64
	trialsCorrect  atomic.Int64
	experimentsEnd atomic.Int64
	dropouts       atomic.Int64
	resultsWritten atomic.Int64
	resultsFailed  atomic.Int64
	rejected       sync.Map
	busPublished   sync.Map
	busDropped     sync.Map
	busSubscribers sync.Map
}

var Default = &Registry{}

func (r *Registry) IncParticipantConnected() {
	if r == nil {
		return
	}
	r.connected.Add(1)
}

func (r *Registry) IncParticipantDisconnected() {
	if r == nil {
		return
	}
	r.disconnected.Add(1)
}

func (r *Registry) IncPairFormed() {
	if r == nil {
		return
	}
	r.pairsFormed.Add(1)
}

func (r *Registry) RecordTrial(correct bool) {
	if r == nil {
		return
	}
	r.trialsDone.Add(1)
	if correct {
		r.trialsCorrect.Add(1)
	}
}

func (r *Registry) IncExperimentFinished() {
	if r == nil {
		return
	}
	r.experimentsEnd.Add(1)
}

func (r *Registry) IncDropout() {
	if r == nil {
		return
	}
	r.dropouts.Add(1)
}

func (r *Registry) RecordResultWrite(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.resultsFailed.Add(1)
		return
	}
	r.resultsWritten.Add(1)
}

// IncRejectedMessage counts inbound messages the engine refused, by reason.
func (r *Registry) IncRejectedMessage(reason string) {
	if r == nil {
		return
	}
	counter(&r.rejected, labelOrUnknown(reason)).Add(1)
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	counter(&r.busPublished, busKey(bus, eventType)).Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	counter(&r.busDropped, busKey(bus, eventType)).Add(1)
}

func (r *Registry) SetEventSubscriberCount(bus string, count int) {
	if r == nil {
		return
	}
	counter(&r.busSubscribers, labelOrUnknown(bus)).Store(int64(count))
}

// ActiveParticipants is the number of connections not yet closed.
func (r *Registry) ActiveParticipants() int64 {
	if r == nil {
		return 0
	}
	return r.connected.Load() - r.disconnected.Load()
}

func (r *Registry) TrialsCompleted() int64 {
	if r == nil {
		return 0
	}
	return r.trialsDone.Load()
}

func (r *Registry) Dropouts() int64 {
	if r == nil {
		return 0
	}
	return r.dropouts.Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "pairlab_participants_connected_total", "Participants that connected", r.connected.Load())
	writeCounter(writer, "pairlab_participants_disconnected_total", "Participants that disconnected", r.disconnected.Load())
	writeGauge(writer, "pairlab_participants_active", "Participants currently connected", r.ActiveParticipants())
	writeCounter(writer, "pairlab_pairs_formed_total", "Pairs formed", r.pairsFormed.Load())
	writeCounter(writer, "pairlab_trials_completed_total", "Interaction trials completed", r.trialsDone.Load())
	writeCounter(writer, "pairlab_trials_correct_total", "Interaction trials scored correct", r.trialsCorrect.Load())
	writeCounter(writer, "pairlab_experiments_finished_total", "Participants that reached the end phase", r.experimentsEnd.Load())
	writeCounter(writer, "pairlab_partner_dropouts_total", "Partner dropout notices sent", r.dropouts.Load())
	writeCounter(writer, "pairlab_results_written_total", "Trial results persisted", r.resultsWritten.Load())
	writeCounter(writer, "pairlab_results_failed_total", "Trial results that failed to persist", r.resultsFailed.Load())

	writeHelp(writer, "pairlab_messages_rejected_total", "Inbound messages rejected by reason")
	fmt.Fprintln(writer, "# TYPE pairlab_messages_rejected_total counter")
	for _, key := range sortedKeys(&r.rejected) {
		fmt.Fprintf(writer, "pairlab_messages_rejected_total{reason=%s} %d\n", formatLabel(key), counter(&r.rejected, key).Load())
	}

	writeBusSeries(writer, "pairlab_events_published_total", "Events published on the internal bus", &r.busPublished)
	writeBusSeries(writer, "pairlab_events_dropped_total", "Events dropped by slow bus subscribers", &r.busDropped)

	writeHelp(writer, "pairlab_event_subscribers", "Current internal bus subscribers")
	fmt.Fprintln(writer, "# TYPE pairlab_event_subscribers gauge")
	for _, key := range sortedKeys(&r.busSubscribers) {
		fmt.Fprintf(writer, "pairlab_event_subscribers{bus=%s} %d\n", formatLabel(key), counter(&r.busSubscribers, key).Load())
	}
	return nil
}

func writeBusSeries(writer io.Writer, metric, help string, values *sync.Map) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	for _, key := range sortedKeys(values) {
		bus, eventType, _ := strings.Cut(key, "\x00")
		fmt.Fprintf(writer, "%s{bus=%s,type=%s} %d\n", metric, formatLabel(bus), formatLabel(eventType), counter(values, key).Load())
	}
}

func counter(values *sync.Map, key string) *atomic.Int64 {
	value, _ := values.LoadOrStore(key, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func sortedKeys(values *sync.Map) []string {
	var keys []string
	values.Range(func(key, _ any) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

func busKey(bus, eventType string) string {
	return labelOrUnknown(bus) + "\x00" + labelOrUnknown(eventType)
}

func labelOrUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
