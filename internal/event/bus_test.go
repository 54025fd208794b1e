package event

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"pairlab/internal/metrics"
)

func TestBusSubscribePublish(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{})
	t.Cleanup(bus.Close)

	ch, cancel := bus.Subscribe()
	bus.Publish(42)

	select {
	case got := <-ch:
		if got != 42 {
			t.Fatalf("expected 42, got %d", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to close after cancel")
	}
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{})
	ch, _ := bus.Subscribe()

	bus.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to close after bus close")
	}
	bus.Publish(1)
	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected no subscribers after close")
	}
}

func TestBusClosesWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus[int](ctx, BusOptions{})
	ch, _ := bus.Subscribe()

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus close")
	}
}

func TestBusDropOnFullIsCounted(t *testing.T) {
	registry := &metrics.Registry{}
	bus := NewBus[ExperimentEvent](context.Background(), BusOptions{
		Name:                 "drop",
		SubscriberBufferSize: 1,
		Registry:             registry,
	})
	t.Cleanup(bus.Close)

	ch, _ := bus.Subscribe()
	bus.Publish(NewExperimentEvent(TypePairFormed, "a"))
	bus.Publish(NewExperimentEvent(TypePairFormed, "b"))

	if got := <-ch; got.ParticipantID != "a" {
		t.Fatalf("expected first event kept, got %q", got.ParticipantID)
	}

	var out bytes.Buffer
	_ = registry.WritePrometheus(&out)
	if !strings.Contains(out.String(), `pairlab_events_dropped_total{bus="drop",type="pair_formed"} 1`) {
		t.Fatalf("expected drop counted, got:\n%s", out.String())
	}
}

func TestBusSubscribeTypes(t *testing.T) {
	bus := NewBus[ExperimentEvent](context.Background(), BusOptions{})
	t.Cleanup(bus.Close)

	ch, cancel := bus.SubscribeTypes(TypeTrialCompleted)
	defer cancel()

	bus.Publish(NewExperimentEvent(TypePairFormed, "a"))
	bus.Publish(NewExperimentEvent(TypeTrialCompleted, "b"))

	select {
	case got := <-ch:
		if got.Type() != TypeTrialCompleted {
			t.Fatalf("expected trial_completed, got %q", got.Type())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for filtered event")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %q", extra.Type())
	default:
	}
}

func TestBusSubscribeTypesEmpty(t *testing.T) {
	bus := NewBus[ExperimentEvent](context.Background(), BusOptions{})
	t.Cleanup(bus.Close)

	ch, _ := bus.SubscribeTypes("")
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel for empty type set")
	}
}

func TestBusHistoryWraps(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{HistorySize: 3})
	t.Cleanup(bus.Close)

	for i := 1; i <= 5; i++ {
		bus.Publish(i)
	}

	history := bus.DumpHistory()
	if len(history) != 3 || history[0] != 3 || history[2] != 5 {
		t.Fatalf("unexpected history %v", history)
	}
}

func TestBusFilterPanicRemovesSubscriber(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{})
	t.Cleanup(bus.Close)

	ch, _ := bus.SubscribeFiltered(func(int) bool { panic("boom") })
	bus.Publish(1)

	if _, ok := <-ch; ok {
		t.Fatal("expected panicking subscriber to be removed")
	}
}

func TestBusHistoryBeforeAndAtCapacity(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{HistorySize: 3})
	t.Cleanup(bus.Close)

	if history := bus.DumpHistory(); history != nil {
		t.Fatalf("expected empty history, got %v", history)
	}
	bus.Publish(1)
	bus.Publish(2)
	if history := bus.DumpHistory(); len(history) != 2 || history[0] != 1 || history[1] != 2 {
		t.Fatalf("unexpected partial history %v", history)
	}
	bus.Publish(3)
	if history := bus.DumpHistory(); len(history) != 3 || history[0] != 1 || history[2] != 3 {
		t.Fatalf("unexpected full history %v", history)
	}
}

func TestBusCancelIsIdempotent(t *testing.T) {
	registry := &metrics.Registry{}
	bus := NewBus[int](context.Background(), BusOptions{Name: "idem", Registry: registry})
	t.Cleanup(bus.Close)

	_, keep := bus.Subscribe()
	defer keep()
	_, cancel := bus.Subscribe()
	cancel()
	cancel()
	if bus.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber left, got %d", bus.SubscriberCount())
	}
}
