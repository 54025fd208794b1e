package logging

import (
	"testing"
	"time"
)

func TestLogHubBroadcast(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Broadcast(LogEntry{Level: LevelInfo, Message: "hello"})

	select {
	case got := <-ch:
		if got.Message != "hello" {
			t.Fatalf("expected message hello, got %q", got.Message)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for log entry")
	}
}

func TestLogHubDropsWhenSubscriberFull(t *testing.T) {
	hub := newLogHub(1)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Broadcast(LogEntry{Message: "kept"})
	hub.Broadcast(LogEntry{Message: "dropped"})

	if got := <-ch; got.Message != "kept" {
		t.Fatalf("expected kept, got %q", got.Message)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected no second entry, got %q", extra.Message)
	default:
	}
}

func TestLogHubClose(t *testing.T) {
	hub := NewLogHub()
	ch, _ := hub.Subscribe()
	hub.Close()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed")
	}
	late, _ := hub.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("expected subscription after close to be closed")
	}
}

func TestNilLogHubIsInert(t *testing.T) {
	var hub *LogHub
	hub.Broadcast(LogEntry{Message: "ignored"})
	ch, cancel := hub.Subscribe()
	cancel()
	if ch != nil {
		t.Fatalf("expected nil channel from nil hub")
	}
}
