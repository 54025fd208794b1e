package logging

import "testing"

func TestLogBufferCircular(t *testing.T) {
	buffer := NewLogBuffer(2)
	buffer.Add(LogEntry{Message: "first"})
	buffer.Add(LogEntry{Message: "second"})
	buffer.Add(LogEntry{Message: "third"})

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "second" || entries[1].Message != "third" {
		t.Fatalf("unexpected order: %q, %q", entries[0].Message, entries[1].Message)
	}
}

func TestLogBufferTail(t *testing.T) {
	buffer := NewLogBuffer(5)
	for _, message := range []string{"a", "b", "c", "d"} {
		buffer.Add(LogEntry{Message: message})
	}

	tail := buffer.Tail(2)
	if len(tail) != 2 || tail[0].Message != "c" || tail[1].Message != "d" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if len(buffer.Tail(0)) != 4 {
		t.Fatalf("expected Tail(0) to return everything")
	}
}

func TestLogBufferEmpty(t *testing.T) {
	if entries := NewLogBuffer(3).List(); entries != nil {
		t.Fatalf("expected nil list, got %v", entries)
	}
}
