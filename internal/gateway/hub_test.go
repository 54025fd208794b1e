package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pairlab/internal/experiment"
	"pairlab/internal/metrics"

	"github.com/gorilla/websocket"
)

type testServer struct {
	hub    *Hub
	server *httptest.Server
	cancel context.CancelFunc
}

func startTestServer(t *testing.T, options HubOptions) *testServer {
	t.Helper()
	if options.Metrics == nil {
		options.Metrics = &metrics.Registry{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(options)
	go func() {
		_ = hub.Run(ctx)
	}()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.ServeConn(r.Context(), conn)
	}))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &testServer{hub: hub, server: server, cancel: cancel}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readCommand(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload map[string]any
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read command: %v", err)
	}
	return payload
}

func expectCommand(t *testing.T, conn *websocket.Conn, commandType string) map[string]any {
	t.Helper()
	payload := readCommand(t, conn)
	if payload["command_type"] != commandType {
		t.Fatalf("expected %s, got %v", commandType, payload)
	}
	return payload
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) || closeErr.Code != code {
			t.Fatalf("expected close code %d, got %v", code, err)
		}
		return
	}
}

func send(t *testing.T, conn *websocket.Conn, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func connectPair(t *testing.T, server *testServer) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	first := server.dial(t)
	expectCommand(t, first, "WaitingRoom")
	second := server.dial(t)
	expectCommand(t, second, "WaitingRoom")
	for _, conn := range []*websocket.Conn{first, second} {
		instructions := expectCommand(t, conn, "Instructions")
		if instructions["instruction_type"] != "Interaction" {
			t.Fatalf("unexpected instructions: %v", instructions)
		}
	}
	return first, second
}

func TestHubRunsInteractionOverWebSocket(t *testing.T) {
	server := startTestServer(t, HubOptions{})
	alice, bob := connectPair(t, server)

	send(t, alice, map[string]any{"response_type": "CLIENT_INFO", "client_info": "alice"})
	send(t, bob, map[string]any{"response_type": "CLIENT_INFO", "client_info": "bob"})
	send(t, alice, map[string]any{"response_type": "INTERACTION_INSTRUCTIONS_COMPLETE"})
	expectCommand(t, alice, "WaitForPartner")
	send(t, bob, map[string]any{"response_type": "INTERACTION_INSTRUCTIONS_COMPLETE"})
	expectCommand(t, bob, "WaitForPartner")

	aliceNext := readCommand(t, alice)
	bobNext := readCommand(t, bob)
	director, matcher, directorCmd := alice, bob, aliceNext
	directorName, matcherName := "alice", "bob"
	if bobNext["command_type"] == "Director" {
		director, matcher, directorCmd = bob, alice, bobNext
		directorName, matcherName = "bob", "alice"
		if aliceNext["command_type"] != "WaitForPartner" {
			t.Fatalf("expected alice to wait, got %v", aliceNext)
		}
	} else if aliceNext["command_type"] != "Director" || bobNext["command_type"] != "WaitForPartner" {
		t.Fatalf("expected exactly one director, got %v and %v", aliceNext, bobNext)
	}
	if directorCmd["partner_id"] != matcherName {
		t.Fatalf("expected partner_id %s, got %v", matcherName, directorCmd)
	}
	target, _ := directorCmd["target_object"].(string)

	send(t, director, map[string]any{"response_type": "RESPONSE", "role": "Director", "response": "red"})
	expectCommand(t, director, "WaitForPartner")
	matcherCmd := expectCommand(t, matcher, "Matcher")
	if matcherCmd["director_label"] != "red" || matcherCmd["partner_id"] != directorName {
		t.Fatalf("unexpected matcher command: %v", matcherCmd)
	}

	send(t, matcher, map[string]any{"response_type": "RESPONSE", "role": "Matcher", "response": target})
	for _, conn := range []*websocket.Conn{matcher, director} {
		feedback := expectCommand(t, conn, "Feedback")
		if feedback["score"] != float64(1) || feedback["target"] != target || feedback["label"] != "red" {
			t.Fatalf("unexpected feedback: %v", feedback)
		}
	}
}

func TestHubClosesMalformedConnection(t *testing.T) {
	server := startTestServer(t, HubOptions{})
	conn := server.dial(t)
	expectCommand(t, conn, "WaitingRoom")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectClose(t, conn, websocket.CloseProtocolError)
}

func TestHubKeepsConnectionOnOutOfSequence(t *testing.T) {
	server := startTestServer(t, HubOptions{})
	conn := server.dial(t)
	expectCommand(t, conn, "WaitingRoom")

	send(t, conn, map[string]any{"response_type": "FINISHED_FEEDBACK"})
	partner := server.dial(t)
	expectCommand(t, partner, "WaitingRoom")
	expectCommand(t, conn, "Instructions")
	expectCommand(t, partner, "Instructions")
}

func TestHubNotifiesPartnerOnDisconnect(t *testing.T) {
	server := startTestServer(t, HubOptions{})
	first, second := connectPair(t, server)

	_ = second.Close()
	expectCommand(t, first, "PartnerDropout")
}

func TestHubRateLimitClosesConnection(t *testing.T) {
	server := startTestServer(t, HubOptions{RateLimit: 1, RateBurst: 1})
	conn := server.dial(t)
	expectCommand(t, conn, "WaitingRoom")

	for i := 0; i < 5; i++ {
		if err := conn.WriteJSON(map[string]any{"response_type": "NONRESPONSIVE_PARTNER"}); err != nil {
			break
		}
	}
	expectClose(t, conn, websocket.ClosePolicyViolation)
}

func TestHubStatusReflectsEngine(t *testing.T) {
	server := startTestServer(t, HubOptions{})
	connectPair(t, server)
	third := server.dial(t)
	expectCommand(t, third, "WaitingRoom")

	status, err := server.hub.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status.Participants) != 3 || len(status.Pairs) != 1 || len(status.Waiting) != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Pairs[0].Stage != experiment.StageInstructions {
		t.Fatalf("unexpected pair stage: %s", status.Pairs[0].Stage)
	}
}

func TestHubShutdownClosesConnections(t *testing.T) {
	server := startTestServer(t, HubOptions{})
	conn := server.dial(t)
	expectCommand(t, conn, "WaitingRoom")

	server.cancel()
	expectClose(t, conn, websocket.CloseGoingAway)

	if _, err := server.hub.Status(context.Background()); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}
