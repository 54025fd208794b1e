package experiment

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeClientMessageRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"invalid json":        `{"response_type":`,
		"missing type":        `{"client_info":"abc"}`,
		"unknown type":        `{"response_type":"DANCE"}`,
		"client info missing": `{"response_type":"CLIENT_INFO"}`,
		"client info object":  `{"response_type":"CLIENT_INFO","client_info":{"id":1}}`,
		"response no role":    `{"response_type":"RESPONSE","response":"red"}`,
		"response bad role":   `{"response_type":"RESPONSE","role":"Spectator","response":"red"}`,
		"response no answer":  `{"response_type":"RESPONSE","role":"Director"}`,
	}
	for name, payload := range cases {
		if _, err := DecodeClientMessage([]byte(payload)); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%s: expected ErrMalformedMessage, got %v", name, err)
		}
	}
}

func TestDecodeClientMessageAcceptsEchoedFields(t *testing.T) {
	payload := `{"response_type":"RESPONSE","role":"Matcher","response":"object4",` +
		`"director_label":"red","target_object":"object4","participant":17,"partner":"p-2"}`
	msg, err := DecodeClientMessage([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Role != RoleMatcher || msg.Answer() != "object4" || msg.DirectorLabel != "red" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestClientInfoTextKeepsNumbersVerbatim(t *testing.T) {
	cases := map[string]string{
		`{"response_type":"CLIENT_INFO","client_info":"worker-9"}`: "worker-9",
		`{"response_type":"CLIENT_INFO","client_info":12345}`:      "12345",
		`{"response_type":"CLIENT_INFO","client_info":1.50}`:       "1.50",
	}
	for payload, want := range cases {
		msg, err := DecodeClientMessage([]byte(payload))
		if err != nil {
			t.Fatalf("decode %s: %v", payload, err)
		}
		got, err := msg.ClientInfoText()
		if err != nil || got != want {
			t.Fatalf("expected %q, got %q (%v)", want, got, err)
		}
	}
}

func TestCommandsMarshalWithCommandType(t *testing.T) {
	data, err := json.Marshal(NewMatcher("red", []string{"object4", "object5"}, "ext-1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["command_type"] != "Matcher" || decoded["director_label"] != "red" || decoded["partner_id"] != "ext-1" {
		t.Fatalf("unexpected payload: %s", data)
	}
	choices, ok := decoded["object_choices"].([]any)
	if !ok || len(choices) != 2 {
		t.Fatalf("expected object_choices, got %s", data)
	}

	data, err = json.Marshal(NewWaitingRoom())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"command_type":"WaitingRoom"}` {
		t.Fatalf("unexpected waiting room payload: %s", data)
	}
}
