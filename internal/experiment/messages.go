package experiment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// CommandType names a server to client message.
type CommandType string

const (
	CommandWaitingRoom    CommandType = "WaitingRoom"
	CommandWaitForPartner CommandType = "WaitForPartner"
	CommandInstructions   CommandType = "Instructions"
	CommandDirector       CommandType = "Director"
	CommandMatcher        CommandType = "Matcher"
	CommandFeedback       CommandType = "Feedback"
	CommandPartnerDropout CommandType = "PartnerDropout"
	CommandEndExperiment  CommandType = "EndExperiment"
)

// Command is a server to client message. Implementations marshal to a JSON
// object carrying command_type next to their payload fields.
type Command interface {
	Type() CommandType
}

type Header struct {
	CommandType CommandType `json:"command_type"`
}

func (h Header) Type() CommandType {
	return h.CommandType
}

type InstructionsCommand struct {
	Header
	InstructionType string `json:"instruction_type"`
}

type DirectorCommand struct {
	Header
	TargetObject string `json:"target_object"`
	PartnerID    string `json:"partner_id"`
}

type MatcherCommand struct {
	Header
	DirectorLabel string   `json:"director_label"`
	ObjectChoices []string `json:"object_choices"`
	PartnerID     string   `json:"partner_id"`
}

type FeedbackCommand struct {
	Header
	Score  int    `json:"score"`
	Target string `json:"target"`
	Label  string `json:"label"`
	Guess  string `json:"guess"`
}

func NewWaitingRoom() Command    { return Header{CommandType: CommandWaitingRoom} }
func NewWaitForPartner() Command { return Header{CommandType: CommandWaitForPartner} }
func NewPartnerDropout() Command { return Header{CommandType: CommandPartnerDropout} }
func NewEndExperiment() Command  { return Header{CommandType: CommandEndExperiment} }

func NewInstructions(kind string) InstructionsCommand {
	return InstructionsCommand{Header: Header{CommandType: CommandInstructions}, InstructionType: kind}
}

func NewDirector(target, partnerID string) DirectorCommand {
	return DirectorCommand{
		Header:       Header{CommandType: CommandDirector},
		TargetObject: target,
		PartnerID:    partnerID,
	}
}

func NewMatcher(label string, choices []string, partnerID string) MatcherCommand {
	return MatcherCommand{
		Header:        Header{CommandType: CommandMatcher},
		DirectorLabel: label,
		ObjectChoices: slices.Clone(choices),
		PartnerID:     partnerID,
	}
}

func NewFeedback(score int, target, label, guess string) FeedbackCommand {
	return FeedbackCommand{
		Header: Header{CommandType: CommandFeedback},
		Score:  score,
		Target: target,
		Label:  label,
		Guess:  guess,
	}
}

// ResponseType names a client to server message.
type ResponseType string

const (
	ResponseClientInfo           ResponseType = "CLIENT_INFO"
	ResponseInstructionsComplete ResponseType = "INTERACTION_INSTRUCTIONS_COMPLETE"
	ResponseTrial                ResponseType = "RESPONSE"
	ResponseFinishedFeedback     ResponseType = "FINISHED_FEEDBACK"
	ResponseNonresponsivePartner ResponseType = "NONRESPONSIVE_PARTNER"
)

func (t ResponseType) known() bool {
	switch t {
	case ResponseClientInfo, ResponseInstructionsComplete, ResponseTrial,
		ResponseFinishedFeedback, ResponseNonresponsivePartner:
		return true
	}
	return false
}

// ClientMessage is the decoded form of every client to server payload.
// Participant, Partner, TargetObject and DirectorLabel are echoed by clients
// for their own bookkeeping and are not trusted by the engine.
type ClientMessage struct {
	ResponseType  ResponseType    `json:"response_type"`
	ClientInfo    json.RawMessage `json:"client_info,omitempty"`
	Role          Role            `json:"role,omitempty"`
	Response      *string         `json:"response,omitempty"`
	DirectorLabel string          `json:"director_label,omitempty"`
	TargetObject  string          `json:"target_object,omitempty"`
	Participant   json.RawMessage `json:"participant,omitempty"`
	Partner       json.RawMessage `json:"partner,omitempty"`
}

// DecodeClientMessage parses payload and checks the fields each response
// type requires. Every failure wraps ErrMalformedMessage.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.ResponseType == "" {
		return ClientMessage{}, fmt.Errorf("%w: missing response_type", ErrMalformedMessage)
	}
	if !msg.ResponseType.known() {
		return ClientMessage{}, fmt.Errorf("%w: unknown response_type %q", ErrMalformedMessage, msg.ResponseType)
	}
	switch msg.ResponseType {
	case ResponseClientInfo:
		if isJSONNull(msg.ClientInfo) {
			return ClientMessage{}, fmt.Errorf("%w: CLIENT_INFO without client_info", ErrMalformedMessage)
		}
		if _, err := msg.ClientInfoText(); err != nil {
			return ClientMessage{}, err
		}
	case ResponseTrial:
		if msg.Role != RoleDirector && msg.Role != RoleMatcher {
			return ClientMessage{}, fmt.Errorf("%w: RESPONSE with role %q", ErrMalformedMessage, msg.Role)
		}
		if msg.Response == nil {
			return ClientMessage{}, fmt.Errorf("%w: RESPONSE without response", ErrMalformedMessage)
		}
	}
	return msg, nil
}

// ClientInfoText returns client_info as text. Strings are unquoted; numbers
// keep their JSON spelling.
func (m ClientMessage) ClientInfoText() (string, error) {
	raw := bytes.TrimSpace(m.ClientInfo)
	if isJSONNull(raw) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", fmt.Errorf("%w: client_info: %v", ErrMalformedMessage, err)
		}
		return text, nil
	case '{', '[':
		return "", fmt.Errorf("%w: client_info must be a string or number", ErrMalformedMessage)
	}
	if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
		return "", fmt.Errorf("%w: client_info must be a string or number", ErrMalformedMessage)
	}
	return string(raw), nil
}

// Answer returns the RESPONSE payload, the Director's label or the Matcher's
// guess.
func (m ClientMessage) Answer() string {
	if m.Response == nil {
		return ""
	}
	return *m.Response
}

func isJSONNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
