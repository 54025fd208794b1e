package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

const (
	TypeParticipantConnected    = "participant_connected"
	TypeParticipantDisconnected = "participant_disconnected"
	TypePairFormed              = "pair_formed"
	TypeTrialStarted            = "trial_started"
	TypeTrialCompleted          = "trial_completed"
	TypePartnerDropout          = "partner_dropout"
	TypeExperimentFinished      = "experiment_finished"
)

// ExperimentTypes lists every type the experiment engine publishes.
var ExperimentTypes = []string{
	TypeParticipantConnected,
	TypeParticipantDisconnected,
	TypePairFormed,
	TypeTrialStarted,
	TypeTrialCompleted,
	TypePartnerDropout,
	TypeExperimentFinished,
}

// ExperimentEvent is published by the experiment engine on every lifecycle
// step worth observing from outside the core.
type ExperimentEvent struct {
	EventType     string       `json:"type"`
	ParticipantID string       `json:"participant_id,omitempty"`
	PartnerID     string       `json:"partner_id,omitempty"`
	PairID        string       `json:"pair_id,omitempty"`
	Phase         string       `json:"phase,omitempty"`
	Trial         *TrialRecord `json:"trial,omitempty"`
	OccurredAt    time.Time    `json:"timestamp"`
}

func NewExperimentEvent(eventType, participantID string) ExperimentEvent {
	return ExperimentEvent{
		EventType:     eventType,
		ParticipantID: participantID,
		OccurredAt:    time.Now().UTC(),
	}
}

func (e ExperimentEvent) Type() string {
	return e.EventType
}

func (e ExperimentEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// TrialRecord is the outcome of one completed interaction trial.
type TrialRecord struct {
	PairID             string    `json:"pair_id"`
	Index              int       `json:"index"`
	DirectorID         string    `json:"director_id"`
	MatcherID          string    `json:"matcher_id"`
	DirectorExternalID string    `json:"director_external_id,omitempty"`
	MatcherExternalID  string    `json:"matcher_external_id,omitempty"`
	Target             string    `json:"target"`
	Label              string    `json:"label"`
	Guess              string    `json:"guess"`
	Score              int       `json:"score"`
	CompletedAt        time.Time `json:"completed_at"`
}
