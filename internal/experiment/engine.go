package experiment

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"pairlab/internal/event"
	"pairlab/internal/logging"
	"pairlab/internal/metrics"
	"pairlab/internal/stimuli"

	"github.com/google/uuid"
)

// Sender delivers a command to one connection. It must not block and must not
// call back into the Engine.
type Sender interface {
	Send(participantID string, cmd Command)
}

type StimulusSource interface {
	Current() stimuli.Set
}

type Publisher interface {
	Publish(event.ExperimentEvent)
}

type Options struct {
	Sender    Sender
	Stimuli   StimulusSource
	Publisher Publisher
	Metrics   *metrics.Registry
	Logger    *logging.Logger
	// Rand draws the first Director and shuffles trial lists. Tests inject a
	// seeded source.
	Rand      *rand.Rand
	NewPairID func() string
	Now       func() time.Time
}

type Engine struct {
	registry  *Registry
	pool      *Pool
	pairs     map[string]*Pair
	sender    Sender
	stimuli   StimulusSource
	publisher Publisher
	metrics   *metrics.Registry
	logger    *logging.Logger
	rng       *rand.Rand
	newPairID func() string
	now       func() time.Time
}

func NewEngine(opts Options) *Engine {
	if opts.Sender == nil {
		panic("experiment: Sender is required")
	}
	if opts.Stimuli == nil {
		opts.Stimuli = stimuli.NewStore(stimuli.Default())
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.NewPairID == nil {
		opts.NewPairID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	registry := NewRegistry()
	registry.now = opts.Now
	return &Engine{
		registry:  registry,
		pool:      &Pool{},
		pairs:     make(map[string]*Pair),
		sender:    opts.Sender,
		stimuli:   opts.Stimuli,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger.Category("experiment"),
		rng:       opts.Rand,
		newPairID: opts.NewPairID,
		now:       opts.Now,
	}
}

func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) Pool() *Pool { return e.pool }

// OnConnect registers a participant and walks it into the waiting room.
func (e *Engine) OnConnect(id string) error {
	participant, err := e.registry.Create(id)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	e.metrics.IncParticipantConnected()
	e.publish(event.NewExperimentEvent(event.TypeParticipantConnected, id))
	e.logger.Info("participant connected", map[string]string{
		"participant.id": id,
	})
	e.enterPhase(participant, PhaseStart)
	return nil
}

// OnMessage applies one client payload. Errors wrap ErrMalformedMessage,
// ErrOutOfSequence or ErrNotFound; in every error case no state changed.
func (e *Engine) OnMessage(id string, payload []byte) error {
	msg, err := DecodeClientMessage(payload)
	if err != nil {
		e.metrics.IncRejectedMessage("malformed")
		return err
	}
	participant, err := e.registry.Get(id)
	if err != nil {
		return fmt.Errorf("message: %w", err)
	}
	if participant.Stranded {
		e.logger.Debug("ignoring message from stranded participant", map[string]string{
			"participant.id": id,
			"response_type":  string(msg.ResponseType),
		})
		return nil
	}

	switch msg.ResponseType {
	case ResponseClientInfo:
		err = e.setExternalID(participant, msg)
	case ResponseInstructionsComplete:
		err = e.initiateInteraction(participant)
	case ResponseTrial:
		err = e.handleTrialResponse(participant, msg)
	case ResponseFinishedFeedback:
		err = e.swapRolesAndProgress(participant)
	case ResponseNonresponsivePartner:
		e.logger.Info("participant reported nonresponsive partner", map[string]string{
			"participant.id": id,
			"partner.id":     participant.PartnerID(),
		})
	}
	if errors.Is(err, ErrOutOfSequence) {
		e.metrics.IncRejectedMessage("out_of_sequence")
	}
	return err
}

func (e *Engine) setExternalID(participant *Participant, msg ClientMessage) error {
	text, err := msg.ClientInfoText()
	if err != nil {
		return err
	}
	if participant.ExternalID != "" {
		e.logger.Warn("client info already set", map[string]string{
			"participant.id": participant.ID,
			"external.id":    participant.ExternalID,
			"ignored":        text,
		})
		return nil
	}
	participant.ExternalID = text
	e.logger.Info("client info received", map[string]string{
		"participant.id": participant.ID,
		"external.id":    text,
	})
	return nil
}

func (e *Engine) handleTrialResponse(participant *Participant, msg ClientMessage) error {
	switch msg.Role {
	case RoleDirector:
		return e.handleDirectorResponse(participant, msg.Answer())
	case RoleMatcher:
		return e.handleMatcherResponse(participant, msg.Answer())
	}
	return fmt.Errorf("%w: RESPONSE with role %q", ErrMalformedMessage, msg.Role)
}

// send is the only path to the Sender for protocol messages. Nothing reaches
// a participant once it has been told its partner dropped out.
func (e *Engine) send(id string, cmd Command) {
	participant, err := e.registry.Get(id)
	if err != nil || participant.Stranded {
		return
	}
	e.sender.Send(id, cmd)
}

func (e *Engine) publish(evt event.ExperimentEvent) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(evt)
}

func (e *Engine) pairEvent(eventType string, participantID string, pair *Pair) event.ExperimentEvent {
	evt := event.NewExperimentEvent(eventType, participantID)
	evt.OccurredAt = e.now()
	if pair != nil {
		evt.PairID = pair.ID
		evt.PartnerID = pair.Partner(participantID)
	}
	return evt
}

// requirePair returns the participant's pair when it is in the Interaction
// phase, and ErrOutOfSequence otherwise.
func (e *Engine) requirePair(participant *Participant) (*Pair, error) {
	if participant.Phase != PhaseInteraction {
		return nil, fmt.Errorf("%w: participant %s is in phase %s", ErrOutOfSequence, participant.ID, participant.Phase)
	}
	if participant.Pair == nil {
		return nil, fmt.Errorf("%w: participant %s has no partner", ErrOutOfSequence, participant.ID)
	}
	return participant.Pair, nil
}

func (e *Engine) mustGet(id string) *Participant {
	participant, err := e.registry.Get(id)
	if err != nil {
		panic(fmt.Errorf("experiment: %w", err))
	}
	return participant
}
