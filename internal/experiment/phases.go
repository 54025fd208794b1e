package experiment

import (
	"fmt"
	"strconv"

	"pairlab/internal/event"
)

const interactionInstructions = "Interaction"

func (e *Engine) progress(participant *Participant) {
	e.enterPhase(participant, participant.Phase.Next())
}

// enterPhase records the new phase and runs its entry action.
func (e *Engine) enterPhase(participant *Participant, phase Phase) {
	participant.Phase = phase
	e.logger.Debug("phase entered", map[string]string{
		"participant.id": participant.ID,
		"phase":          string(phase),
	})

	switch phase {
	case PhaseStart:
		e.progress(participant)
	case PhasePairParticipants:
		e.send(participant.ID, NewWaitingRoom())
		if first, second, paired := e.pool.Enqueue(participant.ID); paired {
			e.formPair(first, second)
		}
	case PhaseInteraction:
		participant.Role = RoleReadingInstructions
		e.send(participant.ID, NewInstructions(interactionInstructions))
	case PhaseEnd:
		participant.Role = RoleNone
		e.send(participant.ID, NewEndExperiment())
		e.metrics.IncExperimentFinished()
		evt := e.pairEvent(event.TypeExperimentFinished, participant.ID, participant.Pair)
		evt.Phase = string(phase)
		e.publish(evt)
	default:
		panic(fmt.Errorf("%w: no entry action for %q", ErrPhaseSequence, phase))
	}
}

// formPair builds the shared Pair for the two oldest waiting participants
// and moves both into the Interaction phase.
func (e *Engine) formPair(firstID, secondID string) {
	first := e.mustGet(firstID)
	second := e.mustGet(secondID)

	set := e.stimuli.Current()
	pair := newPair(e.newPairID(), firstID, secondID, set.Shuffled(e.rng), set.Choices, e.now())
	first.Pair = pair
	second.Pair = pair
	e.pairs[pair.ID] = pair

	e.metrics.IncPairFormed()
	e.publish(e.pairEvent(event.TypePairFormed, firstID, pair))
	e.logger.Info("pair formed", map[string]string{
		"pair.id": pair.ID,
		"first":   firstID,
		"second":  secondID,
		"stimuli": set.Name,
		"trials":  strconv.Itoa(len(pair.Trials)),
	})

	e.progress(first)
	e.progress(second)
}
