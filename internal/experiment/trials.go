package experiment

import (
	"fmt"
	"strconv"

	"pairlab/internal/event"
)

// initiateInteraction is the first rendezvous: both partners must finish the
// instructions before the first Director is drawn.
func (e *Engine) initiateInteraction(participant *Participant) error {
	pair, err := e.requirePair(participant)
	if err != nil {
		return err
	}
	if pair.Stage != StageInstructions {
		return fmt.Errorf("%w: pair %s already interacting", ErrOutOfSequence, pair.ID)
	}
	partnerID := pair.Partner(participant.ID)
	if !e.allConnected(participant.ID, partnerID) {
		e.strandPair(pair)
		return nil
	}

	e.send(participant.ID, NewWaitForPartner())
	released := pair.ready.Arrive(participant.ID, func() {
		pair.Director = pair.Members[e.rng.Intn(len(pair.Members))]
		e.logger.Info("interaction started", map[string]string{
			"pair.id":  pair.ID,
			"director": pair.Director,
		})
		e.startTrial(pair)
	})
	if !released {
		participant.Role = RoleReadyToInteract
	}
	return nil
}

// startTrial hands the current target to the Director, or ends the
// experiment for both partners once every trial is done.
func (e *Engine) startTrial(pair *Pair) {
	if !e.allConnected(pair.Members[:]...) {
		e.strandPair(pair)
		return
	}
	if pair.Done() {
		pair.Stage = StageFinished
		e.logger.Info("pair finished", map[string]string{
			"pair.id": pair.ID,
			"trials":  strconv.Itoa(pair.Counter),
		})
		for _, id := range pair.Members {
			e.progress(e.mustGet(id))
		}
		return
	}

	director := e.mustGet(pair.Director)
	matcher := e.mustGet(pair.Matcher())
	director.Role = RoleDirector
	matcher.Role = RoleMatcher
	pair.Stage = StageDirecting
	pair.Label = ""

	e.send(director.ID, NewDirector(pair.Target(), matcher.ExternalID))
	e.send(matcher.ID, NewWaitForPartner())

	evt := e.pairEvent(event.TypeTrialStarted, director.ID, pair)
	evt.Phase = string(PhaseInteraction)
	e.publish(evt)
}

func (e *Engine) handleDirectorResponse(participant *Participant, label string) error {
	pair, err := e.requirePair(participant)
	if err != nil {
		return err
	}
	if pair.Stage != StageDirecting || pair.Director != participant.ID {
		return fmt.Errorf("%w: director response from %s in stage %s", ErrOutOfSequence, participant.ID, pair.Stage)
	}
	matcherID := pair.Matcher()
	if !e.allConnected(matcherID) {
		e.strandPair(pair)
		return nil
	}
	matcher := e.mustGet(matcherID)

	pair.Label = label
	pair.Stage = StageMatching
	e.send(participant.ID, NewWaitForPartner())
	e.send(matcher.ID, NewMatcher(label, pair.Choices, participant.ExternalID))
	return nil
}

func (e *Engine) handleMatcherResponse(participant *Participant, guess string) error {
	pair, err := e.requirePair(participant)
	if err != nil {
		return err
	}
	if pair.Stage != StageMatching || pair.Matcher() != participant.ID {
		return fmt.Errorf("%w: matcher response from %s in stage %s", ErrOutOfSequence, participant.ID, pair.Stage)
	}
	if !e.allConnected(pair.Director, participant.ID) {
		e.strandPair(pair)
		return nil
	}
	director := e.mustGet(pair.Director)

	target := pair.Target()
	score := 0
	if guess == target {
		score = 1
	}
	feedback := NewFeedback(score, target, pair.Label, guess)
	e.send(participant.ID, feedback)
	e.send(director.ID, feedback)
	pair.Stage = StageFeedback

	record := event.TrialRecord{
		PairID:             pair.ID,
		Index:              pair.Counter,
		DirectorID:         director.ID,
		MatcherID:          participant.ID,
		DirectorExternalID: director.ExternalID,
		MatcherExternalID:  participant.ExternalID,
		Target:             target,
		Label:              pair.Label,
		Guess:              guess,
		Score:              score,
		CompletedAt:        e.now(),
	}
	e.metrics.RecordTrial(score == 1)
	evt := e.pairEvent(event.TypeTrialCompleted, participant.ID, pair)
	evt.Phase = string(PhaseInteraction)
	evt.Trial = &record
	e.publish(evt)
	e.logger.Info("trial completed", map[string]string{
		"pair.id": pair.ID,
		"trial":   strconv.Itoa(pair.Counter),
		"score":   strconv.Itoa(score),
	})
	return nil
}

// swapRolesAndProgress is the second rendezvous: once both partners have
// seen the feedback, the counter advances and the roles swap.
func (e *Engine) swapRolesAndProgress(participant *Participant) error {
	pair, err := e.requirePair(participant)
	if err != nil {
		return err
	}
	if pair.Stage != StageFeedback {
		return fmt.Errorf("%w: feedback finished by %s in stage %s", ErrOutOfSequence, participant.ID, pair.Stage)
	}
	partnerID := pair.Partner(participant.ID)
	if !e.allConnected(participant.ID, partnerID) {
		e.strandPair(pair)
		return nil
	}

	released := pair.swap.Arrive(participant.ID, func() {
		pair.Counter++
		pair.Director = pair.Matcher()
		e.startTrial(pair)
	})
	if !released {
		participant.Role = RoleWaitingToSwitch
	}
	return nil
}
