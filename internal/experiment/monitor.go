package experiment

import (
	"fmt"

	"pairlab/internal/event"
)

func (e *Engine) allConnected(ids ...string) bool {
	for _, id := range ids {
		if id == "" || !e.registry.Has(id) {
			return false
		}
	}
	return true
}

// notifyStranded tells each still-connected participant that its partner is
// gone. A participant is told at most once and is silent afterwards.
func (e *Engine) notifyStranded(ids ...string) {
	for _, id := range ids {
		participant, err := e.registry.Get(id)
		if err != nil || participant.Stranded {
			continue
		}
		participant.Stranded = true
		e.sender.Send(id, NewPartnerDropout())
		e.metrics.IncDropout()
		evt := e.pairEvent(event.TypePartnerDropout, id, participant.Pair)
		evt.Phase = string(participant.Phase)
		e.publish(evt)
		e.logger.Warn("partner dropped out", map[string]string{
			"participant.id": id,
			"phase":          string(participant.Phase),
		})
	}
}

func (e *Engine) strandPair(pair *Pair) {
	pair.Broken = true
	e.notifyStranded(pair.Members[:]...)
}

// OnDisconnect removes the participant. A partner left behind before the end
// of the experiment is stranded.
func (e *Engine) OnDisconnect(id string) error {
	participant, err := e.registry.Get(id)
	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	e.pool.Remove(id)
	pair := participant.Pair
	if pair != nil && !participant.Phase.Terminal() {
		pair.Broken = true
		e.notifyStranded(pair.Partner(id))
	}
	if err := e.registry.Remove(id); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	if pair != nil && !e.registry.Has(pair.Partner(id)) {
		delete(e.pairs, pair.ID)
	}

	e.metrics.IncParticipantDisconnected()
	evt := e.pairEvent(event.TypeParticipantDisconnected, id, pair)
	evt.Phase = string(participant.Phase)
	e.publish(evt)
	e.logger.Info("participant disconnected", map[string]string{
		"participant.id": id,
		"phase":          string(participant.Phase),
	})
	return nil
}
