package experiment

import (
	"fmt"
	"slices"
)

type Phase string

const (
	PhaseStart            Phase = "Start"
	PhasePairParticipants Phase = "PairParticipants"
	PhaseInteraction      Phase = "Interaction"
	PhaseEnd              Phase = "End"
)

var phaseSequence = []Phase{PhaseStart, PhasePairParticipants, PhaseInteraction, PhaseEnd}

// Sequence returns the ordered phases every participant walks through.
func Sequence() []Phase {
	return slices.Clone(phaseSequence)
}

func (p Phase) Index() int {
	return slices.Index(phaseSequence, p)
}

func (p Phase) Terminal() bool {
	return p == phaseSequence[len(phaseSequence)-1]
}

// Next returns the phase after p. It panics with ErrPhaseSequence for the
// terminal phase and for phases outside the sequence.
func (p Phase) Next() Phase {
	index := p.Index()
	if index < 0 {
		panic(fmt.Errorf("%w: unknown phase %q", ErrPhaseSequence, p))
	}
	if index+1 >= len(phaseSequence) {
		panic(fmt.Errorf("%w: no phase after %q", ErrPhaseSequence, p))
	}
	return phaseSequence[index+1]
}
