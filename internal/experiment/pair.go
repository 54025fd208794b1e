package experiment

import (
	"slices"
	"time"
)

// Stage tracks where a pair is inside the interaction trial loop.
type Stage string

const (
	StageInstructions Stage = "instructions"
	StageDirecting    Stage = "directing"
	StageMatching     Stage = "matching"
	StageFeedback     Stage = "feedback"
	StageFinished     Stage = "finished"
)

// Pair is the single owner of everything the two partners share: the trial
// list, the trial counter and the current Director. Both participant records
// point at the same Pair, so the partners can never disagree about them.
type Pair struct {
	ID       string
	Members  [2]string
	Trials   []string
	Choices  []string
	Counter  int
	Director string
	Stage    Stage
	Label    string
	Broken   bool
	FormedAt time.Time

	ready Barrier
	swap  Barrier
}

func newPair(id, first, second string, trials, choices []string, formedAt time.Time) *Pair {
	return &Pair{
		ID:       id,
		Members:  [2]string{first, second},
		Trials:   trials,
		Choices:  slices.Clone(choices),
		Stage:    StageInstructions,
		FormedAt: formedAt,
	}
}

// Partner returns the other member, or "" when id is not in the pair.
func (p *Pair) Partner(id string) string {
	switch id {
	case p.Members[0]:
		return p.Members[1]
	case p.Members[1]:
		return p.Members[0]
	default:
		return ""
	}
}

func (p *Pair) Matcher() string {
	return p.Partner(p.Director)
}

func (p *Pair) RoleOf(id string) Role {
	switch {
	case p.Director == "":
		return RoleNone
	case id == p.Director:
		return RoleDirector
	case p.Partner(id) != "":
		return RoleMatcher
	default:
		return RoleNone
	}
}

func (p *Pair) Done() bool {
	return p.Counter >= len(p.Trials)
}

func (p *Pair) Target() string {
	return p.Trials[p.Counter]
}
