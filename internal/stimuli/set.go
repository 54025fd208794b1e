package stimuli

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
)

var (
	ErrNoTargets        = errors.New("stimulus set has no targets")
	ErrNoChoices        = errors.New("stimulus set has no choices")
	ErrDuplicateChoice  = errors.New("stimulus set has duplicate choices")
	ErrTargetNotChoice  = errors.New("stimulus target is not among the choices")
	ErrEmptyStimulusKey = errors.New("stimulus entries cannot be blank")
)

// Set is one trial vocabulary.
type Set struct {
	Name    string   `yaml:"name" json:"name"`
	Targets []string `yaml:"targets" json:"targets"`
	Choices []string `yaml:"choices" json:"choices"`
}

// Default is object4 three times as frequent as object5, eight trials.
func Default() Set {
	return Set{
		Name:    "default",
		Targets: repeat([]string{"object4", "object4", "object4", "object5"}, 2),
		Choices: []string{"object4", "object5"},
	}
}

func (s Set) Validate() error {
	if len(s.Targets) == 0 {
		return ErrNoTargets
	}
	if len(s.Choices) == 0 {
		return ErrNoChoices
	}
	seen := make(map[string]struct{}, len(s.Choices))
	for _, choice := range s.Choices {
		if strings.TrimSpace(choice) == "" {
			return ErrEmptyStimulusKey
		}
		if _, dup := seen[choice]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateChoice, choice)
		}
		seen[choice] = struct{}{}
	}
	for _, target := range s.Targets {
		if strings.TrimSpace(target) == "" {
			return ErrEmptyStimulusKey
		}
		if _, ok := seen[target]; !ok {
			return fmt.Errorf("%w: %q", ErrTargetNotChoice, target)
		}
	}
	return nil
}

// Shuffled returns a fresh permutation of the targets; the set is untouched.
func (s Set) Shuffled(rng *rand.Rand) []string {
	out := slices.Clone(s.Targets)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

func (s Set) Clone() Set {
	return Set{
		Name:    s.Name,
		Targets: slices.Clone(s.Targets),
		Choices: slices.Clone(s.Choices),
	}
}

func repeat(values []string, times int) []string {
	out := make([]string, 0, len(values)*times)
	for i := 0; i < times; i++ {
		out = append(out, values...)
	}
	return out
}
