package stimuli

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
)

func TestDefaultSet(t *testing.T) {
	set := Default()
	if err := set.Validate(); err != nil {
		t.Fatalf("default set invalid: %v", err)
	}
	if len(set.Targets) != 8 {
		t.Fatalf("expected 8 targets, got %d", len(set.Targets))
	}
	counts := map[string]int{}
	for _, target := range set.Targets {
		counts[target]++
	}
	if counts["object4"] != 6 || counts["object5"] != 2 {
		t.Fatalf("unexpected target counts %v", counts)
	}
	if !slices.Equal(set.Choices, []string{"object4", "object5"}) {
		t.Fatalf("unexpected choices %v", set.Choices)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		set  Set
		want error
	}{
		{"no targets", Set{Choices: []string{"a"}}, ErrNoTargets},
		{"no choices", Set{Targets: []string{"a"}}, ErrNoChoices},
		{"duplicate choice", Set{Targets: []string{"a"}, Choices: []string{"a", "a"}}, ErrDuplicateChoice},
		{"target outside choices", Set{Targets: []string{"b"}, Choices: []string{"a"}}, ErrTargetNotChoice},
		{"blank choice", Set{Targets: []string{"a"}, Choices: []string{"a", " "}}, ErrEmptyStimulusKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.set.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestShuffledKeepsMultisetAndSource(t *testing.T) {
	set := Default()
	original := slices.Clone(set.Targets)

	shuffled := set.Shuffled(rand.New(rand.NewSource(7)))

	if !slices.Equal(set.Targets, original) {
		t.Fatalf("shuffle mutated the set")
	}
	sortedShuffled := slices.Clone(shuffled)
	slices.Sort(sortedShuffled)
	slices.Sort(original)
	if !slices.Equal(sortedShuffled, original) {
		t.Fatalf("shuffle changed the multiset: %v", shuffled)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewStore(Default())
	first := store.Current()
	first.Targets[0] = "mutated"

	if store.Current().Targets[0] == "mutated" {
		t.Fatalf("store leaked its internal slice")
	}

	var nilStore *Store
	if len(nilStore.Current().Targets) != 8 {
		t.Fatalf("expected nil store to fall back to default")
	}
}
