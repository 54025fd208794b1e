package experiment

import (
	"fmt"
	"time"
)

// Registry is the only store of participant state.
type Registry struct {
	participants map[string]*Participant
	order        []string
	now          func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[string]*Participant),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) Create(id string) (*Participant, error) {
	if _, exists := r.participants[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, id)
	}
	participant := &Participant{
		ID:          id,
		Phase:       PhaseStart,
		ConnectedAt: r.now(),
	}
	r.participants[id] = participant
	r.order = append(r.order, id)
	return participant, nil
}

func (r *Registry) Get(id string) (*Participant, error) {
	participant, ok := r.participants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return participant, nil
}

func (r *Registry) Remove(id string) error {
	if _, ok := r.participants[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.participants, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) Has(id string) bool {
	_, ok := r.participants[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.participants)
}

// All returns live participants in connection order.
func (r *Registry) All() []*Participant {
	out := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.participants[id])
	}
	return out
}
