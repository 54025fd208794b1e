package experiment

import (
	"sort"
	"time"
)

type ParticipantView struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Phase       Phase     `json:"phase"`
	Role        Role      `json:"role,omitempty"`
	PairID      string    `json:"pair_id,omitempty"`
	PartnerID   string    `json:"partner_id,omitempty"`
	Stranded    bool      `json:"stranded,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

type PairView struct {
	ID       string    `json:"id"`
	Members  [2]string `json:"members"`
	Director string    `json:"director,omitempty"`
	Stage    Stage     `json:"stage"`
	Counter  int       `json:"counter"`
	Trials   int       `json:"trials"`
	Broken   bool      `json:"broken,omitempty"`
	FormedAt time.Time `json:"formed_at"`
}

// Snapshot is a point-in-time copy of engine state for status reporting.
type Snapshot struct {
	Waiting      []string          `json:"waiting"`
	Participants []ParticipantView `json:"participants"`
	Pairs        []PairView        `json:"pairs"`
}

func (r *Registry) Snapshot() []ParticipantView {
	views := make([]ParticipantView, 0, r.Len())
	for _, participant := range r.All() {
		view := ParticipantView{
			ID:          participant.ID,
			ExternalID:  participant.ExternalID,
			Phase:       participant.Phase,
			Role:        participant.Role,
			PartnerID:   participant.PartnerID(),
			Stranded:    participant.Stranded,
			ConnectedAt: participant.ConnectedAt,
		}
		if participant.Pair != nil {
			view.PairID = participant.Pair.ID
		}
		views = append(views, view)
	}
	return views
}

func (e *Engine) Snapshot() Snapshot {
	pairs := make([]PairView, 0, len(e.pairs))
	for _, pair := range e.pairs {
		pairs = append(pairs, PairView{
			ID:       pair.ID,
			Members:  pair.Members,
			Director: pair.Director,
			Stage:    pair.Stage,
			Counter:  pair.Counter,
			Trials:   len(pair.Trials),
			Broken:   pair.Broken,
			FormedAt: pair.FormedAt,
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].FormedAt.Equal(pairs[j].FormedAt) {
			return pairs[i].ID < pairs[j].ID
		}
		return pairs[i].FormedAt.Before(pairs[j].FormedAt)
	})
	return Snapshot{
		Waiting:      e.pool.Waiting(),
		Participants: e.registry.Snapshot(),
		Pairs:        pairs,
	}
}
