package experiment

// Barrier is a reusable two-party rendezvous. The first participant to arrive
// waits; the second distinct participant runs the release action and resets
// the barrier for the next round. Repeat arrivals by the waiting participant
// are ignored.
type Barrier struct {
	waiting string
}

// Arrive records id and reports whether this arrival released the barrier.
func (b *Barrier) Arrive(id string, release func()) bool {
	switch b.waiting {
	case "":
		b.waiting = id
		return false
	case id:
		return false
	}
	b.waiting = ""
	if release != nil {
		release()
	}
	return true
}

// Waiting returns the participant parked at the barrier, if any.
func (b *Barrier) Waiting() string {
	return b.waiting
}
