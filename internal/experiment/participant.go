package experiment

import "time"

// Role doubles as the trial role and as a visible waiting flag.
type Role string

const (
	RoleNone                Role = ""
	RoleReadyToInteract     Role = "ReadyToInteract"
	RoleDirector            Role = "Director"
	RoleMatcher             Role = "Matcher"
	RoleReadingInstructions Role = "ReadingInstructions"
	RoleWaitingToSwitch     Role = "WaitingToSwitch"
)

// Participant is the per-connection session state.
type Participant struct {
	ID string
	// ExternalID is whatever the client reported in CLIENT_INFO. It is shown
	// to the partner and recorded with results; it never routes anything.
	ExternalID  string
	Phase       Phase
	Role        Role
	Pair        *Pair
	Stranded    bool
	ConnectedAt time.Time
}

func (p *Participant) PartnerID() string {
	if p == nil || p.Pair == nil {
		return ""
	}
	return p.Pair.Partner(p.ID)
}
