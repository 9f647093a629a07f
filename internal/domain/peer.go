package domain

// PeerPhase is the signaling phase of a link with one remote participant.
type PeerPhase int

const (
	PhaseIdle PeerPhase = iota
	PhaseOfferSent
	PhaseOfferReceived
	PhaseAnswerSent
	PhaseAnswerReceived
	PhaseEstablished
	PhaseClosed
)

var phaseNames = [...]string{
	PhaseIdle:           "idle",
	PhaseOfferSent:      "offer-sent",
	PhaseOfferReceived:  "offer-received",
	PhaseAnswerSent:     "answer-sent",
	PhaseAnswerReceived: "answer-received",
	PhaseEstablished:    "established",
	PhaseClosed:         "closed",
}

func (p PeerPhase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p PeerPhase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// PeerInfo is a read-only view of a peer link.
type PeerInfo struct {
	PeerID  UserID    `json:"peer_id"`
	Phase   PeerPhase `json:"phase"`
	Pending int       `json:"pending_candidates"`
}
