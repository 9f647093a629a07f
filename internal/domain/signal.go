package domain

import (
	"encoding/json"
	"errors"
)

var ErrUnknownSignalKind = errors.New("unknown signal kind")

type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

func ParseSignalKind(s string) (SignalKind, error) {
	switch k := SignalKind(s); k {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return k, nil
	}
	return "", ErrUnknownSignalKind
}

// SignalEnvelope is a signaling payload in transit between two participants.
// An empty To means broadcast to every other participant.
type SignalEnvelope struct {
	Kind    SignalKind
	Payload json.RawMessage
	From    UserID
	To      UserID
}

func (e SignalEnvelope) Broadcast() bool { return e.To == "" }

// AddressedTo reports whether id should process the envelope.
func (e SignalEnvelope) AddressedTo(id UserID) bool {
	return e.To == "" || e.To == id
}
