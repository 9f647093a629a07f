package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meetlink/internal/domain"
)

var (
	ErrMissingPayload = errors.New("signal payload is missing")
	ErrMissingSender  = errors.New("signal sender is missing")
)

// SignalPayload is the data object of meeting_signal.
type SignalPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	From domain.UserID   `json:"from_user_id,omitempty"`
	To   domain.UserID   `json:"to_user_id,omitempty"`
}

// Signal decodes meeting_signal data into an envelope.
func (m Message) Signal() (domain.SignalEnvelope, error) {
	var p SignalPayload
	if err := m.decodeData(&p); err != nil {
		return domain.SignalEnvelope{}, err
	}
	kind, err := domain.ParseSignalKind(p.Type)
	if err != nil {
		return domain.SignalEnvelope{}, fmt.Errorf("%w: %q", err, p.Type)
	}
	if len(p.Data) == 0 || string(p.Data) == "null" {
		return domain.SignalEnvelope{}, ErrMissingPayload
	}
	if p.From == "" {
		return domain.SignalEnvelope{}, ErrMissingSender
	}
	return domain.SignalEnvelope{Kind: kind, Payload: p.Data, From: p.From, To: p.To}, nil
}

// SignalMessage wraps an envelope into a meeting_signal message.
func SignalMessage(env domain.SignalEnvelope) (Message, error) {
	return NewMessage(TypeMeetingSignal, SignalPayload{
		Type: string(env.Kind),
		Data: env.Payload,
		From: env.From,
		To:   env.To,
	})
}

type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func SDPFromPion(desc webrtc.SessionDescription) SDP {
	return SDP{Type: desc.Type.String(), SDP: desc.SDP}
}

func (s SDP) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	if s.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("empty %s sdp", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// DescriptionOf decodes the SDP carried by an offer or answer envelope and checks
// that its type matches the envelope kind.
func DescriptionOf(env domain.SignalEnvelope) (webrtc.SessionDescription, error) {
	var s SDP
	if err := json.Unmarshal(env.Payload, &s); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode sdp: %w", err)
	}
	if s.Type != string(env.Kind) {
		return webrtc.SessionDescription{}, fmt.Errorf("%s envelope carries sdp.type=%q", env.Kind, s.Type)
	}
	return s.ToPion()
}

// CandidateOf decodes the ICE candidate carried by an ice-candidate envelope.
func CandidateOf(env domain.SignalEnvelope) (webrtc.ICECandidateInit, error) {
	var c Candidate
	if err := json.Unmarshal(env.Payload, &c); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("decode candidate: %w", err)
	}
	if c.Candidate == "" {
		return webrtc.ICECandidateInit{}, errors.New("empty candidate")
	}
	return c.ToPion(), nil
}

// DescriptionEnvelope builds an offer/answer envelope from a pion description.
func DescriptionEnvelope(from, to domain.UserID, desc webrtc.SessionDescription) (domain.SignalEnvelope, error) {
	kind, err := domain.ParseSignalKind(desc.Type.String())
	if err != nil || kind == domain.SignalICECandidate {
		return domain.SignalEnvelope{}, fmt.Errorf("unsupported description type %q", desc.Type.String())
	}
	raw, err := json.Marshal(SDPFromPion(desc))
	if err != nil {
		return domain.SignalEnvelope{}, err
	}
	return domain.SignalEnvelope{Kind: kind, Payload: raw, From: from, To: to}, nil
}

// CandidateEnvelope builds an ice-candidate envelope from a pion candidate.
func CandidateEnvelope(from, to domain.UserID, init webrtc.ICECandidateInit) (domain.SignalEnvelope, error) {
	raw, err := json.Marshal(CandidateFromPion(init))
	if err != nil {
		return domain.SignalEnvelope{}, err
	}
	return domain.SignalEnvelope{Kind: domain.SignalICECandidate, Payload: raw, From: from, To: to}, nil
}
