package core

//go:generate go run go.uber.org/mock/mockgen -source=media_iface.go -destination=../mocks/mock_media.go -package=mocks

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meetlink/internal/domain"
)

// MediaConnection is one peer connection with a remote participant.
type MediaConnection interface {
	// CreateOffer creates the local offer and sets it as local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates the local answer and sets it as local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// Rollback discards a local offer that was not answered.
	Rollback() error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnStateChange sets a callback for peer connection state changes.
	// It is invoked from a pion goroutine.
	OnStateChange(func(webrtc.PeerConnectionState))
	// ReplaceTrack swaps the outgoing track of the given kind without renegotiation.
	ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error
	Close() error
}

// PeerFactory creates a MediaConnection for peer and attaches the local tracks.
type PeerFactory interface {
	NewPeer(peer domain.UserID, tracks []webrtc.TrackLocal) (MediaConnection, error)
}

type CaptureKind string

const (
	CaptureMicrophone CaptureKind = "microphone"
	CaptureCamera     CaptureKind = "camera"
	CaptureScreen     CaptureKind = "screen"
)

// LocalTrack is a captured local media track that can be muted in place.
type LocalTrack interface {
	Kind() CaptureKind
	Track() webrtc.TrackLocal
	SetEnabled(bool)
	Enabled() bool
	Stop()
}

// CaptureSource acquires local capture devices. Acquire may block.
type CaptureSource interface {
	Acquire(ctx context.Context, kind CaptureKind) (LocalTrack, error)
}
