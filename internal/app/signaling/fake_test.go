package signaling

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/domain"
)

type fakeConn struct {
	peer       domain.UserID
	remote     []webrtc.SessionDescription
	candidates []string
	rollbacks  int
	closed     int
	replaced   []webrtc.TrackLocal

	failRemote bool

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
}

func (f *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-to-" + string(f.peer)}, nil
}

func (f *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to-" + string(f.peer)}, nil
}

func (f *fakeConn) SetRemoteDescription(d webrtc.SessionDescription) error {
	if f.failRemote {
		return errors.New("bad sdp")
	}
	f.remote = append(f.remote, d)
	return nil
}

func (f *fakeConn) Rollback() error { f.rollbacks++; return nil }

func (f *fakeConn) AddICECandidate(c webrtc.ICECandidateInit) error {
	if len(f.remote) == 0 {
		return fmt.Errorf("candidate %q before remote description", c.Candidate)
	}
	f.candidates = append(f.candidates, c.Candidate)
	return nil
}

func (f *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }
func (f *fakeConn) OnStateChange(fn func(webrtc.PeerConnectionState)) { f.onState = fn }
func (f *fakeConn) ReplaceTrack(_ webrtc.RTPCodecType, t webrtc.TrackLocal) error {
	f.replaced = append(f.replaced, t)
	return nil
}
func (f *fakeConn) Close() error { f.closed++; return nil }

type fakeFactory struct {
	conns map[domain.UserID]*fakeConn
	made  int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{conns: make(map[domain.UserID]*fakeConn)}
}

func (f *fakeFactory) NewPeer(peer domain.UserID, _ []webrtc.TrackLocal) (core.MediaConnection, error) {
	c := &fakeConn{peer: peer}
	f.conns[peer] = c
	f.made++
	return c, nil
}

// outbox records what a relay transmitted.
type outbox struct {
	sent []domain.SignalEnvelope
}

func (o *outbox) send(env domain.SignalEnvelope) error {
	o.sent = append(o.sent, env)
	return nil
}

func (o *outbox) take() []domain.SignalEnvelope {
	out := o.sent
	o.sent = nil
	return out
}
