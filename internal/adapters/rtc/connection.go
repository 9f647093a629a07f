package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetlink/internal/domain"
	"github.com/dkeye/meetlink/internal/metrics"
)

var ErrNoSender = errors.New("no sender for track kind")

var kinds = []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo}

// WebRTCConnection is a pion peer connection with one remote participant. It always
// carries one audio and one video sender so tracks can be swapped without renegotiation.
type WebRTCConnection struct {
	api  *webrtc.API
	cfg  webrtc.Configuration
	peer domain.UserID
	log  zerolog.Logger

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	tracks  map[webrtc.RTPCodecType]webrtc.TrackLocal
	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	closed  bool
}

func newWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, peer domain.UserID, tracks []webrtc.TrackLocal) (*WebRTCConnection, error) {
	c := &WebRTCConnection{
		api:    api,
		cfg:    cfg,
		peer:   peer,
		tracks: make(map[webrtc.RTPCodecType]webrtc.TrackLocal),
		log: log.With().
			Str("module", "webrtc").
			Str("peer", string(peer)).
			Logger(),
	}
	for _, t := range tracks {
		if t != nil {
			c.tracks[t.Kind()] = t
		}
	}
	pc, err := c.newPeerConnection()
	if err != nil {
		return nil, err
	}
	c.pc = pc
	return c, nil
}

func (c *WebRTCConnection) newPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := c.api.NewPeerConnection(c.cfg)
	if err != nil {
		return nil, err
	}
	for _, kind := range kinds {
		var sender *webrtc.RTPSender
		if t, ok := c.tracks[kind]; ok {
			sender, err = pc.AddTrack(t)
		} else {
			var tr *webrtc.RTPTransceiver
			tr, err = pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionSendrecv,
			})
			if tr != nil {
				sender = tr.Sender()
			}
		}
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s sender: %w", kind, err)
		}
		go c.readRTCP(sender)
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if fn := c.iceHandler(pc); fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if fn := c.stateHandler(pc); fn != nil {
			fn(s)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		metrics.RemoteTracksTotal.WithLabelValues(track.Kind().String()).Inc()
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})
	return pc, nil
}

// readRTCP drains feedback for an outgoing track. Interceptors only run while it is read.
func (c *WebRTCConnection) readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range packets {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication:
				metrics.RTCPPacketsTotal.WithLabelValues("pli").Inc()
			case *rtcp.FullIntraRequest:
				metrics.RTCPPacketsTotal.WithLabelValues("fir").Inc()
			case *rtcp.TransportLayerNack:
				metrics.RTCPPacketsTotal.WithLabelValues("nack").Inc()
			default:
				metrics.RTCPPacketsTotal.WithLabelValues("other").Inc()
			}
		}
	}
}

// iceHandler returns the candidate callback if pc is still the live connection.
func (c *WebRTCConnection) iceHandler(pc *webrtc.PeerConnection) func(webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc != pc || c.closed {
		return nil
	}
	return c.onICE
}

func (c *WebRTCConnection) stateHandler(pc *webrtc.PeerConnection) func(webrtc.PeerConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc != pc || c.closed {
		return nil
	}
	return c.onState
}

func (c *WebRTCConnection) current() *webrtc.PeerConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	pc := c.current()
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	pc := c.current()
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.current().SetRemoteDescription(desc)
}

// Rollback discards the unanswered local offer by replacing the peer connection.
// Nothing was negotiated on it yet, so the replacement starts from the same tracks.
func (c *WebRTCConnection) Rollback() error {
	pc, err := c.newPeerConnection()
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = pc.Close()
		return webrtc.ErrConnectionClosed
	}
	old := c.pc
	c.pc = pc
	c.mu.Unlock()

	if err := old.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close rolled back connection")
	}
	c.log.Debug().Msg("local offer rolled back")
	return nil
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.current().AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// ReplaceTrack swaps the outgoing track of kind. A nil track stops sending.
func (c *WebRTCConnection) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tr := range c.pc.GetTransceivers() {
		if tr.Kind() != kind || tr.Sender() == nil {
			continue
		}
		if err := tr.Sender().ReplaceTrack(track); err != nil {
			return err
		}
		if track == nil {
			delete(c.tracks, kind)
		} else {
			c.tracks[kind] = track
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoSender, kind)
}

func (c *WebRTCConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pc := c.pc
	c.mu.Unlock()

	if err := pc.Close(); err != nil {
		c.log.Error().Err(err).Msg("close error")
		return err
	}
	c.log.Info().Msg("closed")
	return nil
}
