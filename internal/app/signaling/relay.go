// Package signaling drives the offer/answer/ICE exchange with every remote participant.
//
// A Relay keeps one peer link per remote user. All methods must be called from the
// session's dispatch goroutine; callbacks coming from pion are posted back to it.
package signaling

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/domain"
	"github.com/dkeye/meetlink/internal/metrics"
	"github.com/dkeye/meetlink/internal/wire"
)

const DefaultMaxPendingCandidates = 64

var (
	ErrUnexpectedPhase = errors.New("signal in unexpected phase")
	ErrSelfSignal      = errors.New("signal from local user")
	ErrNotAddressed    = errors.New("signal addressed to another user")
	ErrMalformed       = errors.New("malformed signal payload")
	ErrNoFactory       = errors.New("no peer factory")
)

type Options struct {
	Local   domain.UserID
	Factory core.PeerFactory
	// Send transmits an envelope. It must be safe to call from the dispatch goroutine.
	Send func(domain.SignalEnvelope) error
	// Post schedules fn on the dispatch goroutine.
	Post func(fn func())
	// Tracks returns the local tracks to attach to a new peer connection.
	Tracks func() []webrtc.TrackLocal

	MaxPendingCandidates int
}

type Relay struct {
	opts  Options
	links map[domain.UserID]*peerLink
	gen   uint64
	log   zerolog.Logger
}

func NewRelay(opts Options) *Relay {
	if opts.MaxPendingCandidates <= 0 {
		opts.MaxPendingCandidates = DefaultMaxPendingCandidates
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}
	return &Relay{
		opts:  opts,
		links: make(map[domain.UserID]*peerLink),
		log: log.With().
			Str("module", "signaling").
			Str("local", string(opts.Local)).
			Logger(),
	}
}

// Initiate sends an offer to peer. The link must be new or Idle.
func (r *Relay) Initiate(peer domain.UserID) error {
	if peer == r.opts.Local {
		return ErrSelfSignal
	}
	l := r.link(peer)
	if l.phase != domain.PhaseIdle {
		return fmt.Errorf("%w: initiate in %s", ErrUnexpectedPhase, l.phase)
	}
	if err := r.ensureConn(l); err != nil {
		return err
	}
	offer, err := l.conn.CreateOffer()
	if err != nil {
		r.ClosePeer(peer)
		return fmt.Errorf("create offer for %s: %w", peer, err)
	}
	if err := r.sendDescription(peer, offer); err != nil {
		r.ClosePeer(peer)
		return fmt.Errorf("send offer to %s: %w", peer, err)
	}
	r.setPhase(l, domain.PhaseOfferSent)
	return nil
}

// Handle applies one inbound envelope. Returned errors mean the envelope was dropped;
// the relay stays usable.
func (r *Relay) Handle(env domain.SignalEnvelope) error {
	if env.From == r.opts.Local {
		return ErrSelfSignal
	}
	if !env.AddressedTo(r.opts.Local) {
		return ErrNotAddressed
	}
	switch env.Kind {
	case domain.SignalOffer:
		return r.handleOffer(env)
	case domain.SignalAnswer:
		return r.handleAnswer(env)
	case domain.SignalICECandidate:
		return r.handleCandidate(env)
	}
	return fmt.Errorf("%w: kind %q", ErrMalformed, env.Kind)
}

func (r *Relay) handleOffer(env domain.SignalEnvelope) error {
	desc, err := wire.DescriptionOf(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	l := r.link(env.From)
	switch l.phase {
	case domain.PhaseIdle:
	case domain.PhaseOfferSent:
		if r.opts.Local.Less(env.From) {
			metrics.GlareTotal.WithLabelValues("kept").Inc()
			r.log.Info().Str("peer", string(env.From)).Msg("glare: keeping local offer")
			return nil
		}
		metrics.GlareTotal.WithLabelValues("yielded").Inc()
		r.log.Info().Str("peer", string(env.From)).Msg("glare: yielding to remote offer")
		if err := l.conn.Rollback(); err != nil {
			return fmt.Errorf("rollback offer for %s: %w", env.From, err)
		}
		r.setPhase(l, domain.PhaseIdle)
	case domain.PhaseOfferReceived, domain.PhaseAnswerSent:
		// The peer never saw our answer and starts over.
		r.log.Info().Str("peer", string(env.From)).Str("phase", l.phase.String()).Msg("re-offer, restarting link")
		r.ClosePeer(env.From)
		l = r.link(env.From)
	default:
		return fmt.Errorf("%w: offer in %s", ErrUnexpectedPhase, l.phase)
	}

	if err := r.ensureConn(l); err != nil {
		return err
	}
	if err := l.conn.SetRemoteDescription(desc); err != nil {
		r.ClosePeer(env.From)
		return fmt.Errorf("apply offer from %s: %w", env.From, err)
	}
	l.remoteSet = true
	r.setPhase(l, domain.PhaseOfferReceived)
	r.flush(l)

	answer, err := l.conn.CreateAnswer()
	if err != nil {
		r.ClosePeer(env.From)
		return fmt.Errorf("create answer for %s: %w", env.From, err)
	}
	if err := r.sendDescription(env.From, answer); err != nil {
		r.ClosePeer(env.From)
		return fmt.Errorf("send answer to %s: %w", env.From, err)
	}
	r.setPhase(l, domain.PhaseAnswerSent)
	return nil
}

func (r *Relay) handleAnswer(env domain.SignalEnvelope) error {
	desc, err := wire.DescriptionOf(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	l, ok := r.links[env.From]
	if !ok {
		return fmt.Errorf("%w: answer without link", ErrUnexpectedPhase)
	}
	if l.phase != domain.PhaseOfferSent {
		return fmt.Errorf("%w: answer in %s", ErrUnexpectedPhase, l.phase)
	}
	if err := l.conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("apply answer from %s: %w", env.From, err)
	}
	l.remoteSet = true
	r.setPhase(l, domain.PhaseAnswerReceived)
	r.flush(l)
	r.setPhase(l, domain.PhaseEstablished)
	return nil
}

func (r *Relay) handleCandidate(env domain.SignalEnvelope) error {
	c, err := wire.CandidateOf(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	l := r.link(env.From)
	if l.remoteSet {
		if err := l.conn.AddICECandidate(c); err != nil {
			metrics.ICECandidatesTotal.WithLabelValues("dropped").Inc()
			return fmt.Errorf("add candidate from %s: %w", env.From, err)
		}
		metrics.ICECandidatesTotal.WithLabelValues("applied").Inc()
		return nil
	}
	if l.buffer(c, r.opts.MaxPendingCandidates) {
		metrics.ICECandidatesTotal.WithLabelValues("dropped").Inc()
		r.log.Warn().Str("peer", string(env.From)).Int("limit", r.opts.MaxPendingCandidates).Msg("pending candidates full, dropped oldest")
	}
	metrics.ICECandidatesTotal.WithLabelValues("buffered").Inc()
	return nil
}

// flush applies the buffered candidates of l in arrival order.
func (r *Relay) flush(l *peerLink) {
	pending := l.takePending()
	for _, c := range pending {
		if err := l.conn.AddICECandidate(c); err != nil {
			metrics.ICECandidatesTotal.WithLabelValues("dropped").Inc()
			r.log.Warn().Err(err).Str("peer", string(l.peer)).Msg("buffered candidate rejected")
			continue
		}
		metrics.ICECandidatesTotal.WithLabelValues("applied").Inc()
	}
	if len(pending) > 0 {
		r.log.Debug().Str("peer", string(l.peer)).Int("count", len(pending)).Msg("flushed buffered candidates")
	}
}

// ClosePeer closes the link with peer and forgets it. Closing an unknown peer is a no-op.
func (r *Relay) ClosePeer(peer domain.UserID) {
	l, ok := r.links[peer]
	if !ok {
		return
	}
	delete(r.links, peer)
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			r.log.Error().Err(err).Str("peer", string(peer)).Msg("close peer connection")
		}
	}
	l.phase = domain.PhaseClosed
	l.pending = nil
	r.log.Info().Str("peer", string(peer)).Msg("peer link closed")
	r.observe()
}

// ResetStale closes links whose local offer is still unanswered and returns their peers.
// After a reconnect those offers may never have reached the peer.
func (r *Relay) ResetStale() []domain.UserID {
	var reset []domain.UserID
	for _, id := range r.peerIDs() {
		if r.links[id].phase == domain.PhaseOfferSent {
			r.ClosePeer(id)
			reset = append(reset, id)
		}
	}
	return reset
}

// CloseAll closes every link.
func (r *Relay) CloseAll() {
	for _, id := range r.peerIDs() {
		r.ClosePeer(id)
	}
}

// Phase returns the phase of the link with peer.
func (r *Relay) Phase(peer domain.UserID) (domain.PeerPhase, bool) {
	l, ok := r.links[peer]
	if !ok {
		return domain.PhaseClosed, false
	}
	return l.phase, true
}

// Peers returns a snapshot of every link, sorted by peer id.
func (r *Relay) Peers() []domain.PeerInfo {
	out := make([]domain.PeerInfo, 0, len(r.links))
	for _, id := range r.peerIDs() {
		out = append(out, r.links[id].info())
	}
	return out
}

// ReplaceTrack swaps the outgoing track of kind on every peer connection.
func (r *Relay) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	var errs []error
	for _, id := range r.peerIDs() {
		l := r.links[id]
		if l.conn == nil {
			continue
		}
		if err := l.conn.ReplaceTrack(kind, track); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Relay) peerIDs() []domain.UserID {
	ids := make([]domain.UserID, 0, len(r.links))
	for id := range r.links {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Relay) link(peer domain.UserID) *peerLink {
	if l, ok := r.links[peer]; ok {
		return l
	}
	r.gen++
	l := &peerLink{peer: peer, phase: domain.PhaseIdle, gen: r.gen}
	r.links[peer] = l
	r.log.Debug().Str("peer", string(peer)).Msg("peer link created")
	r.observe()
	return l
}

func (r *Relay) ensureConn(l *peerLink) error {
	if l.conn != nil {
		return nil
	}
	if r.opts.Factory == nil {
		return ErrNoFactory
	}
	var tracks []webrtc.TrackLocal
	if r.opts.Tracks != nil {
		tracks = r.opts.Tracks()
	}
	conn, err := r.opts.Factory.NewPeer(l.peer, tracks)
	if err != nil {
		return fmt.Errorf("new peer connection for %s: %w", l.peer, err)
	}
	peer, gen := l.peer, l.gen
	conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		r.opts.Post(func() { r.sendCandidate(peer, gen, c) })
	})
	conn.OnStateChange(func(s webrtc.PeerConnectionState) {
		r.opts.Post(func() { r.peerStateChanged(peer, gen, s) })
	})
	l.conn = conn
	return nil
}

func (r *Relay) current(peer domain.UserID, gen uint64) (*peerLink, bool) {
	l, ok := r.links[peer]
	if !ok || l.gen != gen {
		return nil, false
	}
	return l, true
}

func (r *Relay) sendCandidate(peer domain.UserID, gen uint64, c webrtc.ICECandidateInit) {
	if _, ok := r.current(peer, gen); !ok {
		return
	}
	env, err := wire.CandidateEnvelope(r.opts.Local, peer, c)
	if err != nil {
		r.log.Error().Err(err).Str("peer", string(peer)).Msg("build candidate envelope")
		return
	}
	if err := r.send(env); err != nil {
		r.log.Warn().Err(err).Str("peer", string(peer)).Msg("local candidate not sent")
	}
}

func (r *Relay) peerStateChanged(peer domain.UserID, gen uint64, s webrtc.PeerConnectionState) {
	l, ok := r.current(peer, gen)
	if !ok {
		return
	}
	r.log.Info().Str("peer", string(peer)).Str("peer_connection_state", s.String()).Msg("peer state")
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if l.phase == domain.PhaseAnswerSent || l.phase == domain.PhaseAnswerReceived {
			r.setPhase(l, domain.PhaseEstablished)
		}
	case webrtc.PeerConnectionStateFailed:
		r.ClosePeer(peer)
	}
}

func (r *Relay) sendDescription(peer domain.UserID, desc webrtc.SessionDescription) error {
	env, err := wire.DescriptionEnvelope(r.opts.Local, peer, desc)
	if err != nil {
		return err
	}
	return r.send(env)
}

func (r *Relay) send(env domain.SignalEnvelope) error {
	if r.opts.Send == nil {
		return nil
	}
	return r.opts.Send(env)
}

func (r *Relay) setPhase(l *peerLink, p domain.PeerPhase) {
	if l.phase == p {
		return
	}
	r.log.Debug().Str("peer", string(l.peer)).Str("from", l.phase.String()).Str("to", p.String()).Msg("phase")
	l.phase = p
	r.observe()
}

func (r *Relay) observe() {
	counts := make(map[domain.PeerPhase]int)
	for _, l := range r.links {
		counts[l.phase]++
	}
	for p := domain.PhaseIdle; p <= domain.PhaseClosed; p++ {
		metrics.PeerLinks.WithLabelValues(p.String()).Set(float64(counts[p]))
	}
}
