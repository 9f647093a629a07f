package session

import (
	"context"
	"errors"

	"github.com/dkeye/meetlink/internal/app/conn"
	"github.com/dkeye/meetlink/internal/app/presence"
	"github.com/dkeye/meetlink/internal/app/signaling"
	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/domain"
	"github.com/dkeye/meetlink/internal/metrics"
	"github.com/dkeye/meetlink/internal/wire"
)

// loop is the dispatch goroutine. Tracker, relay and local tracks are only touched here.
func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	events := s.conn.Events()
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return
		case fn := <-s.cmds:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handle(ev)
		}
		s.publish()
	}
}

// teardown closes the connection before any peer link, then releases local tracks.
func (s *Session) teardown() {
	s.conn.Close()
	s.relay.CloseAll()
	for _, t := range []core.LocalTrack{s.screen, s.cam, s.mic} {
		if t != nil {
			t.Stop()
		}
	}
	s.screen, s.cam, s.mic = nil, nil, nil
	s.state = domain.Disconnected
	metrics.RosterSize.Set(0)
	s.publish()
	s.markLeft()
}

// post schedules fn on the dispatch goroutine. Dropped once the session is gone.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// do runs fn on the dispatch goroutine and waits for it.
func (s *Session) do(fn func()) error {
	s.mu.RLock()
	joined := s.joined
	s.mu.RUnlock()
	if !joined {
		return ErrNotJoined
	}

	finished := make(chan struct{})
	select {
	case s.cmds <- func() {
		defer close(finished)
		fn()
	}:
	case <-s.done:
		return ErrLeft
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLeft
		}
	}
}

func (s *Session) handle(ev conn.Event) {
	switch ev.Kind {
	case conn.EventState:
		s.state = ev.State
		s.log.Info().Str("state", ev.State.String()).Msg("connection state")
		if ev.State == domain.Connected {
			for _, id := range s.relay.ResetStale() {
				s.log.Info().Str("peer", string(id)).Msg("unanswered offer reset after reconnect")
			}
			s.syncPeers()
		}
	case conn.EventMessage:
		s.dispatch(ev.Message)
	}
}

func (s *Session) dispatch(m wire.Message) {
	switch m.Type {
	case wire.TypeMeetingJoin, wire.TypeMeetingLeave, wire.TypePresenceUpdate:
		ev, err := presence.EventFromMessage(m)
		if err != nil {
			metrics.ProtocolErrorsTotal.WithLabelValues("presence").Inc()
			s.log.Warn().Err(err).Str("type", string(m.Type)).Msg("presence message dropped")
			return
		}
		s.applyPresence(ev)
	case wire.TypeMeetingSignal:
		env, err := m.Signal()
		if err != nil {
			metrics.ProtocolErrorsTotal.WithLabelValues("signal").Inc()
			s.log.Warn().Err(err).Msg("signal message dropped")
			return
		}
		if env.From == s.opts.User || !env.AddressedTo(s.opts.User) {
			return
		}
		if _, known := s.roster[env.From]; !known {
			metrics.ProtocolErrorsTotal.WithLabelValues("unknown_sender").Inc()
			s.log.Warn().Str("peer", string(env.From)).Str("kind", string(env.Kind)).Msg("signal from sender outside the roster")
			return
		}
		if !s.limiter.Allow(env.From) {
			metrics.ProtocolErrorsTotal.WithLabelValues("rate_limited").Inc()
			s.log.Warn().Str("peer", string(env.From)).Str("kind", string(env.Kind)).Msg("signal rate limited")
			return
		}
		if err := s.relay.Handle(env); err != nil {
			if errors.Is(err, signaling.ErrNotAddressed) {
				return
			}
			metrics.ProtocolErrorsTotal.WithLabelValues("signal").Inc()
			s.log.Warn().Err(err).Str("peer", string(env.From)).Str("kind", string(env.Kind)).Msg("signal dropped")
		}
	default:
		metrics.ProtocolErrorsTotal.WithLabelValues("unknown_type").Inc()
		s.log.Warn().Str("type", string(m.Type)).Msg("unknown message type")
	}
}

func (s *Session) applyPresence(ev presence.Event) {
	next := s.tracker.Apply(ev)
	diff := domain.DiffRosters(s.roster, next)
	s.roster = next
	metrics.RosterSize.Set(float64(next.Count()))
	if diff.Empty() {
		return
	}
	s.log.Debug().Int("joined", len(diff.Joined)).Int("left", len(diff.Left)).Int("participants", next.Count()).Msg("roster changed")
	for _, id := range diff.Left {
		if id != s.opts.User {
			s.relay.ClosePeer(id)
			s.limiter.Forget(id)
		}
	}
	s.syncPeers()
}

// syncPeers offers to every online participant the local user is responsible for calling:
// those whose id sorts after the local one. The others are expected to call us.
func (s *Session) syncPeers() {
	if s.state != domain.Connected {
		return
	}
	for _, id := range s.roster.IDs() {
		if id == s.opts.User || !s.opts.User.Less(id) {
			continue
		}
		if ph, ok := s.relay.Phase(id); ok && ph != domain.PhaseIdle {
			continue
		}
		if err := s.relay.Initiate(id); err != nil {
			s.log.Warn().Err(err).Str("peer", string(id)).Msg("initiate failed")
		}
	}
}
