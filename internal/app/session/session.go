// Package session is the public surface of one meeting. A Session owns the connection,
// the roster and the peer links of a room and reconciles them on a single dispatch
// goroutine. Facade methods post commands to that goroutine; views read published snapshots.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/meetlink/internal/app/conn"
	"github.com/dkeye/meetlink/internal/app/presence"
	"github.com/dkeye/meetlink/internal/app/signaling"
	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/domain"
	"github.com/dkeye/meetlink/internal/wire"
)

const (
	DefaultCommandBuffer = 256
	// DefaultLeaveTimeout bounds the leave announcement when the join context ends.
	DefaultLeaveTimeout = 5 * time.Second
)

type MediaOptions struct {
	Audio bool
	Video bool
}

type Options struct {
	Room     domain.RoomID
	User     domain.UserID
	Instance uuid.UUID

	Dialer  core.Dialer
	Conn    conn.Options
	API     core.MeetingAPI
	Capture core.CaptureSource
	Factory core.PeerFactory
	Media   MediaOptions

	MaxPendingCandidates int
	CommandBuffer        int

	// SignalRateLimit caps envelopes accepted from one peer per SignalRateInterval.
	// Zero disables the limit.
	SignalRateLimit    int
	SignalRateInterval time.Duration
}

// Status is an immutable view of the session.
type Status struct {
	Room          domain.RoomID          `json:"room"`
	User          domain.UserID          `json:"user_id"`
	Instance      string                 `json:"instance"`
	State         domain.ConnectionState `json:"state"`
	Participants  int                    `json:"participants"`
	Peers         int                    `json:"peers"`
	Audio         bool                   `json:"audio"`
	Video         bool                   `json:"video"`
	Muted         bool                   `json:"muted"`
	VideoOff      bool                   `json:"video_off"`
	ScreenSharing bool                   `json:"screen_sharing"`
	Left          bool                   `json:"left"`
}

type view struct {
	status Status
	roster domain.Roster
	peers  []domain.PeerInfo
}

type Session struct {
	opts Options
	log  zerolog.Logger

	conn    *conn.Manager
	tracker *presence.Tracker
	relay   *signaling.Relay
	limiter *signaling.PeerRateLimiter

	cmds      chan func()
	done      chan struct{}
	cancel    context.CancelFunc
	stopWatch func() bool
	wg        conc.WaitGroup

	// owned by the dispatch goroutine
	state    domain.ConnectionState
	roster   domain.Roster
	mic      core.LocalTrack
	cam      core.LocalTrack
	screen   core.LocalTrack
	muted    bool
	videoOff bool

	mu      sync.RWMutex
	joined  bool
	leaving bool
	left    bool
	view    view
}

func New(opts Options) (*Session, error) {
	if opts.Room == "" {
		return nil, domain.ErrRoomIDEmpty
	}
	if opts.User == "" {
		return nil, domain.ErrUserIDEmpty
	}
	if opts.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}
	if opts.Instance == uuid.Nil {
		opts.Instance = uuid.New()
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = DefaultCommandBuffer
	}

	s := &Session{
		opts:    opts,
		tracker: presence.NewTracker(),
		roster:  make(domain.Roster),
		cmds:    make(chan func(), opts.CommandBuffer),
		done:    make(chan struct{}),
		log: log.With().
			Str("module", "session").
			Str("room", string(opts.Room)).
			Str("user", string(opts.User)).
			Str("instance", opts.Instance.String()).
			Logger(),
	}
	s.conn = conn.NewManager(opts.Dialer, opts.Conn)
	s.limiter = signaling.NewPeerRateLimiter(opts.SignalRateLimit, opts.SignalRateInterval)
	s.relay = signaling.NewRelay(signaling.Options{
		Local:                opts.User,
		Factory:              opts.Factory,
		Send:                 s.sendSignal,
		Post:                 s.post,
		Tracks:               s.localTracks,
		MaxPendingCandidates: opts.MaxPendingCandidates,
	})
	s.publish()
	return s, nil
}

// Join seeds the roster, acquires local media and starts connecting. It returns once the
// dispatch goroutine runs; connection progress is visible through State and Status.
// The session ends on Leave or when ctx is cancelled; cancellation leaves the meeting the
// same way Leave does.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.leaving || s.left:
		s.mu.Unlock()
		return ErrLeft
	case s.joined:
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.joined = true
	s.mu.Unlock()

	s.log.Info().Msg("joining")
	s.seedRoster(ctx)
	s.acquireMedia(ctx)
	s.publish()

	// The announcement is replayed by the connection manager on every connect.
	if err := s.conn.Send(wire.Join(s.opts.User)); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	s.wg.Go(func() { s.loop(loopCtx) })
	if err := s.conn.Connect(loopCtx); err != nil {
		cancel()
		s.wg.Wait()
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), DefaultLeaveTimeout)
		defer cancel()
		_ = s.Leave(leaveCtx)
	})
	s.mu.Lock()
	s.stopWatch = stop
	s.mu.Unlock()
	return nil
}

// Leave announces the departure, closes the connection and releases every peer link and
// local track. Calling it again, or before Join, is a no-op; a call racing an ongoing
// Leave returns once that one is done.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	if s.leaving || s.left {
		joined := s.joined
		s.mu.Unlock()
		if joined {
			// Another Leave is in progress; wait until it finishes.
			select {
			case <-s.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	s.leaving = true
	joined, cancel, stopWatch := s.joined, s.cancel, s.stopWatch
	s.mu.Unlock()
	if stopWatch != nil {
		stopWatch()
	}

	if !joined {
		s.conn.Close()
		s.markLeft()
		return nil
	}

	if err := s.conn.Send(wire.Leave(s.opts.User)); err != nil {
		s.log.Debug().Err(err).Msg("meeting_leave not sent")
	}
	if s.opts.API != nil {
		if err := s.opts.API.Leave(ctx, s.opts.Room); err != nil {
			s.log.Warn().Err(err).Msg("leave acknowledgement failed")
		}
	}
	s.conn.Close()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("left")
	return nil
}

// Call starts the offer exchange with peer regardless of the initiation order.
func (s *Session) Call(peer domain.UserID) error {
	var err error
	if doErr := s.do(func() {
		if ph, ok := s.relay.Phase(peer); ok && ph != domain.PhaseIdle {
			err = signaling.ErrUnexpectedPhase
			return
		}
		err = s.relay.Initiate(peer)
	}); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) State() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.status.State
}

func (s *Session) Connected() bool { return s.State() == domain.Connected }

// Roster returns a copy of the current roster.
func (s *Session) Roster() domain.Roster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.roster.Clone()
}

func (s *Session) Peers() []domain.PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.PeerInfo(nil), s.view.peers...)
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.view.status
	st.Left = s.left
	return st
}

func (s *Session) seedRoster(ctx context.Context) {
	if s.opts.API == nil {
		return
	}
	ps, err := s.opts.API.Participants(ctx, s.opts.Room)
	if err != nil {
		s.log.Warn().Err(err).Msg("participant list unavailable")
		return
	}
	s.roster = s.tracker.Seed(ps)
	s.log.Debug().Int("participants", s.roster.Count()).Msg("roster seeded")
}

func (s *Session) sendSignal(env domain.SignalEnvelope) error {
	m, err := wire.SignalMessage(env)
	if err != nil {
		return err
	}
	return s.conn.Send(m)
}

// localTracks is what a new peer connection sends: microphone plus screen or camera.
func (s *Session) localTracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if s.mic != nil {
		out = append(out, s.mic.Track())
	}
	switch {
	case s.screen != nil:
		out = append(out, s.screen.Track())
	case s.cam != nil:
		out = append(out, s.cam.Track())
	}
	return out
}

func (s *Session) markLeft() {
	s.mu.Lock()
	s.left = true
	s.view.status.State = domain.Disconnected
	s.mu.Unlock()
}

// publish refreshes the snapshot read by the views. Dispatch goroutine only.
func (s *Session) publish() {
	roster := s.tracker.Snapshot()
	peers := s.relay.Peers()
	v := view{
		roster: roster,
		peers:  peers,
		status: Status{
			Room:          s.opts.Room,
			User:          s.opts.User,
			Instance:      s.opts.Instance.String(),
			State:         s.state,
			Participants:  roster.Count(),
			Peers:         len(peers),
			Audio:         s.mic != nil,
			Video:         s.cam != nil,
			Muted:         s.muted,
			VideoOff:      s.videoOff,
			ScreenSharing: s.screen != nil,
		},
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}
