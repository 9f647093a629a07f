// Package conn owns the persistent connection of a meeting session: dialing,
// heartbeat, fixed-delay reconnection and the outbound send queue.
package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/domain"
	"github.com/dkeye/meetlink/internal/metrics"
	"github.com/dkeye/meetlink/internal/wire"
)

const (
	DefaultPingPeriod     = 30 * time.Second
	DefaultReconnectDelay = 3 * time.Second
	DefaultSendBuffer     = 64
	DefaultEventBuffer    = 256
	DefaultDrainTimeout   = time.Second
)

var (
	ErrBackpressure  = errors.New("backpressure")
	ErrNotConnected  = errors.New("not connected")
	ErrClosed        = errors.New("connection manager closed")
	ErrAlreadyActive = errors.New("connection manager already started")
)

type EventKind int

const (
	EventState EventKind = iota
	EventMessage
)

// Event is delivered on Events() in arrival order.
type Event struct {
	Kind    EventKind
	State   domain.ConnectionState
	Message wire.Message
}

type Options struct {
	Endpoint   string
	Credential string

	PingPeriod time.Duration
	// PongTimeout force-closes the connection when no pong follows a ping in time.
	// Zero disables the check.
	PongTimeout    time.Duration
	ReconnectDelay time.Duration
	SendBuffer     int
	EventBuffer    int
	DrainTimeout   time.Duration

	// NewTicker drives the heartbeat. Defaults to time.NewTicker.
	NewTicker func(d time.Duration) (<-chan time.Time, func())
}

func (o Options) withDefaults() Options {
	if o.PingPeriod <= 0 {
		o.PingPeriod = DefaultPingPeriod
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.NewTicker == nil {
		o.NewTicker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	return o
}

type Manager struct {
	dialer core.Dialer
	opts   Options
	events chan Event
	log    zerolog.Logger

	mu         sync.Mutex
	state      domain.ConnectionState
	out        chan []byte
	writerDone chan struct{}
	intent     *wire.Message
	started    bool
	closed     bool
	cancel     context.CancelFunc
	lastPong   time.Time

	wg conc.WaitGroup
}

func NewManager(dialer core.Dialer, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		dialer: dialer,
		opts:   opts,
		events: make(chan Event, opts.EventBuffer),
		log: log.With().
			Str("module", "conn").
			Str("endpoint", opts.Endpoint).
			Logger(),
	}
}

// Events is the single inbound stream of the session. It is closed by Close.
func (m *Manager) Events() <-chan Event { return m.events }

// Connect starts the dial/reconnect loop in the background and returns immediately.
// Progress is reported as EventState events.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyActive
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Go(func() { m.run(ctx) })
	return nil
}

func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool { return m.State() == domain.Connected }

// LastPong returns when the last pong was received.
func (m *Manager) LastPong() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPong
}

// Send serializes msg and transmits it if connected. While not connected the message is
// dropped with ErrNotConnected, except meeting_join/meeting_leave: the latest of those is
// the presence intent, sent once on every successful connect.
func (m *Manager) Send(msg wire.Message) error {
	b, err := msg.Encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if msg.Type.Presence() {
		m.intent = &msg
	}
	if m.out == nil {
		if msg.Type.Presence() {
			m.log.Debug().Str("type", string(msg.Type)).Msg("queued until connected")
			return nil
		}
		metrics.MessagesDroppedTotal.WithLabelValues(string(msg.Type), "disconnected").Inc()
		return ErrNotConnected
	}
	return m.trySendLocked(msg.Type, b)
}

func (m *Manager) trySendLocked(t wire.MessageType, b []byte) error {
	select {
	case m.out <- b:
		metrics.MessagesTotal.WithLabelValues(string(t), "out").Inc()
		return nil
	default:
		metrics.MessagesDroppedTotal.WithLabelValues(string(t), "backpressure").Inc()
		return ErrBackpressure
	}
}

// Close stops the heartbeat and any pending reconnect, flushes frames already accepted by
// Send, closes the connection and moves to Disconnected. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	out, writerDone, cancel := m.out, m.writerDone, m.cancel
	if out == nil && m.intent != nil {
		m.log.Warn().Str("type", string(m.intent.Type)).Msg("queued message dropped on close")
	}
	m.out = nil
	m.intent = nil
	m.mu.Unlock()

	if out != nil {
		close(out)
		select {
		case <-writerDone:
		case <-time.After(m.opts.DrainTimeout):
			m.log.Warn().Msg("drain timeout")
		}
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.setFinalState(domain.Disconnected)
	close(m.events)
	m.log.Info().Msg("connection manager closed")
}

func (m *Manager) run(ctx context.Context) {
	m.setState(ctx, domain.Connecting)
	for {
		stream, err := m.dialer.Dial(ctx, m.opts.Endpoint, m.opts.Credential)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.DialAttemptsTotal.WithLabelValues("error").Inc()
			m.log.Warn().Err(err).Dur("retry_in", m.opts.ReconnectDelay).Msg("dial failed")
		} else {
			metrics.DialAttemptsTotal.WithLabelValues("ok").Inc()
			m.serve(ctx, stream)
			if ctx.Err() != nil || m.isClosed() {
				return
			}
			metrics.ReconnectsTotal.Inc()
			m.log.Warn().Dur("retry_in", m.opts.ReconnectDelay).Msg("connection lost")
		}
		m.setState(ctx, domain.Reconnecting)
		if !sleep(ctx, m.opts.ReconnectDelay) {
			return
		}
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// serve runs one established connection until it fails or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, stream core.Stream) {
	connCtx, cancel := context.WithCancel(ctx)
	out := make(chan []byte, m.opts.SendBuffer)
	writerDone := make(chan struct{})
	readErr := make(chan error, 1)
	pongs := make(chan struct{}, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = stream.Close()
		return
	}
	m.out = out
	m.writerDone = writerDone
	intent := m.intent
	m.mu.Unlock()

	m.setState(ctx, domain.Connected)
	m.log.Info().Msg("connected")

	var pumps conc.WaitGroup
	pumps.Go(func() {
		defer close(writerDone)
		m.writePump(connCtx, stream, out)
	})
	pumps.Go(func() { readErr <- m.readPump(connCtx, stream, pongs) })

	if intent != nil {
		m.enqueue(out, *intent)
	}

	tick, stopTick := m.opts.NewTicker(m.opts.PingPeriod)
	var deadline <-chan time.Time
	var deadlineTimer *time.Timer

loop:
	for {
		select {
		case <-connCtx.Done():
			break loop
		case <-writerDone:
			break loop
		case err := <-readErr:
			m.log.Warn().Err(err).Msg("read failed")
			break loop
		case <-tick:
			if m.enqueue(out, wire.Ping()) {
				metrics.PingsSentTotal.Inc()
				if m.opts.PongTimeout > 0 && deadline == nil {
					deadlineTimer = time.NewTimer(m.opts.PongTimeout)
					deadline = deadlineTimer.C
				}
			}
		case <-pongs:
			if deadlineTimer != nil {
				deadlineTimer.Stop()
				deadline, deadlineTimer = nil, nil
			}
		case <-deadline:
			m.log.Warn().Dur("pong_timeout", m.opts.PongTimeout).Msg("no pong, dropping connection")
			break loop
		}
	}

	stopTick()
	if deadlineTimer != nil {
		deadlineTimer.Stop()
	}
	m.mu.Lock()
	if m.out == out {
		m.out = nil
	}
	m.mu.Unlock()
	cancel()
	_ = stream.Close()
	pumps.Wait()
}

// enqueue sends msg on out if out is still the live queue.
func (m *Manager) enqueue(out chan []byte, msg wire.Message) bool {
	b, err := msg.Encode()
	if err != nil {
		m.log.Error().Err(err).Str("type", string(msg.Type)).Msg("encode")
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.out != out || out == nil {
		return false
	}
	if err := m.trySendLocked(msg.Type, b); err != nil {
		m.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("enqueue")
		return false
	}
	return true
}

// setState records s and reports it on the event stream. The report blocks until the
// session takes it or ctx ends, so a slow reader never misses a transition.
func (m *Manager) setState(ctx context.Context, s domain.ConnectionState) {
	if !m.swapState(s) {
		return
	}
	select {
	case m.events <- Event{Kind: EventState, State: s}:
	case <-ctx.Done():
	}
}

// setFinalState reports s after every writer has stopped. Close may run on the reading
// goroutine, so it makes room by discarding the oldest event instead of blocking.
func (m *Manager) setFinalState(s domain.ConnectionState) {
	if !m.swapState(s) {
		return
	}
	ev := Event{Kind: EventState, State: s}
	for {
		select {
		case m.events <- ev:
			return
		default:
		}
		select {
		case old := <-m.events:
			m.log.Warn().Int("kind", int(old.Kind)).Msg("event buffer full, oldest event dropped")
		default:
		}
	}
}

func (m *Manager) swapState(s domain.ConnectionState) bool {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return false
	}
	prev := m.state
	m.state = s
	m.mu.Unlock()

	metrics.ConnectionState.Set(float64(s))
	m.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state")
	return true
}
