package conn

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/domain"
	"github.com/dkeye/meetlink/internal/wire"
)

const waitFor = 2 * time.Second

type fakeStream struct {
	in      chan core.Frame
	written chan core.Frame
	closed  chan struct{}
	once    sync.Once
}

func newFakeStream(writeBuffer int) *fakeStream {
	return &fakeStream{
		in:      make(chan core.Frame, 16),
		written: make(chan core.Frame, writeBuffer),
		closed:  make(chan struct{}),
	}
}

func (s *fakeStream) ReadFrame() (core.Frame, error) {
	select {
	case f := <-s.in:
		return f, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeStream) WriteFrame(f core.Frame) error {
	select {
	case s.written <- f:
		return nil
	case <-s.closed:
		return io.ErrClosedPipe
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu          sync.Mutex
	failures    int
	attempts    int
	writeBuffer int
	credentials []string
	streams     chan *fakeStream
}

func newFakeDialer(failures int) *fakeDialer {
	return &fakeDialer{failures: failures, writeBuffer: 64, streams: make(chan *fakeStream, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, _, credential string) (core.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.attempts++
	d.credentials = append(d.credentials, credential)
	fail := d.attempts <= d.failures
	d.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	s := newFakeStream(d.writeBuffer)
	d.streams <- s
	return s, nil
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-d.streams:
		return s
	case <-time.After(waitFor):
		t.Fatal("no stream dialed")
		return nil
	}
}

type manualTicker struct {
	c       chan time.Time
	stopped atomic.Int32
}

func newManualTicker() *manualTicker { return &manualTicker{c: make(chan time.Time)} }

func (t *manualTicker) New(time.Duration) (<-chan time.Time, func()) {
	return t.c, func() { t.stopped.Add(1) }
}

func (t *manualTicker) tick(tb testing.TB) {
	tb.Helper()
	select {
	case t.c <- time.Now():
	case <-time.After(waitFor):
		tb.Fatal("heartbeat loop not ticking")
	}
}

func nextEvent(t *testing.T, m *Manager) Event {
	t.Helper()
	select {
	case ev, ok := <-m.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

// waitState consumes events until want is seen and returns the states observed on the way.
func waitState(t *testing.T, m *Manager, want domain.ConnectionState) []domain.ConnectionState {
	t.Helper()
	var seen []domain.ConnectionState
	for {
		ev := nextEvent(t, m)
		if ev.Kind != EventState {
			continue
		}
		seen = append(seen, ev.State)
		if ev.State == want {
			return seen
		}
	}
}

func nextWritten(t *testing.T, s *fakeStream) wire.Message {
	t.Helper()
	select {
	case f := <-s.written:
		msg, err := wire.Decode(f)
		require.NoError(t, err)
		return msg
	case <-time.After(waitFor):
		t.Fatal("nothing written")
		return wire.Message{}
	}
}

func requireNothingWritten(t *testing.T, s *fakeStream) {
	t.Helper()
	select {
	case f := <-s.written:
		t.Fatalf("unexpected frame %s", f)
	case <-time.After(30 * time.Millisecond):
	}
}
