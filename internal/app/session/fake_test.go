package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/meetlink/internal/app/conn"
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

type fakeDialer struct {
	streams chan *fakeStream
}

func newFakeDialer() *fakeDialer { return &fakeDialer{streams: make(chan *fakeStream, 4)} }

func (d *fakeDialer) Dial(ctx context.Context, _, _ string) (core.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &fakeStream{
		in:      make(chan core.Frame, 16),
		written: make(chan core.Frame, 64),
		closed:  make(chan struct{}),
	}
	d.streams <- s
	return s, nil
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

func testOptions(d *fakeDialer) Options {
	return Options{
		Room:   "R1",
		User:   "u1",
		Dialer: d,
		Conn:   conn.Options{Endpoint: "ws://meet.test/ws", Credential: "t", ReconnectDelay: 5 * time.Millisecond},
	}
}

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Leave(context.Background()) })
	return s
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

func push(t *testing.T, s *fakeStream, msg wire.Message) {
	t.Helper()
	b, err := msg.Encode()
	require.NoError(t, err)
	s.in <- b
}

func presenceUpdate(t *testing.T, ids ...domain.UserID) wire.Message {
	t.Helper()
	ps := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		ps = append(ps, domain.Participant{UserID: id, Online: true})
	}
	m, err := wire.NewMessage(wire.TypePresenceUpdate, wire.PresencePayload{OnlineUsers: ps})
	require.NoError(t, err)
	return m
}

// joinConnected joins s and waits for the meeting_join sent on connect.
func joinConnected(t *testing.T, s *Session, d *fakeDialer) *fakeStream {
	t.Helper()
	require.NoError(t, s.Join(context.Background()))
	stream := d.next(t)
	require.Equal(t, wire.TypeMeetingJoin, nextWritten(t, stream).Type)
	require.Eventually(t, s.Connected, waitFor, time.Millisecond)
	return stream
}
