// Package ws carries meeting frames over gorilla/websocket.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetlink/internal/core"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteWait        = 5 * time.Second
	DefaultReadLimit        = 32768

	InstanceHeader = "X-Client-Instance"
)

type Options struct {
	// Instance is sent as X-Client-Instance so the backend can tell reconnects apart.
	Instance         string
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	ReadLimit        int64
}

type Dialer struct {
	opts   Options
	dialer websocket.Dialer
}

func NewDialer(opts Options) *Dialer {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	return &Dialer{
		opts:   opts,
		dialer: websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
	}
}

// Dial opens a connection to endpoint with credential as bearer token.
func (d *Dialer) Dial(ctx context.Context, endpoint, credential string) (core.Stream, error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}
	if d.opts.Instance != "" {
		header.Set(InstanceHeader, d.opts.Instance)
	}

	conn, resp, err := d.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("dial %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	conn.SetReadLimit(d.opts.ReadLimit)
	log.Debug().Str("module", "ws").Str("endpoint", endpoint).Msg("dialed")
	return &Stream{conn: conn, writeWait: d.opts.WriteWait}, nil
}

// Stream is one websocket connection. Reads and writes may run concurrently with each
// other but not with themselves.
type Stream struct {
	conn      *websocket.Conn
	writeWait time.Duration
	once      sync.Once
}

func (s *Stream) ReadFrame() (core.Frame, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *Stream) WriteFrame(f core.Frame) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, f)
}

// Close sends a close frame and releases the connection. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
