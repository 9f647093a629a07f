package core

import "context"

// Frame is a raw text payload exchanged with the meeting backend.
type Frame []byte

// Stream abstracts one established duplex connection to the meeting backend.
// Owned by the adapter; the caller must Close() it.
type Stream interface {
	// ReadFrame blocks until the next inbound frame or an error.
	ReadFrame() (Frame, error)
	// WriteFrame transmits one frame. It must not be called concurrently.
	WriteFrame(Frame) error
	Close() error
}

// Dialer opens a Stream to endpoint, presenting credential during the handshake.
type Dialer interface {
	Dial(ctx context.Context, endpoint, credential string) (Stream, error)
}
