package session

import (
	"errors"
	"fmt"

	"github.com/dkeye/meetlink/internal/core"
)

var (
	ErrNotJoined     = errors.New("session not joined")
	ErrAlreadyJoined = errors.New("session already joined")
	ErrLeft          = errors.New("session left")
	ErrNoCapture     = errors.New("no capture source configured")
)

// MediaError reports a failed capture or track operation. The session keeps running without
// the track.
type MediaError struct {
	Kind core.CaptureKind
	Err  error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media %s: %v", e.Kind, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }
