// Package media provides local tracks backed by pion sample tracks.
//
// Device capture is platform specific and lives outside this module; a Source hands out
// tracks that the application feeds with WriteSample. The microphone track sends Opus
// silence until something else writes to it, which keeps the RTP stream alive for peers.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetlink/internal/core"
)

var ErrUnavailable = errors.New("capture device unavailable")

// DefaultSilenceInterval matches the 20ms Opus frame below.
const DefaultSilenceInterval = 20 * time.Millisecond

// Opus frame encoding 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type Options struct {
	Audio  bool
	Video  bool
	Screen bool
	// StreamID groups the tracks of this client. Defaults to a random id.
	StreamID string
	// SilenceInterval paces the microphone keep-alive. Zero disables it.
	SilenceInterval time.Duration
}

type Source struct {
	opts Options
}

func NewSource(opts Options) *Source {
	if opts.StreamID == "" {
		opts.StreamID = uuid.NewString()
	}
	return &Source{opts: opts}
}

func (s *Source) enabled(kind core.CaptureKind) bool {
	switch kind {
	case core.CaptureMicrophone:
		return s.opts.Audio
	case core.CaptureCamera:
		return s.opts.Video
	case core.CaptureScreen:
		return s.opts.Screen
	}
	return false
}

func (s *Source) Acquire(ctx context.Context, kind core.CaptureKind) (core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.enabled(kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, kind)
	}

	mime := webrtc.MimeTypeVP8
	if kind == core.CaptureMicrophone {
		mime = webrtc.MimeTypeOpus
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		string(kind)+"-"+uuid.NewString()[:8],
		s.opts.StreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}

	t := &Track{kind: kind, track: track, done: make(chan struct{})}
	t.enabled.Store(true)
	if kind == core.CaptureMicrophone && s.opts.SilenceInterval > 0 {
		t.wg.Add(1)
		go t.keepAlive(s.opts.SilenceInterval)
	}
	log.Debug().Str("module", "media").Str("kind", string(kind)).Str("track_id", track.ID()).Msg("track acquired")
	return t, nil
}

// Track is a local sample track that can be muted in place.
type Track struct {
	kind    core.CaptureKind
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	dropped atomic.Uint64

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

func (t *Track) Kind() core.CaptureKind { return t.kind }

func (t *Track) Track() webrtc.TrackLocal { return t.track }

func (t *Track) SetEnabled(on bool) { t.enabled.Store(on) }

func (t *Track) Enabled() bool { return t.enabled.Load() }

// Dropped counts samples discarded while the track was disabled.
func (t *Track) Dropped() uint64 { return t.dropped.Load() }

// WriteSample forwards s to every bound peer. Samples are discarded while disabled
// or after Stop.
func (t *Track) WriteSample(s media.Sample) error {
	select {
	case <-t.done:
		return nil
	default:
	}
	if !t.enabled.Load() {
		t.dropped.Add(1)
		return nil
	}
	return t.track.WriteSample(s)
}

func (t *Track) Stop() {
	t.once.Do(func() {
		close(t.done)
		t.wg.Wait()
		log.Debug().Str("module", "media").Str("kind", string(t.kind)).Msg("track stopped")
	})
}

func (t *Track) keepAlive(every time.Duration) {
	defer t.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.WriteSample(media.Sample{Data: opusSilence, Duration: every}); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("silence write failed")
			}
		}
	}
}
