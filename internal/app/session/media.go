package session

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/meetlink/internal/core"
	"github.com/dkeye/meetlink/internal/metrics"
)

// acquireMedia opens the configured microphone and camera concurrently. A device that
// cannot be opened is logged and skipped.
func (s *Session) acquireMedia(ctx context.Context) {
	if s.opts.Capture == nil {
		return
	}
	var mic, cam core.LocalTrack
	var wg conc.WaitGroup
	if s.opts.Media.Audio {
		wg.Go(func() { mic = s.acquire(ctx, core.CaptureMicrophone) })
	}
	if s.opts.Media.Video {
		wg.Go(func() { cam = s.acquire(ctx, core.CaptureCamera) })
	}
	wg.Wait()
	s.mic, s.cam = mic, cam
}

func (s *Session) acquire(ctx context.Context, kind core.CaptureKind) core.LocalTrack {
	t, err := s.opts.Capture.Acquire(ctx, kind)
	if err != nil {
		s.mediaFailed(&MediaError{Kind: kind, Err: err})
		return nil
	}
	s.log.Debug().Str("kind", string(kind)).Msg("track acquired")
	return t
}

func (s *Session) mediaFailed(err *MediaError) {
	metrics.MediaFailuresTotal.WithLabelValues(string(err.Kind)).Inc()
	s.log.Warn().Err(err).Msg("media unavailable")
}

// ToggleMute flips the microphone and returns whether it is now muted.
// The track stays attached; no renegotiation happens.
func (s *Session) ToggleMute() (bool, error) {
	var muted bool
	err := s.do(func() {
		s.muted = !s.muted
		if s.mic != nil {
			s.mic.SetEnabled(!s.muted)
		}
		muted = s.muted
	})
	return muted, err
}

// ToggleVideo flips the camera and returns whether it is now off.
func (s *Session) ToggleVideo() (bool, error) {
	var off bool
	err := s.do(func() {
		s.videoOff = !s.videoOff
		if s.cam != nil {
			s.cam.SetEnabled(!s.videoOff)
		}
		off = s.videoOff
	})
	return off, err
}

// ToggleScreenShare starts or stops sharing the screen and returns whether sharing is on.
// Starting acquires the screen outside the dispatch goroutine, then swaps the outgoing
// video track of every peer connection. Stopping restores the camera.
func (s *Session) ToggleScreenShare(ctx context.Context) (bool, error) {
	var sharing bool
	if err := s.do(func() { sharing = s.screen != nil }); err != nil {
		return false, err
	}
	if sharing {
		var stopErr error
		if err := s.do(func() { stopErr = s.stopScreenShare() }); err != nil {
			return false, err
		}
		return false, stopErr
	}

	if s.opts.Capture == nil {
		return false, &MediaError{Kind: core.CaptureScreen, Err: ErrNoCapture}
	}
	track, err := s.opts.Capture.Acquire(ctx, core.CaptureScreen)
	if err != nil {
		me := &MediaError{Kind: core.CaptureScreen, Err: err}
		s.mediaFailed(me)
		return false, me
	}
	var startErr error
	if err := s.do(func() { startErr = s.startScreenShare(track) }); err != nil {
		track.Stop()
		return false, err
	}
	if startErr != nil {
		return false, startErr
	}
	return true, nil
}

func (s *Session) startScreenShare(track core.LocalTrack) error {
	if s.screen != nil {
		track.Stop()
		return nil
	}
	if err := s.relay.ReplaceTrack(webrtc.RTPCodecTypeVideo, track.Track()); err != nil {
		if restoreErr := s.relay.ReplaceTrack(webrtc.RTPCodecTypeVideo, s.cameraTrack()); restoreErr != nil {
			s.log.Error().Err(restoreErr).Msg("camera restore failed")
		}
		track.Stop()
		me := &MediaError{Kind: core.CaptureScreen, Err: err}
		s.mediaFailed(me)
		return me
	}
	s.screen = track
	s.log.Info().Msg("screen share started")
	return nil
}

func (s *Session) stopScreenShare() error {
	if s.screen == nil {
		return nil
	}
	err := s.relay.ReplaceTrack(webrtc.RTPCodecTypeVideo, s.cameraTrack())
	s.screen.Stop()
	s.screen = nil
	s.log.Info().Msg("screen share stopped")
	if err != nil {
		return &MediaError{Kind: core.CaptureCamera, Err: err}
	}
	return nil
}

func (s *Session) cameraTrack() webrtc.TrackLocal {
	if s.cam == nil {
		return nil
	}
	return s.cam.Track()
}
