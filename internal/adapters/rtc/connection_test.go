package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meetlink/internal/core"
)

func newTrack(t *testing.T, mime, id string) *webrtc.TrackLocalStaticSample {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "local")
	require.NoError(t, err)
	return track
}

func newPeer(t *testing.T, f *Factory, tracks ...webrtc.TrackLocal) core.MediaConnection {
	t.Helper()
	c, err := f.NewPeer("peer", tracks)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConfigFromURLs(t *testing.T) {
	req := require.New(t)
	req.Equal(DefaultWebRTCConfig(), ConfigFromURLs(nil))

	cfg := ConfigFromURLs([]string{"stun:a.example:3478", "turn:b.example:3478"})
	req.Len(cfg.ICEServers, 2)
	req.Equal([]string{"turn:b.example:3478"}, cfg.ICEServers[1].URLs)
}

func TestFactory_OfferAnswer(t *testing.T) {
	req := require.New(t)
	f, err := NewFactory(webrtc.Configuration{})
	req.NoError(err)

	a := newPeer(t, f, newTrack(t, webrtc.MimeTypeOpus, "mic"))
	b := newPeer(t, f)

	offer, err := a.CreateOffer()
	req.NoError(err)
	req.Equal(webrtc.SDPTypeOffer, offer.Type)
	req.Contains(offer.SDP, "m=audio")
	req.Contains(offer.SDP, "m=video")

	req.NoError(b.SetRemoteDescription(offer))
	answer, err := b.CreateAnswer()
	req.NoError(err)
	req.Equal(webrtc.SDPTypeAnswer, answer.Type)
	req.NoError(a.SetRemoteDescription(answer))
}

func TestConnection_RollbackAllowsAnswering(t *testing.T) {
	req := require.New(t)
	f, err := NewFactory(webrtc.Configuration{})
	req.NoError(err)

	a := newPeer(t, f)
	b := newPeer(t, f)

	_, err = a.CreateOffer()
	req.NoError(err)
	offer, err := b.CreateOffer()
	req.NoError(err)

	req.NoError(a.Rollback())
	req.NoError(a.SetRemoteDescription(offer))
	answer, err := a.CreateAnswer()
	req.NoError(err)
	req.NoError(b.SetRemoteDescription(answer))
}

func TestConnection_ReplaceTrack(t *testing.T) {
	req := require.New(t)
	f, err := NewFactory(webrtc.Configuration{})
	req.NoError(err)

	c := newPeer(t, f, newTrack(t, webrtc.MimeTypeVP8, "camera"))

	req.NoError(c.ReplaceTrack(webrtc.RTPCodecTypeVideo, newTrack(t, webrtc.MimeTypeVP8, "screen")))
	req.Error(c.ReplaceTrack(webrtc.RTPCodecTypeVideo, newTrack(t, webrtc.MimeTypeOpus, "mic")))
	req.NoError(c.ReplaceTrack(webrtc.RTPCodecTypeAudio, newTrack(t, webrtc.MimeTypeOpus, "mic")))
	req.NoError(c.ReplaceTrack(webrtc.RTPCodecTypeVideo, nil))
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	req := require.New(t)
	f, err := NewFactory(webrtc.Configuration{})
	req.NoError(err)

	c, err := f.NewPeer("peer", nil)
	req.NoError(err)
	req.NoError(c.Close())
	req.NoError(c.Close())
	req.Error(c.Rollback())
}
