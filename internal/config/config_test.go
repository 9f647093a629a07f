package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	req.NoError(err)
	req.Equal("release", cfg.Mode)
	req.Equal("127.0.0.1:8089", cfg.ListenAddr)
	req.Equal(30*time.Second, cfg.PingPeriod)
	req.Zero(cfg.PongTimeout)
	req.Equal(3*time.Second, cfg.ReconnectDelay)
	req.Equal(int64(32768), cfg.ReadLimit)
	req.Equal(100, cfg.SignalRateLimit)
	req.Equal(time.Second, cfg.SignalRateInterval)
	req.Equal([]string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
	req.True(cfg.Media.Audio)
	req.ErrorIs(cfg.Validate(), ErrNoEndpoint)
}

func TestLoadFile_FileAndEnv(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	req.NoError(os.WriteFile(path, []byte(`
mode: debug
endpoint: wss://meet.example/ws
room: R1
user_id: u1
ping_period: 10s
media:
  video: false
`), 0o600))

	t.Setenv("MEETLINK_USER_ID", "u7")
	t.Setenv("MEETLINK_MEDIA_SCREEN", "false")

	cfg, err := LoadFile(path)
	req.NoError(err)
	req.Equal("debug", cfg.Mode)
	req.Equal("R1", cfg.Room)
	req.Equal("u7", cfg.UserID)
	req.Equal(10*time.Second, cfg.PingPeriod)
	req.False(cfg.Media.Video)
	req.False(cfg.Media.Screen)
	req.True(cfg.Media.Audio)
	req.NoError(cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	req.ErrorIs((&Config{Endpoint: "ws://x"}).Validate(), ErrNoRoom)
	req.ErrorIs((&Config{Endpoint: "ws://x", Room: "R1"}).Validate(), ErrNoUser)
}
