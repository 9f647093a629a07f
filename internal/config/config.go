package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "MEETLINK"

var (
	ErrNoEndpoint = errors.New("endpoint not configured")
	ErrNoRoom     = errors.New("room not configured")
	ErrNoUser     = errors.New("user_id not configured")
)

type MediaConfig struct {
	Audio  bool `mapstructure:"audio"`
	Video  bool `mapstructure:"video"`
	Screen bool `mapstructure:"screen"`
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	LogLevel   string `mapstructure:"log_level"`
	ListenAddr string `mapstructure:"listen_addr"`

	Endpoint string `mapstructure:"endpoint"`
	APIBase  string `mapstructure:"api_base"`
	Room     string `mapstructure:"room"`
	UserID   string `mapstructure:"user_id"`
	Token    string `mapstructure:"token"`

	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	SendBuffer     int           `mapstructure:"send_buffer"`

	MaxPendingCandidates int           `mapstructure:"max_pending_candidates"`
	SignalRateLimit      int           `mapstructure:"signal_rate_limit"`
	SignalRateInterval   time.Duration `mapstructure:"signal_rate_interval"`
	ICEServers           []string      `mapstructure:"ice_servers"`

	Media MediaConfig `mapstructure:"media"`
}

// Validate reports the first missing setting needed to join a meeting.
func (c *Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return ErrNoEndpoint
	case c.Room == "":
		return ErrNoRoom
	case c.UserID == "":
		return ErrNoUser
	}
	return nil
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) with MEETLINK_ overrides.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit file. A missing file leaves the defaults in place.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addr", "127.0.0.1:8089")
	v.SetDefault("endpoint", "")
	v.SetDefault("api_base", "")
	v.SetDefault("room", "")
	v.SetDefault("user_id", "")
	v.SetDefault("token", "")
	v.SetDefault("ping_period", "30s")
	v.SetDefault("pong_timeout", "0s")
	v.SetDefault("reconnect_delay", "3s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 64)
	v.SetDefault("max_pending_candidates", 64)
	v.SetDefault("signal_rate_limit", 100)
	v.SetDefault("signal_rate_interval", "1s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("media.audio", true)
	v.SetDefault("media.video", true)
	v.SetDefault("media.screen", true)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Str("listen", cfg.ListenAddr).
		Str("room", cfg.Room).
		Msg("config ready")
	return &cfg, nil
}
