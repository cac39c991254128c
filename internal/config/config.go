package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxDatagram    int           `mapstructure:"max_datagram"`
	ErrorBackoff   time.Duration `mapstructure:"error_backoff"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	ErrorReplies   int           `mapstructure:"error_replies"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Mode    string `mapstructure:"mode"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type ClientConfig struct {
	ServerHost        string        `mapstructure:"server_host"`
	ServerPort        int           `mapstructure:"server_port"`
	LocalPort         int           `mapstructure:"local_port"`
	Name              string        `mapstructure:"name"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	PlaybackQueue     int           `mapstructure:"playback_queue"`
	SendQueue         int           `mapstructure:"send_queue"`
	Source            string        `mapstructure:"source"`
	Sink              string        `mapstructure:"sink"`
}

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
	Client ClientConfig `mapstructure:"client"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 12345)
	v.SetDefault("server.read_timeout", "1s")
	v.SetDefault("server.max_datagram", 4096)
	v.SetDefault("server.error_backoff", "1s")
	v.SetDefault("server.session_timeout", "60s")
	v.SetDefault("server.sweep_interval", "10s")
	v.SetDefault("server.error_replies", 0)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "voice-client.log")

	v.SetDefault("client.server_host", "localhost")
	v.SetDefault("client.server_port", 12345)
	v.SetDefault("client.local_port", 12346)
	v.SetDefault("client.name", "User")
	v.SetDefault("client.heartbeat_interval", "10s")
	v.SetDefault("client.handshake_timeout", "5s")
	v.SetDefault("client.playback_queue", 20)
	v.SetDefault("client.send_queue", 32)
	v.SetDefault("client.source", "tone")
	v.SetDefault("client.sink", "")
}

// Load reads defaults, then the config file, then VOICE_* environment
// variables, then any bound flags that were set on the command line. An
// empty path selects config/config.<CONFIG_ENV>.yaml, which may be absent.
// Bindings map config keys to flags.
func Load(path string, bindings map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, f := range bindings {
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	explicit := path != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Debug().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Debug().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func validPort(key string, p int, allowZero bool) error {
	if allowZero && p == 0 {
		return nil
	}
	if p < 1 || p > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", key, p)
	}
	return nil
}

func (c *Config) ValidateServer() error {
	s := c.Server
	if err := validPort("server.port", s.Port, true); err != nil {
		return err
	}
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive, got %s", s.ReadTimeout)
	}
	if s.MaxDatagram < 1 {
		return fmt.Errorf("server.max_datagram must be positive, got %d", s.MaxDatagram)
	}
	if s.ErrorBackoff < 0 {
		return fmt.Errorf("server.error_backoff must not be negative, got %s", s.ErrorBackoff)
	}
	if s.SessionTimeout < 0 {
		return fmt.Errorf("server.session_timeout must not be negative, got %s", s.SessionTimeout)
	}
	if s.SessionTimeout > 0 && s.SweepInterval <= 0 {
		return fmt.Errorf("server.sweep_interval must be positive when the sweep is enabled, got %s", s.SweepInterval)
	}
	if s.ErrorReplies < 0 {
		return fmt.Errorf("server.error_replies must not be negative, got %d", s.ErrorReplies)
	}
	switch c.HTTP.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("http.mode must be release, debug or test, got %q", c.HTTP.Mode)
	}
	return c.validateLog()
}

func (c *Config) ValidateClient() error {
	cl := c.Client
	if cl.ServerHost == "" {
		return errors.New("client.server_host must not be empty")
	}
	if err := validPort("client.server_port", cl.ServerPort, false); err != nil {
		return err
	}
	if err := validPort("client.local_port", cl.LocalPort, true); err != nil {
		return err
	}
	if cl.HeartbeatInterval <= 0 {
		return fmt.Errorf("client.heartbeat_interval must be positive, got %s", cl.HeartbeatInterval)
	}
	if cl.HandshakeTimeout <= 0 {
		return fmt.Errorf("client.handshake_timeout must be positive, got %s", cl.HandshakeTimeout)
	}
	if cl.PlaybackQueue < 1 {
		return fmt.Errorf("client.playback_queue must be positive, got %d", cl.PlaybackQueue)
	}
	if cl.SendQueue < 1 {
		return fmt.Errorf("client.send_queue must be positive, got %d", cl.SendQueue)
	}
	switch cl.Source {
	case "tone", "silence":
	default:
		return fmt.Errorf("client.source must be tone or silence, got %q", cl.Source)
	}
	return c.validateLog()
}

func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
