// Package config loads ws3ds settings from a YAML file and the environment.
//
// Priority: command-line flag > environment variable > file > default.
// Flags are applied by the binaries after Load.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/ws3ds/ws3ds-go/internal/logging"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "WS3DS_CONFIG"

// Resolver modes.
const (
	ResolverAuto      = "auto"
	ResolverICE       = "ice"
	ResolverInterface = "interface"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full ws3ds configuration.
type Config struct {
	Env      string `yaml:"env" env:"WS3DS_ENV" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"WS3DS_LOG_LEVEL"`

	Discovery Discovery `yaml:"discovery"`
	Session   Session   `yaml:"session"`
	Transport Transport `yaml:"transport"`
	HTTP      HTTP      `yaml:"http"`
	Trace     Trace     `yaml:"trace"`
}

// Discovery configures how the device is found.
type Discovery struct {
	// Host skips the subnet scan and dials this host only.
	Host string `yaml:"host" env:"WS3DS_HOST"`

	// LocalIP overrides local address resolution.
	LocalIP string `yaml:"local_ip" env:"WS3DS_LOCAL_IP"`

	Port         uint16        `yaml:"port" env:"WS3DS_PORT" env-default:"5050"`
	Resolver     string        `yaml:"resolver" env:"WS3DS_RESOLVER" env-default:"auto"`
	Interface    string        `yaml:"interface" env:"WS3DS_INTERFACE"`
	ResolveGrace time.Duration `yaml:"resolve_grace" env:"WS3DS_RESOLVE_GRACE" env-default:"1s"`
	MDNS         bool          `yaml:"mdns" env:"WS3DS_MDNS"`
	MDNSTimeout  time.Duration `yaml:"mdns_timeout" env:"WS3DS_MDNS_TIMEOUT" env-default:"500ms"`
}

// Session configures the search lifecycle.
type Session struct {
	SearchTimeout   time.Duration `yaml:"search_timeout" env:"WS3DS_SEARCH_TIMEOUT" env-default:"60s"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"WS3DS_RETRY_DELAY" env-default:"10ms"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay" env:"WS3DS_RETRY_MAX_DELAY" env-default:"10ms"`
	RetryMultiplier float64       `yaml:"retry_multiplier" env:"WS3DS_RETRY_MULTIPLIER" env-default:"1"`
}

// Transport configures the WebSocket client.
type Transport struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"WS3DS_HANDSHAKE_TIMEOUT" env-default:"5s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"WS3DS_WRITE_TIMEOUT" env-default:"10s"`
	MaxMessageSize   int64         `yaml:"max_message_size" env:"WS3DS_MAX_MESSAGE_SIZE" env-default:"1048576"`
}

// HTTP configures the control surface served by `ws3ds serve`.
type HTTP struct {
	Addr            string        `yaml:"addr" env:"WS3DS_HTTP_ADDR" env-default:"127.0.0.1:8035"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"WS3DS_HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// Trace configures discovery trace capture.
type Trace struct {
	// File receives CBOR events when set.
	File string `yaml:"file" env:"WS3DS_TRACE_FILE"`

	// Console mirrors events to the operational log at debug level.
	Console bool `yaml:"console" env:"WS3DS_TRACE_CONSOLE"`
}

// Load reads path (when non-empty) and the environment, then validates.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("reading environment: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("cannot load config: " + err.Error())
	}
	return cfg
}

// Path returns flagValue, or the PathEnv environment variable when empty.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(PathEnv)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Env {
	case logging.EnvLocal, logging.EnvDev, logging.EnvProd:
	default:
		add("env %q (want local, dev or prod)", c.Env)
	}
	if _, err := logging.ParseLevel(c.LogLevel, c.Env); err != nil {
		add("log_level: %v", err)
	}

	d := c.Discovery
	if d.Port == 0 {
		add("discovery.port must be set")
	}
	switch d.Resolver {
	case ResolverAuto, ResolverICE, ResolverInterface:
	default:
		add("discovery.resolver %q (want auto, ice or interface)", d.Resolver)
	}
	if d.LocalIP != "" {
		if ip := net.ParseIP(d.LocalIP); ip == nil || ip.To4() == nil {
			add("discovery.local_ip %q is not an IPv4 address", d.LocalIP)
		}
	}
	if d.ResolveGrace <= 0 {
		add("discovery.resolve_grace must be positive")
	}

	s := c.Session
	if s.SearchTimeout <= 0 {
		add("session.search_timeout must be positive")
	}
	if s.RetryDelay <= 0 {
		add("session.retry_delay must be positive")
	}
	if s.RetryMaxDelay < s.RetryDelay {
		add("session.retry_max_delay %s is below retry_delay %s", s.RetryMaxDelay, s.RetryDelay)
	}
	if s.RetryMultiplier < 1 {
		add("session.retry_multiplier must be at least 1")
	}

	if c.Transport.HandshakeTimeout <= 0 {
		add("transport.handshake_timeout must be positive")
	}
	if c.Transport.MaxMessageSize <= 0 {
		add("transport.max_message_size must be positive")
	}
	return errs
}

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
