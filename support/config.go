package support

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/project-flogo/flowwatch/model"
)

const (
	DefaultEngineURL    = "http://localhost:8000"
	DefaultPort         = 9090
	DefaultPollInterval = 2 * time.Second
	DefaultFetchTimeout = 10 * time.Second
	DefaultSessionTTL   = 30 * time.Minute
	DefaultHistoryLimit = 500
)

// Duration is a time.Duration that decodes from "2s" style strings or whole seconds
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		d.Duration = time.Duration(secs) * time.Second
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %v", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Poll    PollConfig    `toml:"poll"`
	Monitor MonitorConfig `toml:"monitor"`
	Redis   RedisConfig   `toml:"redis"`
}

type EngineConfig struct {
	BaseURL            string   `toml:"base_url"`
	Token              string   `toml:"token"`
	Timeout            Duration `toml:"timeout"`
	BreakerMaxFailures int      `toml:"breaker_max_failures"`
	BreakerTimeout     Duration `toml:"breaker_timeout"`
	RateLimit          float64  `toml:"rate_limit"`
	RateBurst          int      `toml:"rate_burst"`
}

type PollConfig struct {
	Interval     Duration `toml:"interval"`
	FetchTimeout Duration `toml:"fetch_timeout"`

	// InteractiveTypes are the task spec typenames surfaced as ready for input, matched exactly
	InteractiveTypes []string `toml:"interactive_types"`
}

type MonitorConfig struct {
	Port         int      `toml:"port"`
	SessionTTL   Duration `toml:"session_ttl"`
	Recording    string   `toml:"recording"`
	HistoryLimit int      `toml:"history_limit"`
}

// RedisConfig enables the Redis state recorder when Addr is set
type RedisConfig struct {
	Addr   string   `toml:"addr"`
	Prefix string   `toml:"prefix"`
	TTL    Duration `toml:"ttl"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			BaseURL:            DefaultEngineURL,
			Timeout:            Duration{10 * time.Second},
			BreakerMaxFailures: 5,
			BreakerTimeout:     Duration{30 * time.Second},
		},
		Poll: PollConfig{
			Interval:         Duration{DefaultPollInterval},
			FetchTimeout:     Duration{DefaultFetchTimeout},
			InteractiveTypes: []string{model.TypeUserTask, model.TypeManualTask},
		},
		Monitor: MonitorConfig{
			Port:         DefaultPort,
			SessionTTL:   Duration{DefaultSessionTTL},
			Recording:    "transitions",
			HistoryLimit: DefaultHistoryLimit,
		},
		Redis: RedisConfig{
			Prefix: "flowwatch",
			TTL:    Duration{24 * time.Hour},
		},
	}
}

// LoadConfig reads the TOML file at path over the defaults and applies the
// FLOWWATCH_* environment overrides. A missing file is not an error. An empty
// path falls back to FLOWWATCH_CONFIG.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	path = strings.TrimSpace(path)
	if path == "" {
		path, _ = lookupString(ConfigFile)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if len(strings.TrimSpace(string(data))) > 0 {
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config '%s': %v", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := lookupString(EnvEngineURL); ok {
		c.Engine.BaseURL = v
	}
	if v, ok := lookupString(EnvEngineToken); ok {
		c.Engine.Token = v
	}
	if v, ok := lookupDuration(EnvEngineTimeout); ok {
		c.Engine.Timeout = v
	}
	if v, ok := lookupInt(EnvBreakerMaxFailures); ok {
		c.Engine.BreakerMaxFailures = v
	}
	if v, ok := lookupDuration(EnvBreakerTimeout); ok {
		c.Engine.BreakerTimeout = v
	}
	if v, ok := lookupFloat(EnvRateLimit); ok {
		c.Engine.RateLimit = v
	}
	if v, ok := lookupInt(EnvRateBurst); ok {
		c.Engine.RateBurst = v
	}
	if v, ok := lookupDuration(EnvPollInterval); ok {
		c.Poll.Interval = v
	}
	if v, ok := lookupDuration(EnvFetchTimeout); ok {
		c.Poll.FetchTimeout = v
	}
	if v, ok := lookupStrings(EnvInteractiveTypes); ok {
		c.Poll.InteractiveTypes = v
	}
	if v, ok := lookupInt(EnvPort); ok {
		c.Monitor.Port = v
	}
	if v, ok := lookupDuration(EnvSessionTTL); ok {
		c.Monitor.SessionTTL = v
	}
	if v, ok := lookupString(EnvRecording); ok {
		c.Monitor.Recording = v
	}
	if v, ok := lookupInt(EnvHistoryLimit); ok {
		c.Monitor.HistoryLimit = v
	}
	if v, ok := lookupString(EnvRedisAddr); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookupString(EnvRedisPrefix); ok {
		c.Redis.Prefix = v
	}
	if v, ok := lookupDuration(EnvRedisTTL); ok {
		c.Redis.TTL = v
	}
}

// Validate checks the settings that have no usable fallback
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Engine.BaseURL) == "" {
		return errors.New("engine base url is required")
	}
	if c.Poll.Interval.Duration <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Poll.Interval)
	}
	if len(model.NewInteractiveTypes(c.Poll.InteractiveTypes...)) == 0 {
		return errors.New("at least one interactive task type is required")
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Monitor.Port)
	}
	return nil
}
