package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Session struct {
		DebounceWindow  time.Duration `yaml:"debounce_window"`
		TeardownTimeout time.Duration `yaml:"teardown_timeout"`
	} `yaml:"session"`

	Signaling struct {
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		DialAttempts     int           `yaml:"dial_attempts"`
		PingInterval     time.Duration `yaml:"ping_interval"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
	} `yaml:"signaling"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Sweep struct {
		FormatTimeout   time.Duration `yaml:"format_timeout"`
		PollInterval    time.Duration `yaml:"poll_interval"`
		SettleDelay     time.Duration `yaml:"settle_delay"`
	} `yaml:"sweep"`

	Stats struct {
		SampleInterval time.Duration `yaml:"sample_interval"`
	} `yaml:"stats"`

	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`

	Capabilities struct {
		// Overrides let a deployment pretend a playback path is absent, to
		// exercise the dispatch fallback ladder.
		DisableAdaptiveLibrary bool `yaml:"disable_adaptive_library"`
		DisableAdaptiveNative  bool `yaml:"disable_adaptive_native"`
		DisablePeerToPeer      bool `yaml:"disable_peer_to_peer"`
		DisableMediaBuffering  bool `yaml:"disable_media_buffering"`
		DisableLegacyPush      bool `yaml:"disable_legacy_push"`
	} `yaml:"capabilities"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Session.DebounceWindow < 0 {
		return fmt.Errorf("session.debounce_window must be >= 0")
	}
	if c.Session.TeardownTimeout <= 0 {
		return fmt.Errorf("session.teardown_timeout must be > 0")
	}

	if c.Signaling.HandshakeTimeout <= 0 {
		return fmt.Errorf("signaling.handshake_timeout must be > 0")
	}
	if c.Signaling.DialAttempts <= 0 {
		return fmt.Errorf("signaling.dial_attempts must be > 0")
	}
	if c.Signaling.PingInterval <= 0 {
		return fmt.Errorf("signaling.ping_interval must be > 0")
	}
	if c.Signaling.WriteTimeout <= 0 {
		return fmt.Errorf("signaling.write_timeout must be > 0")
	}

	if c.Sweep.FormatTimeout <= 0 {
		return fmt.Errorf("sweep.format_timeout must be > 0")
	}
	if c.Sweep.PollInterval <= 0 {
		return fmt.Errorf("sweep.poll_interval must be > 0")
	}
	if c.Sweep.PollInterval > c.Sweep.FormatTimeout {
		return fmt.Errorf("sweep.poll_interval must be <= sweep.format_timeout")
	}
	if c.Sweep.SettleDelay < 0 {
		return fmt.Errorf("sweep.settle_delay must be >= 0")
	}

	if c.Stats.SampleInterval <= 0 {
		return fmt.Errorf("stats.sample_interval must be > 0")
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Session.DebounceWindow = 300 * time.Millisecond
	cfg.Session.TeardownTimeout = 5 * time.Second

	cfg.Signaling.HandshakeTimeout = 15 * time.Second
	cfg.Signaling.DialAttempts = 3
	cfg.Signaling.PingInterval = 30 * time.Second
	cfg.Signaling.WriteTimeout = 10 * time.Second

	cfg.Sweep.FormatTimeout = 10 * time.Second
	cfg.Sweep.PollInterval = 500 * time.Millisecond
	cfg.Sweep.SettleDelay = time.Second

	cfg.Stats.SampleInterval = 2 * time.Second

	cfg.Catalog.Path = "configs/catalog.yaml"

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Logging.Level = "info"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("LST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("LST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if path := os.Getenv("LST_CATALOG_PATH"); path != "" {
		c.Catalog.Path = path
	}
	if addr := os.Getenv("LST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
