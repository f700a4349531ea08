package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway.  Values come from a YAML
// file and can be overridden by MUNAZAM_* environment variables.
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Policy    PolicyConfig    `yaml:"policy"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Rooms     []RoomConfig    `yaml:"rooms"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Env selects dev conveniences such as database seeding.
	Env string `yaml:"env"` // "dev" | "prod"
}

// NetworkConfig covers the two UDP listeners.
type NetworkConfig struct {
	DevicePort    int      `yaml:"device_port"`
	HeartbeatPort int      `yaml:"heartbeat_port"`
	BufferSize    int      `yaml:"buffer_size"`
	ReadTimeout   Duration `yaml:"read_timeout"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PolicyConfig holds the access-policy timing constants.
type PolicyConfig struct {
	RelockDelay   Duration `yaml:"relock_delay"`   // auto re-lock after a grant unlock
	GrantWindow   Duration `yaml:"grant_window"`   // post-reservation detection window
	GrantLifetime Duration `yaml:"grant_lifetime"` // unused grant expiry
}

type LivenessConfig struct {
	SweepInterval    Duration `yaml:"sweep_interval"`
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`
}

type SchedulerConfig struct {
	Tick Duration `yaml:"tick"`
}

type MeshConfig struct {
	TTL int `yaml:"ttl"`
}

// RoomConfig pairs a room's lock with its reservation-driven light.
type RoomConfig struct {
	Lock  string `yaml:"lock"`
	Light string `yaml:"light"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration so YAML values like "200ms" or "3s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration matching the deployed wire
// protocol: device traffic on 4210, heartbeats on 4220, and the timing
// constants of the access policy.
func Default() Config {
	return Config{
		Network: NetworkConfig{
			DevicePort:    4210,
			HeartbeatPort: 4220,
			BufferSize:    1024,
			ReadTimeout:   Duration(time.Second),
		},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "./data/munazam.db"},
		Policy: PolicyConfig{
			RelockDelay:   Duration(3 * time.Second),
			GrantWindow:   Duration(3 * time.Second),
			GrantLifetime: Duration(60 * time.Second),
		},
		Liveness: LivenessConfig{
			SweepInterval:    Duration(200 * time.Millisecond),
			HeartbeatTimeout: Duration(time.Second),
		},
		Scheduler: SchedulerConfig{Tick: Duration(time.Second)},
		Mesh:      MeshConfig{TTL: 3},
		Logging:   LoggingConfig{Level: "info"},
		Env:       "dev",
	}
}

// Load reads the YAML file at path (if it exists) over the defaults, then
// applies environment overrides.  A missing file is not an error so the
// gateway can run from defaults plus env alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getenvDefault("MUNAZAM_HTTP_ADDR", c.HTTP.Addr)
	c.Database.Path = getenvDefault("MUNAZAM_DB_PATH", c.Database.Path)
	c.Network.DevicePort = getenvInt("MUNAZAM_DEVICE_PORT", c.Network.DevicePort)
	c.Network.HeartbeatPort = getenvInt("MUNAZAM_HEARTBEAT_PORT", c.Network.HeartbeatPort)
	c.Logging.Level = getenvDefault("MUNAZAM_LOG_LEVEL", c.Logging.Level)

	if env := strings.ToLower(os.Getenv("MUNAZAM_ENV")); env != "" {
		c.Env = env
	}
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
}

func (c *Config) validate() error {
	if c.Network.DevicePort <= 0 || c.Network.DevicePort > 65535 {
		return fmt.Errorf("invalid device_port %d", c.Network.DevicePort)
	}
	if c.Network.HeartbeatPort <= 0 || c.Network.HeartbeatPort > 65535 {
		return fmt.Errorf("invalid heartbeat_port %d", c.Network.HeartbeatPort)
	}
	if c.Network.HeartbeatPort == c.Network.DevicePort {
		return fmt.Errorf("heartbeat_port must differ from device_port (both %d)", c.Network.DevicePort)
	}
	if c.Network.BufferSize <= 0 {
		c.Network.BufferSize = 1024
	}
	if c.Mesh.TTL <= 0 {
		c.Mesh.TTL = 3
	}
	for _, r := range c.Rooms {
		if strings.TrimSpace(r.Lock) == "" || strings.TrimSpace(r.Light) == "" {
			return fmt.Errorf("room pairing requires both lock and light (got lock=%q light=%q)", r.Lock, r.Light)
		}
	}
	return nil
}

// LockToLight returns the configured lock→light pairing as a map.
func (c *Config) LockToLight() map[string]string {
	m := make(map[string]string, len(c.Rooms))
	for _, r := range c.Rooms {
		m[r.Lock] = r.Light
	}
	return m
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
