// Package config loads the tracker's YAML configuration and environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultTickInterval is used when a robot omits tick_interval_seconds.
const DefaultTickInterval = 500 * time.Millisecond

// Config is the full configuration surface, resolved once at startup.
type Config struct {
	Version   string          `yaml:"version"`
	Robots    []RobotConfig   `yaml:"robots"`
	Store     StoreConfig     `yaml:"store"`
	Transport TransportConfig `yaml:"transport"`
	Health    HealthConfig    `yaml:"health"`
}

// RobotConfig declares one robot's topology and pub/sub wiring.
type RobotConfig struct {
	ID                  string         `yaml:"id"`
	Topology            TopologyConfig `yaml:"topology"`
	InboundTopic        string         `yaml:"inbound_topic"`
	OutboundTopics      []string       `yaml:"outbound_topics"`
	TickIntervalSeconds float64        `yaml:"tick_interval_seconds"`
}

// TopologyConfig declares the arm geometry: ordered segment lengths, first
// entry shoulder-to-elbow, last entry elbow-to-gripper.
type TopologyConfig struct {
	JointLengths []float64 `yaml:"joint_lengths"`
}

// StoreConfig points at the shared state store.
type StoreConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

// TransportConfig points at the message broker.
type TransportConfig struct {
	URL string `yaml:"url"`
}

// HealthConfig configures the health/metrics HTTP listener.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// TickInterval returns the robot's tick interval as a duration, falling back
// to DefaultTickInterval when the field is omitted.
func (r RobotConfig) TickInterval() time.Duration {
	if r.TickIntervalSeconds == 0 {
		return DefaultTickInterval
	}
	return time.Duration(r.TickIntervalSeconds * float64(time.Second))
}

// LoadFile reads and validates the YAML configuration at path.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the invariants the tracker relies on: at least one robot,
// unique non-empty ids, positive joint lengths, a non-negative tick interval,
// and an inbound topic per robot.
func (c *Config) Validate() error {
	if len(c.Robots) == 0 {
		return fmt.Errorf("no robots configured")
	}
	seen := make(map[string]bool, len(c.Robots))
	for i, r := range c.Robots {
		if r.ID == "" {
			return fmt.Errorf("robot %d: empty id", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("robot %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if len(r.Topology.JointLengths) == 0 {
			return fmt.Errorf("robot %q: no joint lengths", r.ID)
		}
		for j, l := range r.Topology.JointLengths {
			if l <= 0 {
				return fmt.Errorf("robot %q: joint length %d must be > 0, got %v", r.ID, j, l)
			}
		}
		if r.InboundTopic == "" {
			return fmt.Errorf("robot %q: empty inbound_topic", r.ID)
		}
		if r.TickIntervalSeconds < 0 {
			return fmt.Errorf("robot %q: negative tick_interval_seconds", r.ID)
		}
	}
	return nil
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}
