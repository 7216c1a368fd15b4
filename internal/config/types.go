package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// MinInterval is the fastest sampling interval accepted.
const MinInterval = 500 * time.Millisecond

// Config represents the complete .sitrep.yaml configuration file.
type Config struct {
	Version  int           `yaml:"version" mapstructure:"version"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	LogFile  string        `yaml:"log_file" mapstructure:"log_file"`
	History  HistoryConfig `yaml:"history" mapstructure:"history"`
	Disk     DiskConfig    `yaml:"disk" mapstructure:"disk"`
	Logs     LogsConfig    `yaml:"logs" mapstructure:"logs"`
	Docker   DockerConfig  `yaml:"docker" mapstructure:"docker"`
	Swarm    SwarmConfig   `yaml:"swarm" mapstructure:"swarm"`
	Confirm  ConfirmConfig `yaml:"confirm" mapstructure:"confirm"`
	Metrics  MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// HistoryConfig bounds the rolling process history used for rankings.
type HistoryConfig struct {
	// Window is the maximum age of a history entry.
	Window time.Duration `yaml:"window" mapstructure:"window"`

	// MaxTicks caps the number of entries regardless of age.
	MaxTicks int `yaml:"max_ticks" mapstructure:"max_ticks"`

	// TopN is how many process groups the ranking returns.
	TopN int `yaml:"top_n" mapstructure:"top_n"`
}

// DiskConfig controls disk-space warnings.
type DiskConfig struct {
	// WarnFreePercent flags mounts whose free space drops below this percentage.
	WarnFreePercent float64 `yaml:"warn_free_percent" mapstructure:"warn_free_percent"`
}

// LogsConfig sizes the log buffers.
type LogsConfig struct {
	ContainerCapacity int `yaml:"container_capacity" mapstructure:"container_capacity"`
	ServiceCapacity   int `yaml:"service_capacity" mapstructure:"service_capacity"`

	// Tail is how many historical lines a new stream starts with.
	Tail int `yaml:"tail" mapstructure:"tail"`
}

// DockerConfig configures the container daemon connection.
type DockerConfig struct {
	// Host overrides DOCKER_HOST when set (e.g. unix:///var/run/docker.sock).
	Host string `yaml:"host" mapstructure:"host"`

	// Timeout is the grace period given to containers on stop/restart.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SwarmConfig configures the cluster CLI collaborator.
type SwarmConfig struct {
	// CLI is the docker binary used for swarm commands.
	CLI string `yaml:"cli" mapstructure:"cli"`

	// RecheckTicks is how many ticks pass between swarm membership checks.
	RecheckTicks int `yaml:"recheck_ticks" mapstructure:"recheck_ticks"`
}

// ConfirmConfig controls two-step confirmation of destructive actions.
type ConfirmConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MetricsConfig exposes sitrep's own prometheus metrics.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the endpoint.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Version:  CurrentConfigVersion,
		Interval: 3 * time.Second,
		History: HistoryConfig{
			Window:   60 * time.Second,
			MaxTicks: 20,
			TopN:     10,
		},
		Disk: DiskConfig{
			WarnFreePercent: 10,
		},
		Logs: LogsConfig{
			ContainerCapacity: 5000,
			ServiceCapacity:   10000,
			Tail:              200,
		},
		Docker: DockerConfig{
			Timeout: 10 * time.Second,
		},
		Swarm: SwarmConfig{
			CLI:          "docker",
			RecheckTicks: 10,
		},
		Confirm: ConfirmConfig{
			Timeout: 5 * time.Second,
		},
	}
}
