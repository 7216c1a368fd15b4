package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".sitrep.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/sitrep"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix is prepended to environment overrides, e.g. SITREP_INTERVAL=5s.
	EnvPrefix = "SITREP"
)

// Load reads config from the specified path. An empty path yields the defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Create "+ConfigFileName+" or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .sitrep.yaml in current directory
// 3. ~/.config/sitrep/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if home, _ := os.UserHomeDir(); home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault finds and loads the config, falling back to defaults when no
// file exists. Explicit paths that don't exist are still an error.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct and validates it.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "the environment"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the values in "+where)
	}

	cfg.LogFile = ExpandTilde(cfg.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key with viper so env overrides apply even
// when the key is missing from the file.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("interval", d.Interval.String())
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("history.window", d.History.Window.String())
	v.SetDefault("history.max_ticks", d.History.MaxTicks)
	v.SetDefault("history.top_n", d.History.TopN)
	v.SetDefault("disk.warn_free_percent", d.Disk.WarnFreePercent)
	v.SetDefault("logs.container_capacity", d.Logs.ContainerCapacity)
	v.SetDefault("logs.service_capacity", d.Logs.ServiceCapacity)
	v.SetDefault("logs.tail", d.Logs.Tail)
	v.SetDefault("docker.host", d.Docker.Host)
	v.SetDefault("docker.timeout", d.Docker.Timeout.String())
	v.SetDefault("swarm.cli", d.Swarm.CLI)
	v.SetDefault("swarm.recheck_ticks", d.Swarm.RecheckTicks)
	v.SetDefault("confirm.timeout", d.Confirm.Timeout.String())
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}
