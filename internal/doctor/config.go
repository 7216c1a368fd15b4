package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/sitrep/internal/config"
	"github.com/rileyhilliard/sitrep/internal/errors"
)

// ConfigFileCheck reports which config file is in effect. Running on
// defaults is fine, so a missing file only passes with a note.
type ConfigFileCheck struct {
	ConfigPath string // Explicit path, or empty to search
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return CategoryConfig }

func (c *ConfigFileCheck) Run(context.Context) CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return fail(c.Name(), errors.OneLine(err),
			"Fix the --config path or remove the flag to use the search order")
	}
	if path == "" {
		return pass(c.Name(), "No config file, using defaults")
	}
	return pass(c.Name(), "Config file: "+path)
}

// ConfigSchemaCheck loads and validates the config in effect.
type ConfigSchemaCheck struct {
	ConfigPath string
}

func (c *ConfigSchemaCheck) Name() string     { return "config_schema" }
func (c *ConfigSchemaCheck) Category() string { return CategoryConfig }

func (c *ConfigSchemaCheck) Run(context.Context) CheckResult {
	cfg, path, err := config.LoadOrDefault(c.ConfigPath)
	if err != nil {
		return fail(c.Name(), "Config doesn't load: "+errors.OneLine(err),
			"Check the YAML syntax and the values it names")
	}
	if path == "" {
		return pass(c.Name(), "Defaults valid")
	}
	return pass(c.Name(), fmt.Sprintf("Config valid (interval %s, history %s / %d ticks)",
		cfg.Interval, cfg.History.Window, cfg.History.MaxTicks))
}

// NewConfigChecks creates all config-related checks.
func NewConfigChecks(configPath string) []Check {
	return []Check{
		&ConfigFileCheck{ConfigPath: configPath},
		&ConfigSchemaCheck{ConfigPath: configPath},
	}
}
