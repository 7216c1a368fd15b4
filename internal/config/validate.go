package config

import (
	"fmt"

	"github.com/rileyhilliard/sitrep/internal/errors"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but sitrep only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade sitrep or lower the version field")
	}

	if cfg.Interval < MinInterval {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("interval %s is too fast", cfg.Interval),
			fmt.Sprintf("Use %s or slower, e.g. interval: 3s", MinInterval))
	}

	if cfg.History.Window <= 0 && cfg.History.MaxTicks <= 0 {
		return errors.New(errors.ErrConfig,
			"history needs a window or a max_ticks bound",
			"Set history.window (e.g. 60s) or history.max_ticks (e.g. 20)")
	}

	if cfg.History.TopN < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("history.top_n must be at least 1, got %d", cfg.History.TopN),
			"Remove the key to use the default of 10")
	}

	if cfg.Disk.WarnFreePercent <= 0 || cfg.Disk.WarnFreePercent > 100 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("disk.warn_free_percent must be in (0, 100], got %g", cfg.Disk.WarnFreePercent),
			"Use a percentage like 10")
	}

	if cfg.Logs.ContainerCapacity < 1 || cfg.Logs.ServiceCapacity < 1 {
		return errors.New(errors.ErrConfig,
			"log buffer capacities must be at least 1",
			"Check logs.container_capacity and logs.service_capacity")
	}

	if cfg.Logs.Tail < 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("logs.tail can't be negative, got %d", cfg.Logs.Tail),
			"Use 0 to start streams with no history")
	}

	if cfg.Swarm.CLI == "" {
		return errors.New(errors.ErrConfig,
			"swarm.cli is empty",
			"Set it to the docker binary, e.g. swarm.cli: docker")
	}

	if cfg.Swarm.RecheckTicks < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("swarm.recheck_ticks must be at least 1, got %d", cfg.Swarm.RecheckTicks),
			"Remove the key to use the default of 10")
	}

	return nil
}
