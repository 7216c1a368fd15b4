package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, 3*time.Second, cfg.Interval)
	assert.Equal(t, 60*time.Second, cfg.History.Window)
	assert.Equal(t, 20, cfg.History.MaxTicks)
	assert.Equal(t, 10, cfg.History.TopN)
	assert.Equal(t, 10.0, cfg.Disk.WarnFreePercent)
	assert.Equal(t, 5000, cfg.Logs.ContainerCapacity)
	assert.Equal(t, 10000, cfg.Logs.ServiceCapacity)
	assert.Equal(t, 200, cfg.Logs.Tail)
	assert.Equal(t, 10*time.Second, cfg.Docker.Timeout)
	assert.Equal(t, "docker", cfg.Swarm.CLI)
	assert.Equal(t, 10, cfg.Swarm.RecheckTicks)
	assert.Empty(t, cfg.Metrics.Addr)

	require.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)

	content := `
version: 1
interval: 5s
history:
  window: 30s
  max_ticks: 8
disk:
  warn_free_percent: 15
logs:
  service_capacity: 2000
swarm:
  recheck_ticks: 4
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.History.Window)
	assert.Equal(t, 8, cfg.History.MaxTicks)
	assert.Equal(t, 15.0, cfg.Disk.WarnFreePercent)
	assert.Equal(t, 2000, cfg.Logs.ServiceCapacity)
	assert.Equal(t, 4, cfg.Swarm.RecheckTicks)

	// Untouched keys keep their defaults
	assert.Equal(t, 5000, cfg.Logs.ContainerCapacity)
	assert.Equal(t, 10, cfg.History.TopN)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Interval, cfg.Interval)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SITREP_INTERVAL", "7s")
	t.Setenv("SITREP_LOGS_TAIL", "50")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.Interval)
	assert.Equal(t, 50, cfg.Logs.Tail)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
	}{
		{name: "missing file", missing: true},
		{name: "bad yaml", content: "interval: [3s"},
		{name: "interval too fast", content: "interval: 100ms"},
		{name: "bad duration", content: "interval: soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ConfigFileName)
			if !tt.missing {
				require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			}

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"future version", func(c *Config) { c.Version = 99 }, "from the future"},
		{"fast interval", func(c *Config) { c.Interval = 10 * time.Millisecond }, "too fast"},
		{"min interval ok", func(c *Config) { c.Interval = MinInterval }, ""},
		{"no history bound", func(c *Config) { c.History.Window = 0; c.History.MaxTicks = 0 }, "history needs"},
		{"count bound only", func(c *Config) { c.History.Window = 0 }, ""},
		{"zero top n", func(c *Config) { c.History.TopN = 0 }, "top_n"},
		{"zero warn percent", func(c *Config) { c.Disk.WarnFreePercent = 0 }, "warn_free_percent"},
		{"warn percent over 100", func(c *Config) { c.Disk.WarnFreePercent = 101 }, "warn_free_percent"},
		{"zero capacity", func(c *Config) { c.Logs.ContainerCapacity = 0 }, "capacities"},
		{"negative tail", func(c *Config) { c.Logs.Tail = -1 }, "logs.tail"},
		{"empty cli", func(c *Config) { c.Swarm.CLI = "" }, "swarm.cli"},
		{"zero recheck", func(c *Config) { c.Swarm.RecheckTicks = 0 }, "recheck_ticks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFind(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: 1"), 0644))

		found, err := Find(path)
		require.NoError(t, err)
		assert.Equal(t, path, found)
	})

	t.Run("explicit path missing", func(t *testing.T) {
		_, err := Find(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("current directory", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("HOME", t.TempDir())
		require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("version: 1"), 0644))
		chdir(t, dir)

		found, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, ConfigFileName, filepath.Base(found))
	})

	t.Run("global config", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		chdir(t, t.TempDir())
		global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		require.NoError(t, os.MkdirAll(filepath.Dir(global), 0755))
		require.NoError(t, os.WriteFile(global, []byte("version: 1"), 0644))

		found, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, global, found)
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		chdir(t, t.TempDir())

		found, err := Find("")
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestExpandTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, "", ExpandTilde(""))
	assert.Equal(t, home, ExpandTilde("~"))
	assert.Equal(t, filepath.Join(home, "logs", "sitrep.log"), ExpandTilde("~/logs/sitrep.log"))
	assert.Equal(t, "/var/log/sitrep.log", ExpandTilde("/var/log/sitrep.log"))
	assert.Equal(t, "~other/x", ExpandTilde("~other/x"))
}

func TestWatch_EmptyPath(t *testing.T) {
	assert.NoError(t, Watch("", func(*Config, error) {}))
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "gone.yaml"), func(*Config, error) {})
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
