package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rileyhilliard/sitrep/internal/errors"
)

// Watch reloads the config at path whenever the file is written and hands the
// result to onChange. Invalid edits are reported through the error argument and
// the caller keeps its previous config. Watching stops when the process exits.
func Watch(path string, onChange func(*Config, error)) error {
	if path == "" {
		return nil
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file for watching",
			"Check the file exists and is valid YAML")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(parseConfig(v, path))
	})
	v.WatchConfig()
	return nil
}
