package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LevelFor maps the log.debug setting to a slog level.
func LevelFor(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// WatchLogLevel re-reads log.debug whenever config.toml changes and applies
// it to level. It is a no-op when no config file was loaded.
func WatchLogLevel(v *viper.Viper, level *slog.LevelVar, log *slog.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		next := LevelFor(v.GetBool("log.debug"))
		if next == level.Level() {
			return
		}

		level.Set(next)
		log.Info("log level changed",
			"level", next.String(),
			"file", e.Name,
		)
	})
	v.WatchConfig()
}
