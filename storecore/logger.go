package storecore

import (
	"log/slog"
	"os"

	"github.com/shashiranjanraj/kashvi/config"
)

// DefaultLogger is used by any EntityConfig that doesn't set its own Logger
// (§4.10), so a consumer is never forced to wire logging before anything
// will run. Built the same way pkg/logger builds its package-level L: a
// slog.Logger over stdout, JSON in production and text otherwise.
var DefaultLogger = newDefaultLogger()

func newDefaultLogger() *slog.Logger {
	var level slog.Level
	env := config.AppEnv()
	switch env {
	case "production", "prod":
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if env == "production" || env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
