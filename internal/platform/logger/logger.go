package logger

import (
	"log/slog"
	"os"
)

// New returns the process wide structured logger. Services and handlers take
// it as a dependency rather than reaching for the default logger.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
