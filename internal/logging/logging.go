// Package logging builds the operational slog.Logger for the binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Environments accepted by Setup.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Setup returns a logger for env writing to w: a colored console handler
// for local, JSON for dev and prod. An empty level means debug for local
// and dev, info for prod.
func Setup(env, level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level, env)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch env {
	case EnvLocal, "":
		return slog.New(NewPrettyHandler(w, opts)), nil
	case EnvDev, EnvProd:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log environment %q", env)
	}
}

// ParseLevel parses a level name, defaulting by environment when empty.
func ParseLevel(level, env string) (slog.Level, error) {
	if level == "" {
		if env == EnvProd {
			return slog.LevelInfo, nil
		}
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Err is the attribute used for logging errors.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
