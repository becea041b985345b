package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"chunkvault/internal/config"
)

const (
	logLevelEnvKey = "CHUNKVAULT_LOG_LEVEL"
	serviceName    = "chunkvault"
)

// levelSource names where the active log level came from, as a user would
// spell it.
type levelSource string

const (
	levelFromFlag    levelSource = "--log-level"
	levelFromEnv     levelSource = logLevelEnvKey
	levelFromConfig  levelSource = "log_level"
	levelFromDefault levelSource = ""
)

// configureLoggerForCLI installs the default logger. An invalid flag is an
// error; an invalid env or config value falls back to the default level and
// returns a warning for stderr.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	raw, source := selectedLogLevel(flagLevel, os.Getenv(logLevelEnvKey), configLevel)
	level, err := parseLogLevel(raw)
	if err == nil {
		slog.SetDefault(newLogger(os.Stderr, level))
		return "", nil
	}
	if source == levelFromFlag {
		return "", fmt.Errorf("invalid --log-level %q (want debug, info, warn or error)", flagLevel)
	}

	fallback, _ := parseLogLevel("")
	slog.SetDefault(newLogger(os.Stderr, fallback))
	if source == levelFromDefault {
		return "", nil
	}
	return fmt.Sprintf("warning: invalid %s=%q, %s logging at %s", source, raw, serviceName, config.DefaultLogLevel), nil
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, levelSource) {
	switch {
	case strings.TrimSpace(flagLevel) != "":
		return flagLevel, levelFromFlag
	case strings.TrimSpace(envLevel) != "":
		return envLevel, levelFromEnv
	case strings.TrimSpace(configLevel) != "":
		return configLevel, levelFromConfig
	default:
		return "", levelFromDefault
	}
}

func configureDefaultLogger(rawLevel string) error {
	level, err := parseLogLevel(rawLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(os.Stderr, level))
	return nil
}

// parseLogLevel accepts slog level names, "warning", and numeric levels.
func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		value = config.DefaultLogLevel
	case "warning":
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// newLogger tags every record with the service name so gateway logs can be
// told apart when several processes share a sink.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})).With("service", serviceName)
}
