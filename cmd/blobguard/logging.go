package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"blobguard/internal/config"
)

var logLevelEnvKey = config.LogLevelEnvKey()

const (
	logFormatEnvKey = "BLOBGUARD_LOG_FORMAT"

	logFormatText = "text"
	logFormatJSON = "json"
)

// levelChoice records which layer supplied the log level.
type levelChoice struct {
	raw    string
	source string
}

// chooseLogLevel applies flag > env > config precedence.
func chooseLogLevel(flagLevel, envLevel, configLevel string) levelChoice {
	for _, c := range []levelChoice{
		{raw: flagLevel, source: "flag"},
		{raw: envLevel, source: "env"},
		{raw: configLevel, source: "config"},
	} {
		if strings.TrimSpace(c.raw) != "" {
			return c
		}
	}
	return levelChoice{source: "default"}
}

// configureLoggerForCLI installs the default logger. An invalid flag value is
// an error; invalid env or config values fall back to info with a warning.
func configureLoggerForCLI(flagLevel, configLevel, flagFormat string) (string, error) {
	format, err := chooseLogFormat(flagFormat, os.Getenv(logFormatEnvKey))
	if err != nil {
		return "", err
	}

	envLevel := os.Getenv(logLevelEnvKey)
	choice := chooseLogLevel(flagLevel, envLevel, configLevel)
	level, err := parseLogLevel(choice.raw)
	if err == nil {
		slog.SetDefault(newLogger(os.Stderr, level, format))
		return "", nil
	}

	var warning string
	switch choice.source {
	case "flag":
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	case "env":
		warning = fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel)
	case "config":
		warning = fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel)
	}
	slog.SetDefault(newLogger(os.Stderr, slog.LevelInfo, format))
	return warning, nil
}

func chooseLogFormat(flagFormat, envFormat string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(flagFormat))
	if value == "" {
		value = strings.ToLower(strings.TrimSpace(envFormat))
	}
	switch value {
	case "", logFormatText:
		return logFormatText, nil
	case logFormatJSON:
		return logFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected %s or %s)", value, logFormatText, logFormatJSON)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = config.DefaultLogLevel
	}
	if strings.EqualFold(value, "warning") {
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

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == logFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
