package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"tierstore/internal/config"
)

const (
	logLevelEnvKey  = "TIERSTORE_LOG_LEVEL"
	logFormatEnvKey = "TIERSTORE_LOG_FORMAT"
)

// levelChoice is the raw level picked from flag, env or config, with where it
// came from.
type levelChoice struct {
	raw    string
	source string
}

func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	choice := selectLogLevel(flagLevel, envLevel, configLevel)
	handler := os.Getenv(logFormatEnvKey)

	level, err := parseLogLevel(choice.raw)
	if err == nil {
		slog.SetDefault(newLogger(os.Stderr, level, handler))
		return "", nil
	}

	if choice.source == "flag" {
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	}
	fallback, _ := parseLogLevel("")
	slog.SetDefault(newLogger(os.Stderr, fallback, handler))
	switch choice.source {
	case "env":
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
	case "config":
		return fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
	}
	return "", nil
}

func selectLogLevel(flagLevel, envLevel, configLevel string) levelChoice {
	for _, candidate := range []levelChoice{
		{raw: flagLevel, source: "flag"},
		{raw: envLevel, source: "env"},
		{raw: configLevel, source: "config"},
	} {
		if strings.TrimSpace(candidate.raw) != "" {
			return candidate
		}
	}
	return levelChoice{source: "default"}
}

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

// newLogger writes text records unless format is "json".
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
