package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{raw: "", want: slog.LevelInfo},
		{raw: "debug", want: slog.LevelDebug},
		{raw: "WARNING", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
		{raw: "-4", want: slog.LevelDebug},
		{raw: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parse %q: expected error", tt.raw)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("parse %q: expected %v, got %v (%v)", tt.raw, tt.want, got, err)
		}
	}
}

func TestChooseLogLevelPrecedence(t *testing.T) {
	tests := []struct {
		flag, env, cfg string
		want           levelChoice
	}{
		{"debug", "error", "warn", levelChoice{raw: "debug", source: "flag"}},
		{"", "warn", "info", levelChoice{raw: "warn", source: "env"}},
		{" ", "", "error", levelChoice{raw: "error", source: "config"}},
		{"", "", "", levelChoice{source: "default"}},
	}
	for _, tt := range tests {
		if got := chooseLogLevel(tt.flag, tt.env, tt.cfg); got != tt.want {
			t.Fatalf("chooseLogLevel(%q, %q, %q) = %+v, want %+v", tt.flag, tt.env, tt.cfg, got, tt.want)
		}
	}
}

func TestConfigureLoggerForCLI(t *testing.T) {
	t.Setenv(logFormatEnvKey, "")

	t.Setenv(logLevelEnvKey, "invalid")
	if warning, err := configureLoggerForCLI("debug", "info", ""); err != nil || warning != "" {
		t.Fatalf("flag should win over invalid env, got warning=%q err=%v", warning, err)
	}

	t.Setenv(logLevelEnvKey, "")
	if _, err := configureLoggerForCLI("verbose", "info", ""); err == nil {
		t.Fatal("expected error for invalid flag")
	}

	t.Setenv(logLevelEnvKey, "verbose")
	warning, err := configureLoggerForCLI("", "info", "")
	if err != nil || !strings.Contains(warning, "defaulting to info") {
		t.Fatalf("expected env fallback warning, got warning=%q err=%v", warning, err)
	}

	t.Setenv(logLevelEnvKey, "")
	warning, err = configureLoggerForCLI("", "verbose", "")
	if err != nil || !strings.Contains(warning, "invalid log_level") {
		t.Fatalf("expected config fallback warning, got warning=%q err=%v", warning, err)
	}

	if _, err := configureLoggerForCLI("", "info", "xml"); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, slog.LevelInfo, logFormatJSON).Info("blob verified", "blob_id", "abc")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "blob verified" || entry["blob_id"] != "abc" {
		t.Fatalf("unexpected entry %v", entry)
	}

	buf.Reset()
	newLogger(&buf, slog.LevelWarn, logFormatText).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
}
