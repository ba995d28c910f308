package log

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	prev := logger
	t.Cleanup(func() { logger = prev })

	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	return logs
}

func TestPackageLevelHelpers(t *testing.T) {
	logs := observe(t)

	Debug("debug message")
	Info("info message", zap.String("asset_id", "A1"))
	Warn("warn message")
	Error("error message")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, want := range wantLevels {
		if entries[i].Level != want {
			t.Errorf("entry %d level = %v, want %v", i, entries[i].Level, want)
		}
	}
	if got := entries[1].ContextMap()["asset_id"]; got != "A1" {
		t.Errorf("asset_id = %v, want A1", got)
	}
}

func TestNamedAndWith(t *testing.T) {
	logs := observe(t)

	Named("purge").With(zap.String("job_id", "purge-1")).Info("asset purge started")
	With(zap.Int("attempt", 2)).Warn("retrying")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].LoggerName != "purge" {
		t.Errorf("logger name = %q, want purge", entries[0].LoggerName)
	}
	if got := entries[0].ContextMap()["job_id"]; got != "purge-1" {
		t.Errorf("job_id = %v, want purge-1", got)
	}
	if entries[1].LoggerName != "" {
		t.Errorf("With logger name = %q, want empty", entries[1].LoggerName)
	}
	if got := entries[1].ContextMap()["attempt"]; got != int64(2) {
		t.Errorf("attempt = %v (%T), want 2", got, got)
	}
}

func TestLoggerFallsBackWithoutInit(t *testing.T) {
	prev := logger
	t.Cleanup(func() { logger = prev })
	logger = nil

	if Logger() == nil {
		t.Fatal("Logger() = nil, want fallback logger")
	}
}

func TestInit(t *testing.T) {
	prev := logger
	t.Cleanup(func() { logger = prev })

	for _, env := range []string{"development", "production"} {
		if err := Init(env); err != nil {
			t.Fatalf("Init(%q) error = %v", env, err)
		}
		if logger == nil {
			t.Fatalf("Init(%q) left logger nil", env)
		}
	}
}
