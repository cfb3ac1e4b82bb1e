package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestConsoleHandlerRendersComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(&consoleHandler{writer: &buf, level: lvl})

	logger.Info("stage completed",
		String(FieldComponent, "pipeline"),
		String(FieldStage, "weld"),
		Int64("size_bytes", 1024),
	)

	out := buf.String()
	if !strings.Contains(out, "pipeline: stage completed") {
		t.Fatalf("expected component prefix in %q", out)
	}
	if !strings.Contains(out, "stage=weld") {
		t.Fatalf("expected stage field in %q", out)
	}
	if !strings.Contains(out, "size_bytes=1024") {
		t.Fatalf("expected size field in %q", out)
	}
}

func TestJSONHandlerShape(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl, false))

	logger.Warn("race fallback", String("reason", "all candidates failed"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json log line: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected warn level, got %v", payload["level"])
	}
	if payload["msg"] != "race fallback" {
		t.Fatalf("expected message, got %v", payload["msg"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestWithContextAddsRunFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	base := slog.New(&consoleHandler{writer: &buf, level: lvl})

	ctx := WithStage(WithRunID(context.Background(), "run-123"), "prune")
	WithContext(ctx, base).Info("stage started")

	out := buf.String()
	if !strings.Contains(out, "run_id=run-123") {
		t.Fatalf("expected run_id field in %q", out)
	}
	if !strings.Contains(out, "stage=prune") {
		t.Fatalf("expected stage field in %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNoopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("should not panic", Error(nil))
}
