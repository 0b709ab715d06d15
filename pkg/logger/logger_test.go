package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf), WithFormat(FormatJSON)); err != nil {
		t.Fatalf("init: %v", err)
	}
	Named("trainer").Info(context.Background(), "epoch done",
		Int("epoch", 3), Float64("loss", 0.5), Bool("best", true), Duration("took", time.Second))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v: %s", err, buf.String())
	}
	if rec["msg"] != "epoch done" || rec["component"] != "trainer" || rec["best"] != true {
		t.Fatalf("unexpected record: %v", rec)
	}
	if src, _ := rec["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Fatalf("source should point at the caller, got %q", src)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx := context.Background()

	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level: %s", buf.String())
	}
	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	Get().Debug(ctx, "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug should be emitted: %s", buf.String())
	}
	if err := SetLevelString("loud"); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
}

func TestSetFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := SetFormat(FormatJSON); err != nil {
		t.Fatalf("set format: %v", err)
	}
	Get().Warn(context.Background(), "switched")
	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Fatalf("expected json after SetFormat: %s", buf.String())
	}
	if err := SetFormat("xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
