package diagnostic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var (
	_ Runner = (*Host)(nil)
	_ Runner = (*Fake)(nil)
)

func TestNewHost_ConfigCaptured(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MemoryLimitBytes: 1 * 1024 * 1024,
		Timeout:          time.Second,
	}

	h, err := NewHost(ctx, cfg)
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	defer func() { _ = h.Close(ctx) }()

	if h.cfg.MemoryLimitBytes != 1*1024*1024 {
		t.Fatalf("expected 1MB memory limit, got %d", h.cfg.MemoryLimitBytes)
	}
	if h.cfg.Timeout != time.Second {
		t.Fatalf("expected 1s timeout, got %v", h.cfg.Timeout)
	}
}

func TestHost_RejectsGarbageModule(t *testing.T) {
	ctx := context.Background()
	h, err := NewHost(ctx, Config{MemoryLimitBytes: 8 * 1024 * 1024, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	defer func() { _ = h.Close(ctx) }()

	_, err = h.Run(ctx, []byte("not a wasm module"), []byte(`{"probe":"x"}`))
	if err == nil {
		t.Fatal("expected compile error for garbage module bytes")
	}
	if !strings.Contains(err.Error(), "compile") {
		t.Fatalf("expected compile failure, got: %v", err)
	}
}

func TestHost_Close(t *testing.T) {
	ctx := context.Background()
	h, err := NewHost(ctx, Config{MemoryLimitBytes: 8 * 1024 * 1024})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFake_RecordsRuns(t *testing.T) {
	f := &Fake{Verdict: Verdict{SubjectID: "subject-1", Lifeforce: 0.8, Oxygen: 0.7}}

	got, err := f.Run(context.Background(), []byte("module-a"), []byte("input-a"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.SubjectID != "subject-1" || got.Lifeforce != 0.8 {
		t.Fatalf("unexpected verdict: %+v", got)
	}
	if len(f.Inputs) != 1 || string(f.Inputs[0]) != "input-a" {
		t.Fatalf("input not recorded: %q", f.Inputs)
	}

	f.Err = errors.New("probe hardware offline")
	if _, err := f.Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected configured error")
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Run(canceled, nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
