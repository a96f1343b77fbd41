package diagnostic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var (
	// ErrTimeLimit marks a module that ran past its wall-clock budget.
	ErrTimeLimit = errors.New("diagnostic: time limit exceeded")
	// ErrMemoryLimit marks a module that tried to grow past its memory cap.
	ErrMemoryLimit = errors.New("diagnostic: memory limit exceeded")
	// ErrOutputLimit marks a module that wrote more than a verdict's worth.
	ErrOutputLimit = errors.New("diagnostic: output limit exceeded")
)

// OutputMaxBytes caps stdout+stderr per run. A verdict is a few hundred
// bytes; anything near the cap is a misbehaving module.
const OutputMaxBytes = 64 * 1024

// Runner executes one diagnostic module against one probe input.
type Runner interface {
	Run(ctx context.Context, module, input []byte) (Verdict, error)
	Close(ctx context.Context) error
}

// Config bounds a module run.
type Config struct {
	MemoryLimitBytes int64
	Timeout          time.Duration
}

// Host runs modules under wazero with WASI deny-by-default: no filesystem
// mounts, no network, no env vars, no host clock or randomness.
type Host struct {
	runtime wazero.Runtime
	cfg     Config
}

// NewHost builds the sandbox runtime with the configured memory ceiling.
func NewHost(ctx context.Context, cfg Config) (*Host, error) {
	rCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitBytes > 0 {
		pages := uint32(cfg.MemoryLimitBytes / 65536) // 64KB per page
		if pages == 0 {
			pages = 1
		}
		rCfg = rCfg.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, rCfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("diagnostic: instantiate wasi: %w", err)
	}
	return &Host{runtime: r, cfg: cfg}, nil
}

// Run compiles and executes a module. The probe input arrives on the
// module's stdin; the verdict is parsed from its stdout.
func (h *Host) Run(ctx context.Context, module, input []byte) (Verdict, error) {
	execCtx := ctx
	if h.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
	}

	compiled, err := h.runtime.CompileModule(execCtx, module)
	if err != nil {
		return Verdict{}, fmt.Errorf("diagnostic: compile module: %w", err)
	}
	defer func() { _ = compiled.Close(execCtx) }()

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := h.runtime.InstantiateModule(execCtx, compiled, modCfg)
	if err != nil {
		if execCtx.Err() != nil {
			return Verdict{}, fmt.Errorf("%w: after %v", ErrTimeLimit, h.cfg.Timeout)
		}
		if isMemoryError(err) {
			return Verdict{}, fmt.Errorf("%w: cap %d bytes", ErrMemoryLimit, h.cfg.MemoryLimitBytes)
		}
		return Verdict{}, fmt.Errorf("diagnostic: module run: %w", err)
	}
	defer func() { _ = mod.Close(execCtx) }()

	if stdout.Len()+stderr.Len() > OutputMaxBytes {
		return Verdict{}, fmt.Errorf("%w: %d bytes", ErrOutputLimit, stdout.Len()+stderr.Len())
	}

	return ParseVerdict(stdout.Bytes())
}

// Close shuts down the runtime and every module it compiled.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// isMemoryError recognizes wazero's memory.grow refusals.
func isMemoryError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "memory") &&
		(strings.Contains(msg, "limit") || strings.Contains(msg, "grow") || strings.Contains(msg, "exceeded"))
}
