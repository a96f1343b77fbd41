package diagnostic

import (
	"context"
	"sync"
)

// Fake is an in-process Runner for tests. It records inputs and returns a
// canned verdict without touching wazero.
type Fake struct {
	mu      sync.Mutex
	Verdict Verdict
	Err     error

	Modules [][]byte
	Inputs  [][]byte
}

func (f *Fake) Run(ctx context.Context, module, input []byte) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	f.mu.Lock()
	f.Modules = append(f.Modules, append([]byte(nil), module...))
	f.Inputs = append(f.Inputs, append([]byte(nil), input...))
	f.mu.Unlock()
	if f.Err != nil {
		return Verdict{}, f.Err
	}
	return f.Verdict, nil
}

func (f *Fake) Close(ctx context.Context) error { return nil }
