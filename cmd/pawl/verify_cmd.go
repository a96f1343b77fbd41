package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/pawl/pkg/config"
	"github.com/Mindburn-Labs/pawl/pkg/ledger"
	"github.com/Mindburn-Labs/pawl/pkg/store"
)

// runVerifyCmd replays the persisted chain and recomputes every hexstamp
// and linkage. Exit codes: 0 chain verified, 1 verification failed,
// 2 usage or read error.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output the result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: config: %v\n", err)
		return 2
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open %s store: %v\n", cfg.LedgerBackend, err)
		return 2
	}
	defer st.Close()

	led, err := ledger.Open(ctx, cfg.Genesis, st)
	if err != nil {
		if errors.Is(err, store.ErrIO) {
			fmt.Fprintf(stderr, "Error: read ledger: %v\n", err)
			return 2
		}
		return verifyVerdict(stdout, jsonOutput, 0, "", err)
	}

	if err := led.Verify(); err != nil {
		return verifyVerdict(stdout, jsonOutput, led.Len(), led.Head(), err)
	}
	return verifyVerdict(stdout, jsonOutput, led.Len(), led.Head(), nil)
}

func verifyVerdict(w io.Writer, asJSON bool, entries int, head string, cause error) int {
	ok := cause == nil

	if asJSON {
		out := map[string]any{"ok": ok, "entries": entries, "head": head}
		if cause != nil {
			out["error"] = cause.Error()
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Fprintln(w, string(data))
	} else if ok {
		fmt.Fprintf(w, "%sChain verified:%s %d entries, head %s\n", ColorBold+ColorGreen, ColorReset, entries, head)
	} else {
		fmt.Fprintf(w, "%sChain verification FAILED:%s %v\n", ColorBold+ColorRed, ColorReset, cause)
	}

	if ok {
		return 0
	}
	return 1
}
