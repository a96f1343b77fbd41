package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/config"
	"github.com/Mindburn-Labs/pawl/pkg/ledger"
	"github.com/Mindburn-Labs/pawl/pkg/store"
)

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

// runDoctorCmd checks configuration and storage without mutating either.
// Exit codes: 0 all checks pass (warnings allowed), 1 any check fails,
// 2 usage error.
func runDoctorCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("doctor", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var results []checkResult
	allOK := true
	fail := func(name, detail string) {
		results = append(results, checkResult{Name: name, Status: "fail", Detail: detail})
		allOK = false
	}
	ok := func(name, detail string) {
		results = append(results, checkResult{Name: name, Status: "ok", Detail: detail})
	}
	warn := func(name, detail string) {
		results = append(results, checkResult{Name: name, Status: "warn", Detail: detail})
	}

	ok("go_runtime", fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH))

	cfg, err := config.Load()
	if err != nil {
		fail("config", err.Error())
		printDoctorReport(stdout, results, allOK)
		return 1
	}
	ok("config", fmt.Sprintf("backend=%s port=%s quorum=%d ceiling=%.2f reversal=%t",
		cfg.LedgerBackend, cfg.Port, cfg.RegulatorQuorum, cfg.RoHCeiling, cfg.AllowNeuromorphReversal))

	if _, err := os.Stat(cfg.DataDir); err != nil {
		warn("data_dir", fmt.Sprintf("%s does not exist (created on first run)", cfg.DataDir))
	} else {
		ok("data_dir", cfg.DataDir)
	}

	checkChain := false
	switch cfg.LedgerBackend {
	case config.BackendJSONL, config.BackendSQLite:
		if _, err := os.Stat(cfg.LedgerPath); err != nil {
			warn("ledger_storage", fmt.Sprintf("%s does not exist (created on first append)", cfg.LedgerPath))
		} else {
			ok("ledger_storage", cfg.LedgerPath)
			checkChain = true
		}
	case config.BackendPostgres:
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		ps, err := store.OpenPostgres(pingCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			fail("ledger_storage", fmt.Sprintf("postgres unreachable: %v", err))
		} else {
			_ = ps.Close()
			ok("ledger_storage", "postgres reachable")
			checkChain = true
		}
	}

	if checkChain {
		ctx := context.Background()
		st, err := openStore(ctx, cfg)
		if err != nil {
			fail("chain", err.Error())
		} else {
			led, err := ledger.Open(ctx, cfg.Genesis, st)
			_ = st.Close()
			if err != nil {
				fail("chain", err.Error())
			} else {
				ok("chain", fmt.Sprintf("%d entries, head %s", led.Len(), led.Head()))
			}
		}
	}

	profiles, err := config.LoadAllProfiles(cfg.ProfilesDir)
	switch {
	case err != nil:
		fail("profiles", err.Error())
	case len(profiles) == 0:
		warn("profiles", fmt.Sprintf("no deployment profiles under %s", cfg.ProfilesDir))
	default:
		ok("profiles", fmt.Sprintf("%d profile(s)", len(profiles)))
	}

	if _, err := os.Stat(filepath.Join(cfg.DataDir, "signing.key")); err != nil {
		warn("signing_key", "not present (generated on first export)")
	} else {
		ok("signing_key", filepath.Join(cfg.DataDir, "signing.key"))
	}

	printDoctorReport(stdout, results, allOK)
	if allOK {
		return 0
	}
	return 1
}

func printDoctorReport(w io.Writer, results []checkResult, allOK bool) {
	fmt.Fprintf(w, "\n%spawl doctor%s\n", ColorBold+ColorPurple, ColorReset)
	fmt.Fprintln(w, "───────────")
	for _, r := range results {
		icon := "✅"
		if r.Status == "warn" {
			icon = "⚠️ "
		} else if r.Status == "fail" {
			icon = "❌"
		}
		fmt.Fprintf(w, "  %s  %-16s %s%s%s\n", icon, r.Name, ColorGray, r.Detail, ColorReset)
	}
	if allOK {
		fmt.Fprintf(w, "\n%sAll checks passed.%s\n", ColorGreen+ColorBold, ColorReset)
	} else {
		fmt.Fprintf(w, "\n%sSome checks failed.%s\n", ColorRed+ColorBold, ColorReset)
	}
}
