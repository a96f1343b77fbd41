package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/pawl/pkg/audit"
	"github.com/Mindburn-Labs/pawl/pkg/config"
	"github.com/Mindburn-Labs/pawl/pkg/ledger"
)

// runExportCmd generates a signed evidence pack for one subject: its
// ledger slice, a manifest, and an ed25519 signature from the
// subject-derived key. The pack lands in the configured archive.
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		subjectID  string
		jsonOutput bool
	)
	cmd.StringVar(&subjectID, "subject", "", "Subject whose history to export (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the pack manifest as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if subjectID == "" {
		fmt.Fprintln(stderr, "Error: --subject is required")
		cmd.Usage()
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

	// A pack from an unverifiable chain is not evidence. Refuse.
	led, err := ledger.Open(ctx, cfg.Genesis, st)
	if err != nil {
		fmt.Fprintf(stderr, "Error: ledger does not verify: %v\n", err)
		return 1
	}

	archive, err := audit.NewArchiveFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: archive: %v\n", err)
		return 2
	}

	provider, err := loadOrCreateSigningKey(cfg.DataDir, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: signing key: %v\n", err)
		return 1
	}

	exporter := audit.NewExporter(led, nil, audit.NewKeyring(provider), archive)
	pack, err := exporter.GeneratePack(ctx, subjectID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate pack: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(pack, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	fmt.Fprintf(stdout, "%sEvidence pack generated%s\n", ColorBold+ColorGreen, ColorReset)
	fmt.Fprintf(stdout, "  subject    %s\n", pack.SubjectID)
	fmt.Fprintf(stdout, "  entries    %d\n", pack.EntryCount)
	fmt.Fprintf(stdout, "  events     %d\n", pack.EventCount)
	fmt.Fprintf(stdout, "  ref        %s\n", pack.Ref)
	fmt.Fprintf(stdout, "  checksum   %s\n", pack.Checksum)
	fmt.Fprintf(stdout, "  public key %s\n", hex.EncodeToString(pack.PublicKey))
	return 0
}

// loadOrCreateSigningKey keeps the master seed at <dataDir>/signing.key as
// hex. Subject keys derive from it, so losing the file changes every
// subject's verification key.
func loadOrCreateSigningKey(dataDir string, stdout io.Writer) (*audit.MemoryKeyProvider, error) {
	keyPath := filepath.Join(dataDir, "signing.key")
	if raw, err := os.ReadFile(keyPath); err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("malformed %s: %w", keyPath, err)
		}
		return audit.NewMemoryKeyProviderFromSeed(seed)
	}

	provider, err := audit.NewMemoryKeyProvider()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(provider.Seed())), 0o600); err != nil {
		return nil, err
	}
	fmt.Fprintf(stdout, "%sGenerated signing key at %s%s\n", ColorBold+ColorYellow, keyPath, ColorReset)
	return provider, nil
}
