// Package config loads deployment configuration from PAWL_* environment
// variables, optionally hardened by a per-jurisdiction YAML profile.
// Everything downstream takes explicit config objects; nothing reads the
// environment after startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Mindburn-Labs/pawl/pkg/ledger"
	"github.com/Mindburn-Labs/pawl/pkg/risk"
)

// Ledger backends selectable through PAWL_LEDGER_BACKEND.
const (
	BackendJSONL    = "jsonl"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var (
	// ErrBadValue reports an environment variable that did not parse.
	ErrBadValue = errors.New("config: bad value")

	// ErrUnsupportedBackend reports an unknown ledger backend name.
	ErrUnsupportedBackend = errors.New("config: unsupported ledger backend")
)

// Config holds everything a pawl process needs at startup. Governance
// fields default to the strictest setting; operators must opt out, never
// opt in, of safety.
type Config struct {
	Port     string
	LogLevel string

	DataDir       string
	LedgerBackend string
	LedgerPath    string
	DatabaseURL   string
	Genesis       string

	RegulatorQuorum         int
	RoHCeiling              float64
	AllowNeuromorphReversal bool

	RedisAddr   string
	OrderSecret string
	ArchiveType string

	ProfilesDir  string
	Jurisdiction string

	OTLPEndpoint string
}

// Load reads the environment. Unset variables fall back to single-node
// defaults; malformed values are errors, never silently defaulted.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          envString("PAWL_PORT", "8080"),
		LogLevel:      envString("PAWL_LOG_LEVEL", "INFO"),
		DataDir:       envString("PAWL_DATA_DIR", "data"),
		LedgerBackend: envString("PAWL_LEDGER_BACKEND", BackendJSONL),
		DatabaseURL:   os.Getenv("PAWL_DATABASE_URL"),
		Genesis:       envString("PAWL_GENESIS", ledger.DefaultGenesis),
		RedisAddr:     os.Getenv("PAWL_REDIS_ADDR"),
		OrderSecret:   os.Getenv("PAWL_ORDER_SECRET"),
		ArchiveType:   envString("PAWL_ARCHIVE_TYPE", "fs"),
		ProfilesDir:   envString("PAWL_PROFILES_DIR", "profiles"),
		Jurisdiction:  os.Getenv("PAWL_JURISDICTION"),
		OTLPEndpoint:  os.Getenv("PAWL_OTLP_ENDPOINT"),
	}
	cfg.LedgerPath = envString("PAWL_LEDGER_PATH", filepath.Join(cfg.DataDir, "ledger.jsonl"))

	var err error
	if cfg.RegulatorQuorum, err = envInt("PAWL_REGULATOR_QUORUM", 2); err != nil {
		return nil, err
	}
	if cfg.RoHCeiling, err = envFloat("PAWL_ROH_CEILING", risk.DefaultCeiling); err != nil {
		return nil, err
	}
	if cfg.AllowNeuromorphReversal, err = envBool("PAWL_ALLOW_NEUROMORPH_REVERSAL", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LedgerBackend {
	case BackendJSONL, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.LedgerBackend)
	}
	if c.RegulatorQuorum < 0 {
		return fmt.Errorf("%w: PAWL_REGULATOR_QUORUM must not be negative, got %d",
			ErrBadValue, c.RegulatorQuorum)
	}
	if c.RoHCeiling <= 0 || c.RoHCeiling > 1 {
		return fmt.Errorf("%w: PAWL_ROH_CEILING must be in (0,1], got %g",
			ErrBadValue, c.RoHCeiling)
	}
	if c.LedgerBackend == BackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("%w: postgres backend needs PAWL_DATABASE_URL", ErrBadValue)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrBadValue, key, v, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrBadValue, key, v, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q: %v", ErrBadValue, key, v, err)
	}
	return b, nil
}
