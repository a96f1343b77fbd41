package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/pawl/pkg/api"
	"github.com/Mindburn-Labs/pawl/pkg/audit"
	"github.com/Mindburn-Labs/pawl/pkg/config"
	"github.com/Mindburn-Labs/pawl/pkg/guardian"
	"github.com/Mindburn-Labs/pawl/pkg/kernel"
	"github.com/Mindburn-Labs/pawl/pkg/ledger"
	"github.com/Mindburn-Labs/pawl/pkg/observability"
	"github.com/Mindburn-Labs/pawl/pkg/order"
	"github.com/Mindburn-Labs/pawl/pkg/property"
	"github.com/Mindburn-Labs/pawl/pkg/risk"
	"github.com/Mindburn-Labs/pawl/pkg/store"
)

const (
	defaultRPS   = 20
	defaultBurst = 40

	idempotencyTTL  = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		port        string
		profileCode string
	)
	cmd.StringVar(&port, "port", "", "Override the configured HTTP port")
	cmd.StringVar(&profileCode, "profile", "", "Apply a jurisdiction deployment profile by code")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: config: %v\n", err)
		return 2
	}
	if profileCode != "" {
		p, err := config.LoadProfile(cfg.ProfilesDir, profileCode)
		if err != nil {
			fmt.Fprintf(stderr, "Error: profile %q: %v\n", profileCode, err)
			return 2
		}
		cfg.ApplyProfile(p)
	}
	if port != "" {
		cfg.Port = port
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(stdout, "%spawl governance core %s%s\n", ColorBold+ColorBlue, version, ColorReset)
	if err := serve(ctx, cfg, logger); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.LedgerBackend, err)
	}
	defer st.Close()

	led, err := ledger.Open(ctx, cfg.Genesis, st, ledger.WithSink(st))
	if err != nil {
		return fmt.Errorf("replay ledger: %w", err)
	}
	logger.Info("ledger replayed", "backend", cfg.LedgerBackend, "entries", led.Len(), "head", led.Head())

	inv, err := risk.NewInvariant(cfg.RoHCeiling)
	if err != nil {
		return fmt.Errorf("risk invariant: %w", err)
	}
	evaluator, err := property.NewEvaluator()
	if err != nil {
		return fmt.Errorf("property evaluator: %w", err)
	}

	var cache kernel.DecisionCache = kernel.NewMemoryDecisionCache()
	if cfg.RedisAddr != "" {
		cache = kernel.NewRedisDecisionCache(cfg.RedisAddr, "", 0)
		logger.Info("decision cache shared across replicas", "redis", cfg.RedisAddr)
	}

	auditFile, err := openAuditTrail(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer auditFile.Close()

	guard := guardian.New(kernel.New(inv), led,
		guardian.WithCache(cache),
		guardian.WithProperties(evaluator),
		guardian.WithAuditLogger(audit.NewLoggerWithWriter(auditFile)),
	)

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = "pawl"
	obsCfg.ServiceVersion = version
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	var limiter api.RateLimiter = api.NewGlobalRateLimiter(defaultRPS, defaultBurst)
	if cfg.RedisAddr != "" {
		limiter = api.NewRedisRateLimiter(cfg.RedisAddr, "", 0, defaultRPS, defaultBurst)
	}

	var idem api.IdempotencyStorer = api.NewIdempotencyStore(idempotencyTTL)
	if ps, ok := st.(*store.PostgresStore); ok {
		pgIdem := api.NewPostgresIdempotencyStore(ps.DB(), idempotencyTTL)
		if err := pgIdem.Init(ctx); err != nil {
			return fmt.Errorf("init idempotency store: %w", err)
		}
		idem = pgIdem
	}

	srvOpts := []api.ServerOption{
		api.WithObservability(obs),
		api.WithLogger(logger),
		api.WithRateLimiter(limiter),
		api.WithIdempotency(idem),
		api.WithGovernance(api.Governance{
			MinRegulatorQuorum:      cfg.RegulatorQuorum,
			AllowNeuromorphReversal: cfg.AllowNeuromorphReversal,
		}),
	}
	if cfg.OrderSecret != "" {
		orders, err := order.NewManager([]byte(cfg.OrderSecret))
		if err != nil {
			return fmt.Errorf("order verifier: %w", err)
		}
		srvOpts = append(srvOpts, api.WithOrderVerifier(orders))
	} else {
		logger.Warn("PAWL_ORDER_SECRET unset; explicit reversal orders are not verified")
	}
	srv := api.NewServer(guard, led, srvOpts...)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening",
		"port", cfg.Port,
		"jurisdiction", cfg.Jurisdiction,
		"regulator_quorum", cfg.RegulatorQuorum,
		"allow_neuromorph_reversal", cfg.AllowNeuromorphReversal,
	)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("stopped")
	return nil
}

// openStore selects the ledger persistence backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.LedgerBackend {
	case config.BackendJSONL:
		if err := os.MkdirAll(filepath.Dir(cfg.LedgerPath), 0o755); err != nil {
			return nil, err
		}
		return store.NewJSONLStore(cfg.LedgerPath)
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.LedgerPath), 0o755); err != nil {
			return nil, err
		}
		return store.OpenSQLite(cfg.LedgerPath)
	case config.BackendPostgres:
		ps, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := ps.Init(ctx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnsupportedBackend, cfg.LedgerBackend)
	}
}

func openAuditTrail(dataDir string) (*os.File, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dataDir, "audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func logLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
