package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/apexgov/core/pkg/apex"
	"github.com/apexgov/core/pkg/audit"
	"github.com/apexgov/core/pkg/classify"
	"github.com/apexgov/core/pkg/config"
	"github.com/apexgov/core/pkg/cooling"
	"github.com/apexgov/core/pkg/crypto"
	"github.com/apexgov/core/pkg/floors"
	"github.com/apexgov/core/pkg/identity"
	"github.com/apexgov/core/pkg/ledger"
	"github.com/apexgov/core/pkg/receipt"
	"github.com/apexgov/core/pkg/redpat"
	"github.com/apexgov/core/pkg/route"
	"github.com/apexgov/core/pkg/rules"
	"github.com/apexgov/core/pkg/waw"
)

// kernel bundles everything a command needs, assembled from one
// constitution document.
type kernel struct {
	cfg      *config.Config
	mgr      *config.Manager
	engine   *apex.Engine
	ledger   ledger.Store
	cooling  *cooling.Engine
	tokens   *identity.TokenManager
	receipts *receipt.Generator
	logger   *slog.Logger
	audit    audit.Logger
}

func buildKernel(configPath string, stderr io.Writer) (*kernel, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel, stderr)
	auditLogger := audit.NewLoggerWithWriter(stderr)

	var store ledger.Store
	switch cfg.Ledger.Backend {
	case "sqlite":
		store, err = ledger.OpenSQLiteStore(cfg.Ledger.Path)
	default:
		store, err = ledger.NewFileStore(cfg.Ledger.Path,
			ledger.WithQueueBound(cfg.Ledger.QueueBound),
			ledger.WithLogger(logger),
		)
	}
	if err != nil {
		return nil, err
	}

	secret := config.AuthoritySecret()
	if secret == nil {
		// Without a deployment secret, bypass tokens simply never
		// validate. Judgment itself does not need one.
		secret = []byte("apexgov-unconfigured")
	}
	tokens := identity.NewTokenManager(secret)

	coolEngine, err := cooling.NewEngine(cfg.Cooling.Path, tokens,
		cooling.WithEngineLogger(logger),
		cooling.WithRetention(cfg.CoolingRetention()),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	signer, err := crypto.NewEd25519Signer(cfg.SignerKeyID)
	if err != nil {
		store.Close()
		coolEngine.Close()
		return nil, err
	}
	receipts := receipt.NewGenerator(signer)

	mgr, err := config.NewManager(configPath, store, auditLogger, logger)
	if err != nil {
		store.Close()
		coolEngine.Close()
		return nil, err
	}

	engine, err := newEngine(cfg, store, coolEngine, receipts, logger)
	if err != nil {
		store.Close()
		coolEngine.Close()
		return nil, err
	}

	return &kernel{
		cfg:      cfg,
		mgr:      mgr,
		engine:   engine,
		ledger:   store,
		cooling:  coolEngine,
		tokens:   tokens,
		receipts: receipts,
		logger:   logger,
		audit:    auditLogger,
	}, nil
}

// newEngine assembles a judgment engine from a constitution document.
// The ledger, cooling, and receipt components are shared so that chain
// and Merkle continuity survive a constitution reload.
func newEngine(cfg *config.Config, store ledger.Store, coolEngine *cooling.Engine, receipts *receipt.Generator, logger *slog.Logger) (*apex.Engine, error) {
	patterns := redpat.MustCompile()
	if cfg.PatternsFile != "" {
		var err error
		patterns, err = redpat.LoadFile(cfg.PatternsFile)
		if err != nil {
			return nil, err
		}
	}

	var ruleEngine *rules.Engine
	if len(cfg.Rules) > 0 {
		var err error
		ruleEngine, err = rules.Compile(cfg.Rules)
		if err != nil {
			return nil, err
		}
	}

	constitutionHash, err := cfg.Hash()
	if err != nil {
		return nil, err
	}

	critical := cfg.CriticalSet()
	weights := waw.Weights{
		PerFloor:       make(map[string]float64, len(critical)),
		DefaultPenalty: cfg.Weights.DefaultPenalty,
	}
	for name := range critical {
		weights.PerFloor[name] = cfg.Weights.CriticalPenalty
	}

	return apex.New(apex.Options{
		Patterns:         patterns,
		Classifier:       classify.New(classify.DefaultKeywords()),
		Registry:         floors.NewRegistry(cfg.FloorConfig()),
		Rules:            ruleEngine,
		Critical:         critical,
		Weights:          &weights,
		Router:           route.New(route.Mode(cfg.Mode), critical),
		Ledger:           store,
		Cooling:          coolEngine,
		Receipts:         receipts,
		ConstitutionHash: constitutionHash,
		Deadline:         cfg.Deadline(),
		Logger:           logger,
	})
}

// reload re-reads the constitution, records the amendment in the verdict
// ledger, and rebuilds the judgment engine. Ledger and cooling stores
// stay open across reloads; changing their paths needs a restart.
func (k *kernel) reload(ctx context.Context) (*apex.Engine, error) {
	if err := k.mgr.Reload(ctx); err != nil {
		return nil, err
	}
	cfg := k.mgr.Current()
	engine, err := newEngine(cfg, k.ledger, k.cooling, k.receipts, k.logger)
	if err != nil {
		return nil, err
	}
	k.cfg = cfg
	k.engine = engine
	return engine, nil
}

func (k *kernel) close() {
	_ = k.cooling.Close()
	_ = k.ledger.Close()
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func usageError(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, format+"\n", args...)
	return 2
}
