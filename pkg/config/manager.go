package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/apexgov/core/pkg/audit"
	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/ledger"
)

// ReasonAmended marks the ledger entry appended for a constitution change.
const ReasonAmended = "CONSTITUTION_AMENDED"

// Manager holds the live constitution and supports hot reload. A failed
// reload keeps the previous constitution in force, and an amendment is
// recorded in the verdict ledger before it takes effect.
type Manager struct {
	path   string
	store  ledger.Store
	auditl audit.Logger
	logger *slog.Logger

	mu      sync.RWMutex
	current *Config
	hash    string
}

// NewManager loads the constitution at path and wraps it for reload.
// store receives the amendment entries; it may be nil only in tests.
func NewManager(path string, store ledger.Store, auditl audit.Logger, logger *slog.Logger) (*Manager, error) {
	if auditl == nil {
		auditl = audit.Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	hash, err := cfg.Hash()
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, store: store, auditl: auditl, logger: logger, current: cfg, hash: hash}, nil
}

// Current returns the live constitution.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Hash returns the live constitution hash.
func (m *Manager) Hash() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hash
}

// Reload re-reads and validates the constitution file. When the document
// changed, the amendment is appended to the verdict ledger first; if the
// append fails the old constitution stays in force. Only then is the new
// document swapped in and the operational audit event emitted.
func (m *Manager) Reload(ctx context.Context) error {
	cfg, err := Load(m.path)
	if err != nil {
		m.logger.Error("constitution reload rejected", "path", m.path, "error", err)
		return err
	}
	hash, err := cfg.Hash()
	if err != nil {
		return err
	}

	m.mu.RLock()
	oldHash := m.hash
	m.mu.RUnlock()
	if oldHash == hash {
		return nil
	}

	if m.store != nil {
		// The amendment's params/context hashes are the outgoing and
		// incoming constitution hashes.
		rec := ledger.Record{
			Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
			Task:        "constitution.amend",
			ParamsHash:  oldHash,
			ContextHash: hash,
			Verdict:     contracts.VerdictSeal,
			ReasonCodes: []string{ReasonAmended},
			Caller: contracts.Caller{
				Source:     "operator",
				Model:      "unknown",
				Tenant:     "unknown",
				TrustLevel: contracts.TrustSovereign,
			},
			ActionClass: contracts.ClassSelfModify,
		}
		if _, err := m.store.AppendAtomic(ctx, rec); err != nil {
			m.logger.Error("amendment not recorded, reload rejected", "error", err)
			return fmt.Errorf("config: amendment ledger append failed: %w", err)
		}
	}

	m.mu.Lock()
	m.current = cfg
	m.hash = hash
	m.mu.Unlock()

	m.logger.Info("constitution amended", "old_hash", oldHash, "new_hash", hash)
	if err := m.auditl.Record(ctx, audit.EventConfig, "", "config.reload", m.path, map[string]any{
		"old_hash": oldHash,
		"new_hash": hash,
	}); err != nil {
		m.logger.Warn("audit record failed", "error", err)
	}
	return nil
}
