package cooling

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/identity"
)

// DefaultRetention is how long terminal entries stay before the sweep
// marks still-open ones EXPIRED.
const DefaultRetention = 30 * 24 * time.Hour

// Engine drives the cooling protocol over a JSON Lines ledger. The file
// only ever grows; the latest row per entry id is the current state.
type Engine struct {
	path      string
	tokens    *identity.TokenManager
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	file  *os.File
	cache map[string]Entry // entry id -> latest row
	order []string         // entry ids in first-seen order
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the structured logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithRetention overrides the expiry window used by the sweep.
func WithRetention(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.retention = d
		}
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine opens or creates the cooling ledger at path and replays it
// into the cache. tokens validates emergency bypass authority and must
// not be nil.
func NewEngine(path string, tokens *identity.TokenManager, opts ...EngineOption) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cooling: create dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cooling: open %s: %w", path, err)
	}
	e := &Engine{
		path:      path,
		tokens:    tokens,
		logger:    slog.Default(),
		retention: DefaultRetention,
		now:       func() time.Time { return time.Now().UTC() },
		file:      file,
		cache:     make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.replay(); err != nil {
		file.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) replay() error {
	f, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("cooling: open for replay: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("cooling: undecodable ledger line: %w", err)
		}
		if _, seen := e.cache[entry.EntryID]; !seen {
			e.order = append(e.order, entry.EntryID)
		}
		e.cache[entry.EntryID] = entry
	}
	return scanner.Err()
}

// append writes one row and updates the cache. Caller holds e.mu.
func (e *Engine) append(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cooling: marshal row: %w", err)
	}
	if _, err := e.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("cooling: append: %w", err)
	}
	if err := e.file.Sync(); err != nil {
		return fmt.Errorf("cooling: fsync: %w", err)
	}
	if _, seen := e.cache[entry.EntryID]; !seen {
		e.order = append(e.order, entry.EntryID)
	}
	e.cache[entry.EntryID] = entry
	return nil
}

// EnforceTier selects and records the cooling window for one verdict.
// TierNone verdicts append a row that is immediately COMPLETE, so the
// ledger records releases as well as holds.
func (e *Engine) EnforceTier(sessionID, verdictRef string, verdict contracts.Verdict, warnings int, amendment bool) (Entry, error) {
	tier := CalculateTier(verdict, warnings, amendment)
	now := e.now()
	entry := Entry{
		EntryID:      entryID(sessionID, now),
		SessionID:    sessionID,
		VerdictRef:   verdictRef,
		Verdict:      string(verdict),
		Tier:         tier,
		TierLabel:    tier.Label(),
		Status:       StatusCooling,
		CreatedAt:    now.Format(time.RFC3339Nano),
		CoolingUntil: now.Add(tier.Duration()).Format(time.RFC3339Nano),
		UpdatedAt:    now.Format(time.RFC3339Nano),
	}
	if tier == TierNone {
		entry.Status = StatusComplete
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.append(entry); err != nil {
		return Entry{}, err
	}
	if tier != TierNone {
		e.logger.Info("cooling window opened",
			"entry_id", entry.EntryID,
			"tier", entry.TierLabel,
			"until", entry.CoolingUntil,
		)
	}
	return entry, nil
}

// UpdateStatus appends a new row moving the entry to status. Terminal
// entries reject further updates.
func (e *Engine) UpdateStatus(id, status, note string) (Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateLocked(id, status, note, "")
}

func (e *Engine) updateLocked(id, status, note, authority string) (Entry, error) {
	current, ok := e.cache[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	if terminal(current.Status) {
		return Entry{}, fmt.Errorf("%w: %s is %s", ErrTerminalStatus, id, current.Status)
	}
	if !validTransition(current.Status, status) {
		return Entry{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}
	next := current
	next.Status = status
	next.Note = note
	next.Authority = authority
	next.UpdatedAt = e.now().Format(time.RFC3339Nano)
	if err := e.append(next); err != nil {
		return Entry{}, err
	}
	return next, nil
}

// Get returns the latest row for id.
func (e *Engine) Get(id string) (Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.cache[id]
	return entry, ok
}

// IsCooled reports whether the entry's window has elapsed or been
// resolved. Unknown ids are not cooled.
func (e *Engine) IsCooled(id string) bool {
	e.mu.RLock()
	entry, ok := e.cache[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	if terminal(entry.Status) {
		return entry.Status != StatusExpired
	}
	until, err := time.Parse(time.RFC3339Nano, entry.CoolingUntil)
	if err != nil {
		return false
	}
	return !e.now().Before(until)
}

// EmergencyBypass closes a cooling window early. Requires a valid
// sovereign authority token; the granting authority is recorded on the
// bypass row.
func (e *Engine) EmergencyBypass(id, token, reason string) (Entry, error) {
	authority, err := e.tokens.ValidateAuthorityToken(token)
	if err != nil {
		return Entry{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.updateLocked(id, StatusBypassed, reason, authority)
	if err != nil {
		return Entry{}, err
	}
	e.logger.Warn("cooling emergency bypass",
		"entry_id", id,
		"authority", authority,
		"reason", reason,
	)
	return entry, nil
}

// Sweep walks open entries: elapsed windows become COMPLETE, windows
// older than the retention horizon become EXPIRED. Returns the rows it
// transitioned.
func (e *Engine) Sweep(ctx context.Context) ([]Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	var changed []Entry
	for _, id := range e.order {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		entry := e.cache[id]
		if entry.Status != StatusCooling {
			continue
		}
		created, err := time.Parse(time.RFC3339Nano, entry.CreatedAt)
		if err == nil && now.Sub(created) > e.retention {
			next, err := e.updateLocked(id, StatusExpired, "retention horizon passed", "")
			if err != nil {
				return changed, err
			}
			changed = append(changed, next)
			continue
		}
		until, err := time.Parse(time.RFC3339Nano, entry.CoolingUntil)
		if err == nil && !now.Before(until) {
			next, err := e.updateLocked(id, StatusComplete, "cooling window elapsed", "")
			if err != nil {
				return changed, err
			}
			changed = append(changed, next)
		}
	}
	return changed, nil
}

// AllComplete reports whether a session has no open cooling windows.
func (e *Engine) AllComplete(sessionID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, id := range e.order {
		entry := e.cache[id]
		if entry.SessionID == sessionID && entry.Status == StatusCooling {
			return false
		}
	}
	return true
}

// BySession returns the latest rows for a session, in first-seen order.
func (e *Engine) BySession(sessionID string) []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Entry
	for _, id := range e.order {
		if entry := e.cache[id]; entry.SessionID == sessionID {
			out = append(out, entry)
		}
	}
	return out
}

// WaitUntilCooled blocks until the entry's window resolves, polling at
// interval, or the context is cancelled.
func (e *Engine) WaitUntilCooled(ctx context.Context, id string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		entry, ok := e.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
		}
		if entry.Status == StatusExpired {
			return fmt.Errorf("%w: %s expired", ErrStillCooling, id)
		}
		if e.IsCooled(id) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the underlying file.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Close()
}
