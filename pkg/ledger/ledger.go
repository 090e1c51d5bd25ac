// Package ledger implements the append-only, hash-chained verdict ledger.
// One entry per verdict, JSON Lines on disk, SHA-256 over JCS canonical
// bytes for the chain. Entries are immortal: status changes elsewhere in
// the system are new entries, never rewrites.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apexgov/core/pkg/canonicalize"
	"github.com/apexgov/core/pkg/contracts"
)

var (
	// ErrLedgerUnavailable signals the append could not complete; the
	// orchestrator treats this as the fail-closed trigger.
	ErrLedgerUnavailable = errors.New("ledger: unavailable")
	// ErrIntegrityBroken signals chain verification failed. The store
	// refuses further appends until operator intervention.
	ErrIntegrityBroken = errors.New("ledger: integrity broken")
)

// GenesisPrevHash is the prev_hash of the first entry.
var GenesisPrevHash = strings.Repeat("0", 64)

// Record carries the verdict fields the orchestrator hands to the ledger.
// The store assigns sequence, hashes, and the entry id.
type Record struct {
	Timestamp        string                `json:"timestamp"`
	Task             string                `json:"task"`
	ParamsHash       string                `json:"params_hash"`
	ContextHash      string                `json:"context_hash"`
	Verdict          contracts.Verdict     `json:"verdict"`
	ReasonCodes      []string              `json:"reason_codes"`
	FloorTriggered   []string              `json:"floor_triggered"`
	RequiredEvidence []string              `json:"required_evidence"`
	Constraints      []string              `json:"constraints"`
	Caller           contracts.Caller      `json:"caller"`
	ActionClass      contracts.ActionClass `json:"action_class"`
	ZKPCReceipt      string                `json:"zkpc_receipt,omitempty"`
}

// Entry is one persisted ledger line.
type Entry struct {
	EntryID          string                `json:"entry_id"`
	Sequence         uint64                `json:"sequence"`
	Timestamp        string                `json:"timestamp"`
	Task             string                `json:"task"`
	ParamsHash       string                `json:"params_hash"`
	ContextHash      string                `json:"context_hash"`
	Verdict          contracts.Verdict     `json:"verdict"`
	ReasonCodes      []string              `json:"reason_codes"`
	FloorTriggered   []string              `json:"floor_triggered"`
	RequiredEvidence []string              `json:"required_evidence"`
	Constraints      []string              `json:"constraints"`
	Caller           contracts.Caller      `json:"caller"`
	ActionClass      contracts.ActionClass `json:"action_class"`
	PrevHash         string                `json:"prev_hash"`
	// EntryHash is SHA-256 over the JCS canonical form of this entry
	// with the field itself left empty.
	EntryHash   string `json:"entry_hash,omitempty"`
	ZKPCReceipt string `json:"zkpc_receipt,omitempty"`
}

// ComputeEntryHash returns the canonical hash of e, ignoring any value
// already present in EntryHash.
func ComputeEntryHash(e Entry) (string, error) {
	e.EntryHash = ""
	return canonicalize.CanonicalHash(e)
}

// Store is the ledger abstraction consumed by the orchestrator. A verdict
// is rendered only once its entry is durable.
type Store interface {
	// AppendAtomic durably appends one record and returns the entry id.
	// On any failure it returns ErrLedgerUnavailable (possibly wrapped).
	AppendAtomic(ctx context.Context, rec Record) (string, error)
	// IterSince returns entries with timestamps at or after since, in
	// append order. A zero time returns everything.
	IterSince(ctx context.Context, since time.Time) ([]Entry, error)
	// VerifyChain walks the ledger, recomputes every entry hash, and
	// checks linkage. A failure is sticky: the store fail-stops.
	VerifyChain(ctx context.Context) error
	// Head returns the current sequence number and head hash.
	Head() (uint64, string)
	Close() error
}

// buildEntry assigns chain fields and computes the entry hash.
func buildEntry(rec Record, entryID string, seq uint64, prevHash string) (Entry, error) {
	entry := Entry{
		EntryID:          entryID,
		Sequence:         seq,
		Timestamp:        rec.Timestamp,
		Task:             rec.Task,
		ParamsHash:       rec.ParamsHash,
		ContextHash:      rec.ContextHash,
		Verdict:          rec.Verdict,
		ReasonCodes:      rec.ReasonCodes,
		FloorTriggered:   rec.FloorTriggered,
		RequiredEvidence: rec.RequiredEvidence,
		Constraints:      rec.Constraints,
		Caller:           rec.Caller,
		ActionClass:      rec.ActionClass,
		PrevHash:         prevHash,
		ZKPCReceipt:      rec.ZKPCReceipt,
	}
	hash, err := ComputeEntryHash(entry)
	if err != nil {
		return Entry{}, err
	}
	entry.EntryHash = hash
	return entry, nil
}

func errorsJoin(base error, msg string, seq uint64) error {
	return fmt.Errorf("%w: %s %d", base, msg, seq)
}

// verifyEntries walks a loaded chain.
func verifyEntries(entries []Entry) error {
	prev := GenesisPrevHash
	for i, e := range entries {
		if e.PrevHash != prev {
			return errorsJoin(ErrIntegrityBroken, "chain broken at sequence", e.Sequence)
		}
		computed, err := ComputeEntryHash(e)
		if err != nil {
			return errorsJoin(ErrIntegrityBroken, "hash recompute failed at sequence", e.Sequence)
		}
		if computed != e.EntryHash {
			return errorsJoin(ErrIntegrityBroken, "hash mismatch at sequence", e.Sequence)
		}
		if e.Sequence != uint64(i)+1 {
			return errorsJoin(ErrIntegrityBroken, "sequence gap at sequence", e.Sequence)
		}
		prev = e.EntryHash
	}
	return nil
}
