package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the ledger in a SQLite database. The full entry is
// stored as a JSON blob so hash recomputation sees exactly the appended
// fields; chain columns exist for indexed lookups.
type SQLiteStore struct {
	db *sql.DB

	mu       sync.Mutex
	lastSeq  uint64
	lastHash string
	broken   error
}

// OpenSQLiteStore opens (or creates) a SQLite-backed ledger at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite %s: %w", path, err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing handle, migrating and recovering the
// chain head.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	if err := s.recoverHead(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS ledger_entries (
        sequence INTEGER PRIMARY KEY,
        entry_id TEXT NOT NULL UNIQUE,
        timestamp TEXT NOT NULL,
        verdict TEXT NOT NULL,
        task TEXT NOT NULL,
        prev_hash TEXT NOT NULL,
        entry_hash TEXT NOT NULL,
        entry JSON NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_ledger_timestamp ON ledger_entries(timestamp);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) recoverHead() error {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT sequence, entry_hash FROM ledger_entries ORDER BY sequence DESC LIMIT 1`)
	var seq uint64
	var hash string
	switch err := row.Scan(&seq, &hash); err {
	case nil:
		s.lastSeq, s.lastHash = seq, hash
	case sql.ErrNoRows:
		s.lastSeq, s.lastHash = 0, GenesisPrevHash
	default:
		return fmt.Errorf("ledger: recover head: %w", err)
	}
	return nil
}

// AppendAtomic implements Store.
func (s *SQLiteStore) AppendAtomic(ctx context.Context, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, s.broken)
	}
	entry, err := buildEntry(rec, uuid.NewString(), s.lastSeq+1, s.lastHash)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	blob, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (sequence, entry_id, timestamp, verdict, task, prev_hash, entry_hash, entry)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Sequence, entry.EntryID, entry.Timestamp, string(entry.Verdict), entry.Task,
		entry.PrevHash, entry.EntryHash, string(blob),
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert: %w", ErrLedgerUnavailable, err)
	}
	s.lastSeq = entry.Sequence
	s.lastHash = entry.EntryHash
	return entry.EntryID, nil
}

// IterSince implements Store. The boundary is compared on parsed times,
// not on the stored strings: RFC 3339 fractions are variable width, so a
// lexicographic SQL comparison would mis-filter near the boundary.
func (s *SQLiteStore) IterSince(ctx context.Context, since time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM ledger_entries ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal([]byte(blob), &e); err != nil {
			return nil, fmt.Errorf("%w: undecodable entry", ErrIntegrityBroken)
		}
		if !since.IsZero() {
			ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("ledger: bad timestamp at sequence %d: %w", e.Sequence, err)
			}
			if ts.Before(since) {
				continue
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// VerifyChain implements Store. A failure fail-stops the store.
func (s *SQLiteStore) VerifyChain(ctx context.Context) error {
	entries, err := s.IterSince(ctx, time.Time{})
	if err == nil {
		err = verifyEntries(entries)
	}
	if err != nil {
		s.mu.Lock()
		s.broken = err
		s.mu.Unlock()
		return err
	}
	return nil
}

// Head implements Store.
func (s *SQLiteStore) Head() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq, s.lastHash
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
