package ledger

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

	"github.com/google/uuid"
)

// DefaultQueueBound is the default backpressure limit on pending appends.
const DefaultQueueBound = 1024

// FileStore persists the ledger as JSON Lines in a single file. All
// appends funnel through one writer goroutine; each line is fsynced
// before the append resolves, so a rendered verdict is always durable.
type FileStore struct {
	path   string
	file   *os.File
	logger *slog.Logger

	queue chan appendReq
	done  chan struct{}

	mu       sync.RWMutex
	lastSeq  uint64
	lastHash string
	broken   error // sticky; set when verification fails
	closed   bool
}

type appendReq struct {
	rec   Record
	reply chan appendResp
}

type appendResp struct {
	entryID string
	err     error
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithQueueBound sets the pending-append limit. Appends beyond the bound
// fail fast with ErrLedgerUnavailable rather than queueing unboundedly.
func WithQueueBound(n int) FileStoreOption {
	return func(s *FileStore) {
		if n > 0 {
			s.queue = make(chan appendReq, n)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = l }
}

// NewFileStore opens or creates the ledger at path, scans the existing
// chain to recover the head, and starts the writer.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	s := &FileStore{
		path:   path,
		file:   file,
		logger: slog.Default(),
		queue:  make(chan appendReq, DefaultQueueBound),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	entries, err := s.load()
	if err != nil {
		file.Close()
		return nil, err
	}
	s.lastHash = GenesisPrevHash
	if n := len(entries); n > 0 {
		s.lastSeq = entries[n-1].Sequence
		s.lastHash = entries[n-1].EntryHash
	}
	go s.writer()
	return s, nil
}

// AppendAtomic implements Store. It returns ErrLedgerUnavailable when the
// queue is saturated, the store is closed or fail-stopped, or the write
// itself fails.
func (s *FileStore) AppendAtomic(ctx context.Context, rec Record) (string, error) {
	s.mu.RLock()
	broken, closed := s.broken, s.closed
	s.mu.RUnlock()
	if broken != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, broken)
	}
	if closed {
		return "", fmt.Errorf("%w: store closed", ErrLedgerUnavailable)
	}
	req := appendReq{rec: rec, reply: make(chan appendResp, 1)}
	select {
	case s.queue <- req:
	default:
		return "", fmt.Errorf("%w: append queue saturated", ErrLedgerUnavailable)
	}
	select {
	case resp := <-req.reply:
		return resp.entryID, resp.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, ctx.Err())
	}
}

func (s *FileStore) writer() {
	for {
		select {
		case <-s.done:
			// Fail any appends that were queued behind the close.
			for {
				select {
				case req := <-s.queue:
					req.reply <- appendResp{err: fmt.Errorf("%w: store closed", ErrLedgerUnavailable)}
				default:
					return
				}
			}
		case req := <-s.queue:
			entryID, err := s.write(req.rec)
			req.reply <- appendResp{entryID: entryID, err: err}
		}
	}
}

func (s *FileStore) write(rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, s.broken)
	}
	entry, err := buildEntry(rec, uuid.NewString(), s.lastSeq+1, s.lastHash)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("%w: write: %w", ErrLedgerUnavailable, err)
	}
	if err := s.file.Sync(); err != nil {
		return "", fmt.Errorf("%w: fsync: %w", ErrLedgerUnavailable, err)
	}
	s.lastSeq = entry.Sequence
	s.lastHash = entry.EntryHash
	return entry.EntryID, nil
}

// IterSince implements Store.
func (s *FileStore) IterSince(ctx context.Context, since time.Time) ([]Entry, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return entries, nil
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("ledger: bad timestamp at sequence %d: %w", e.Sequence, err)
		}
		if !ts.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// VerifyChain implements Store. A failure fail-stops the store: all
// subsequent appends return ErrLedgerUnavailable until recovery.
func (s *FileStore) VerifyChain(ctx context.Context) error {
	entries, err := s.load()
	if err == nil {
		err = verifyEntries(entries)
	}
	if err != nil {
		s.mu.Lock()
		s.broken = err
		s.mu.Unlock()
		s.logger.Error("ledger fail-stop", "path", s.path, "error", err)
		return err
	}
	return nil
}

// Head implements Store.
func (s *FileStore) Head() (uint64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq, s.lastHash
}

// Close stops the writer and closes the file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	return s.file.Close()
}

// load reads and decodes every line of the ledger file.
func (s *FileStore) load() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: open for read: %w", err)
	}
	defer f.Close()
	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%w: undecodable line %d", ErrIntegrityBroken, lineNo)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	return entries, nil
}
