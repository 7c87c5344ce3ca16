package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrLedgerLocked is returned when another collector holds the ledger.
var ErrLedgerLocked = errors.New("ledger is locked by another collector")

// Snapshot is the durable form of the ledger.
type Snapshot struct {
	Hashes      []string  `json:"hashes"`
	LastUpdated time.Time `json:"last_updated"`
	TotalCount  int       `json:"total_count"`
}

// Store reads and atomically replaces the durable ledger.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Locker is implemented by stores that enforce a single writer.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// Ledger is the growth-only set of fingerprints seen so far.
// One instance is shared by every adapter of a cycle.
type Ledger struct {
	mu         sync.Mutex
	known      map[string]struct{}
	store      Store
	logger     *slog.Logger
	now        func() time.Time
	loadFailed bool
}

// New wires a ledger to its durable store. A nil store keeps it in memory.
func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		known:  map[string]struct{}{},
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Load replaces the in-memory set with the durable one. A missing or
// unreadable store leaves the ledger empty; it never fails the run.
func (l *Ledger) Load(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.known = map[string]struct{}{}
	l.loadFailed = false
	if l.store == nil {
		return 0
	}

	snap, err := l.store.Load(ctx)
	if err != nil {
		l.loadFailed = true
		l.warn("ledger load failed, starting empty", "error", err)
		return 0
	}
	for _, h := range snap.Hashes {
		l.known[h] = struct{}{}
	}
	l.debug("ledger loaded", "fingerprints", len(l.known))
	return len(l.known)
}

// IsNew reports whether fp has not been seen.
func (l *Ledger) IsNew(fp string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, seen := l.known[fp]
	return !seen
}

// Register marks fp as seen. Registering twice is a no-op.
func (l *Ledger) Register(fp string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.known[fp] = struct{}{}
}

// Accept checks and registers fp in one critical section. It returns true
// only for the first caller presenting fp.
func (l *Ledger) Accept(fp string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.known[fp]; seen {
		return false
	}
	l.known[fp] = struct{}{}
	return true
}

// Len returns the number of known fingerprints.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.known)
}

// Snapshot returns the sorted set with count and timestamp.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	hashes := make([]string, 0, len(l.known))
	for h := range l.known {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return Snapshot{
		Hashes:      hashes,
		LastUpdated: l.now().UTC(),
		TotalCount:  len(hashes),
	}
}

// Persist writes the full set back to the store. If the initial load failed,
// the durable set is re-read and merged first; if it still cannot be read,
// nothing is written.
func (l *Ledger) Persist(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	if l.loadFailed {
		durable, err := l.store.Load(ctx)
		if err != nil {
			l.mu.Unlock()
			return fmt.Errorf("ledger unreadable, refusing to overwrite: %w", err)
		}
		for _, h := range durable.Hashes {
			l.known[h] = struct{}{}
		}
		l.loadFailed = false
	}
	snap := l.snapshotLocked()
	l.mu.Unlock()

	if err := l.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	l.debug("ledger persisted", "fingerprints", snap.TotalCount)
	return nil
}

// Lock acquires the store's writer lock when it has one.
func (l *Ledger) Lock(ctx context.Context) error {
	if locker, ok := l.store.(Locker); ok {
		return locker.Lock(ctx)
	}
	return nil
}

// Unlock releases the store's writer lock when it has one.
func (l *Ledger) Unlock() error {
	if locker, ok := l.store.(Locker); ok {
		return locker.Unlock()
	}
	return nil
}

func (l *Ledger) debug(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Ledger) warn(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}
