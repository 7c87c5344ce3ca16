package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"NewsCollector/internal/ledger"
)

// LedgerFile keeps the fingerprint ledger in a JSON file guarded by an
// exclusive lock file next to it.
type LedgerFile struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ ledger.Store  = (*LedgerFile)(nil)
	_ ledger.Locker = (*LedgerFile)(nil)
)

// NewLedgerFile points the store at path; the lock lives at path + ".lock".
func NewLedgerFile(path string, log *slog.Logger) *LedgerFile {
	return &LedgerFile{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: log,
		now:    time.Now,
	}
}

// Path returns the ledger file location.
func (f *LedgerFile) Path() string { return f.path }

// Load reads the snapshot. A missing file is an empty ledger. A file that
// cannot be parsed is moved aside to <name>.corrupt-<timestamp> and reported,
// so the next Save cannot overwrite the only copy of the old fingerprints.
func (f *LedgerFile) Load(ctx context.Context) (ledger.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Snapshot{}, err
	}

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.debug("ledger file absent", "path", f.path)
		return ledger.Snapshot{}, nil
	}
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("read ledger %s: %w", f.path, err)
	}

	var snap ledger.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		quarantined := fmt.Sprintf("%s.corrupt-%s", f.path, f.now().UTC().Format("20060102T150405Z"))
		if renameErr := os.Rename(f.path, quarantined); renameErr != nil {
			return ledger.Snapshot{}, fmt.Errorf("parse ledger %s: %w (quarantine failed: %v)", f.path, err, renameErr)
		}
		if f.logger != nil {
			f.logger.Warn("unreadable ledger quarantined", "path", f.path, "moved_to", quarantined)
		}
		return ledger.Snapshot{}, fmt.Errorf("parse ledger %s: %w", f.path, err)
	}
	return snap, nil
}

// Save atomically replaces the ledger file.
func (f *LedgerFile) Save(ctx context.Context, snap ledger.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Hashes == nil {
		snap.Hashes = []string{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return writeFileAtomic(f.path, data, 0o644)
}

// Lock takes the single-writer lock without waiting.
func (f *LedgerFile) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	ok, err := f.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !ok {
		return ledger.ErrLedgerLocked
	}
	f.debug("ledger locked", "lock", f.lock.Path())
	return nil
}

// Unlock releases the single-writer lock.
func (f *LedgerFile) Unlock() error {
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("release ledger lock: %w", err)
	}
	return nil
}

func (f *LedgerFile) debug(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
