package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"NewsCollector/internal/domain"
)

// HistoryFile keeps the capped run history as one JSON document.
type HistoryFile struct {
	path  string
	limit int
	mu    sync.Mutex
}

// NewHistoryFile stores history at path, keeping at most limit runs.
func NewHistoryFile(path string, limit int) *HistoryFile {
	if limit <= 0 {
		limit = domain.MaxRunHistory
	}
	return &HistoryFile{path: path, limit: limit}
}

// Load returns the stored history; a missing file is an empty history.
func (h *HistoryFile) Load(ctx context.Context) (domain.RunHistory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load(ctx)
}

func (h *HistoryFile) load(ctx context.Context) (domain.RunHistory, error) {
	if err := ctx.Err(); err != nil {
		return domain.RunHistory{}, err
	}
	raw, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.RunHistory{}, nil
	}
	if err != nil {
		return domain.RunHistory{}, fmt.Errorf("read history %s: %w", h.path, err)
	}
	var hist domain.RunHistory
	if err := json.Unmarshal(raw, &hist); err != nil {
		return domain.RunHistory{}, fmt.Errorf("parse history %s: %w", h.path, err)
	}
	return hist, nil
}

// Append adds rec and rewrites the file atomically. An unreadable history is
// started over rather than blocking new records.
func (h *HistoryFile) Append(ctx context.Context, rec domain.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hist, err := h.load(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	if err != nil {
		hist = domain.RunHistory{}
	}
	hist.Append(rec, h.limit)
	return h.save(hist)
}

// Reset clears the history.
func (h *HistoryFile) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.save(domain.RunHistory{Runs: []domain.RunRecord{}})
}

func (h *HistoryFile) save(hist domain.RunHistory) error {
	if hist.Runs == nil {
		hist.Runs = []domain.RunRecord{}
	}
	data, err := json.MarshalIndent(hist, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return writeFileAtomic(h.path, data, 0o644)
}
