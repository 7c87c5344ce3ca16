package domain

import "time"

// RunStatus enumerates how an ingestion cycle ended.
type RunStatus string

const (
	RunOK      RunStatus = "ok"
	RunPartial RunStatus = "partial"
	RunTimeout RunStatus = "timeout"
	RunFailed  RunStatus = "failed"
)

// MaxRunHistory caps the number of run records kept on disk.
const MaxRunHistory = 100

// RunRecord summarizes one ingestion cycle.
type RunRecord struct {
	ID                string         `json:"id"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	Status            RunStatus      `json:"status"`
	BySource          map[string]int `json:"by_source"`
	FailedSources     []string       `json:"failed_sources,omitempty"`
	TotalNew          int            `json:"total_new"`
	DuplicatesSkipped int            `json:"duplicates_skipped"`
	DurationSeconds   float64        `json:"duration_seconds"`
	RecencyHours      float64        `json:"recency_hours"`
	TotalFingerprints int            `json:"total_fingerprints"`
	Artifact          string         `json:"artifact,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// RunHistory is the persisted, capped log of cycles plus session totals.
type RunHistory struct {
	TotalRuns      int         `json:"total_runs"`
	TotalCollected int         `json:"total_collected"`
	StartedAt      time.Time   `json:"started_at"`
	Runs           []RunRecord `json:"runs"`
}

// Append adds a record, updates totals and drops the oldest entries beyond limit.
func (h *RunHistory) Append(rec RunRecord, limit int) {
	if h.StartedAt.IsZero() {
		h.StartedAt = rec.StartedAt
	}
	h.TotalRuns++
	h.TotalCollected += rec.TotalNew
	h.Runs = append(h.Runs, rec)
	if limit > 0 && len(h.Runs) > limit {
		h.Runs = append([]RunRecord(nil), h.Runs[len(h.Runs)-limit:]...)
	}
}

// Recent returns up to n of the latest records, oldest first.
func (h RunHistory) Recent(n int) []RunRecord {
	if n <= 0 || n >= len(h.Runs) {
		return h.Runs
	}
	return h.Runs[len(h.Runs)-n:]
}

// TrendBucket is one group of indexed articles and its size.
type TrendBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}
