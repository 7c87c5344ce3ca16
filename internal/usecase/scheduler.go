package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
	"NewsCollector/internal/report"
)

// Scheduler wires the interval driver with the ingestion cycle. Every cycle
// runs under its own timeout; its summary is logged and, when a notifier is
// configured, published.
type Scheduler struct {
	driver      ports.Scheduler
	coordinator *Coordinator
	notifier    ports.Notifier
	timeout     time.Duration
	logger      *slog.Logger
	onCycle     func(domain.RunRecord)
}

// SchedulerDeps groups the collaborators of a Scheduler.
type SchedulerDeps struct {
	Driver       ports.Scheduler
	Coordinator  *Coordinator
	Notifier     ports.Notifier
	CycleTimeout time.Duration
	Logger       *slog.Logger
	// OnCycle, when set, receives every finished run record.
	OnCycle func(domain.RunRecord)
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	return &Scheduler{
		driver:      deps.Driver,
		coordinator: deps.Coordinator,
		notifier:    deps.Notifier,
		timeout:     deps.CycleTimeout,
		logger:      deps.Logger,
		onCycle:     deps.OnCycle,
	}
}

// RunOnce executes a single cycle under the cycle timeout.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.RunRecord, error) {
	if s.coordinator == nil {
		return domain.RunRecord{}, errors.New("scheduler has no coordinator")
	}

	cycleCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rec, err := s.coordinator.RunCycle(cycleCtx)
	if errors.Is(err, ErrCycleTimeout) && s.logger != nil {
		s.logger.Error("cycle timed out", "run", rec.ID, "timeout", s.timeout.String())
	}

	if s.logger != nil {
		s.logger.Info("run summary", "run", rec.ID, "status", rec.Status, "total_new", rec.TotalNew,
			"by_source", rec.BySource, "duration_s", rec.DurationSeconds)
	}
	if s.onCycle != nil {
		s.onCycle(rec)
	}
	s.notify(ctx, rec)
	return rec, err
}

// Start registers the cycle with the driver; the first cycle runs at once.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.coordinator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if ctx.Err() != nil {
			return
		}
		if s.logger != nil {
			s.logger.Debug("scheduled cycle", "trigger", trigger.Format(time.RFC3339))
		}
		_, _ = s.RunOnce(ctx)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) notify(ctx context.Context, rec domain.RunRecord) {
	if s.notifier == nil || rec.ID == "" {
		return
	}
	if err := s.notifier.PublishDigest(ctx, report.Digest(rec)); err != nil && s.logger != nil {
		s.logger.Warn("digest not delivered", "error", err)
	}
}
