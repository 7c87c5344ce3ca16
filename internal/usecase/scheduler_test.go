package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"NewsCollector/internal/domain"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) PublishDigest(ctx context.Context, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, digest)
	return nil
}

func TestSchedulerRunOnceNotifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.source.set("feed", centralBank())
	notifier := &recordingNotifier{}

	var seen []domain.RunRecord
	s := NewScheduler(SchedulerDeps{
		Coordinator:  f.coordinator(nil),
		Notifier:     notifier,
		CycleTimeout: time.Minute,
		OnCycle:      func(rec domain.RunRecord) { seen = append(seen, rec) },
	})

	rec, err := s.RunOnce(context.Background())
	if err != nil || rec.TotalNew != 1 {
		t.Fatalf("RunOnce: %+v, %v", rec, err)
	}
	if len(seen) != 1 {
		t.Fatalf("OnCycle not called")
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "1 new articles") {
		t.Fatalf("unexpected digest %v", notifier.messages)
	}
}

func TestSchedulerAppliesCycleTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.source.set("slow", centralBank())
	f.source.block = true

	s := NewScheduler(SchedulerDeps{Coordinator: f.coordinator(nil), CycleTimeout: 20 * time.Millisecond})
	rec, err := s.RunOnce(context.Background())
	if !errors.Is(err, ErrCycleTimeout) || rec.Status != domain.RunTimeout {
		t.Fatalf("expected timeout run, got %+v, %v", rec, err)
	}
}

type fakeDriver struct {
	job func(time.Time)
}

func (d *fakeDriver) Start(ctx context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *fakeDriver) Stop(ctx context.Context) error { return nil }

func TestSchedulerStartRegistersJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.source.set("feed", centralBank())
	driver := &fakeDriver{}
	notifier := &recordingNotifier{}

	s := NewScheduler(SchedulerDeps{Driver: driver, Coordinator: f.coordinator(nil), Notifier: notifier})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if driver.job == nil {
		t.Fatalf("job not registered")
	}
	driver.job(cycleNow)
	driver.job(cycleNow)

	hist, _ := f.history.Load(context.Background())
	if hist.TotalRuns != 2 || hist.TotalCollected != 1 {
		t.Fatalf("unexpected history %+v", hist)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
