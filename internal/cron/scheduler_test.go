package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

// simpleJob is a minimal Job for scheduler tests.
type simpleJob struct {
	name     string
	schedule string
	runFunc  func(ctx context.Context) error
	mu       sync.Mutex
	calls    int
}

func (j *simpleJob) Name() string     { return j.name }
func (j *simpleJob) Schedule() string { return j.schedule }
func (j *simpleJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func TestScheduler_RegisterJob_DuplicateName(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	if err := s.RegisterJob(&simpleJob{name: "usage_record", schedule: "* * * * *"}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := s.RegisterJob(&simpleJob{name: "usage_record", schedule: "*/5 * * * *"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestScheduler_Start_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&simpleJob{name: "ok", schedule: "* * * * *"})
	_ = s.RegisterJob(&simpleJob{name: "bad", schedule: "every minute"})

	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if s.cron != nil {
		t.Error("a failed Start must not leave a running cron")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	_ = s.RegisterJob(&simpleJob{name: "noop", schedule: "* * * * *"})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	// Stopping twice is harmless.
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := NewScheduler(slog.Default()).Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestScheduler_RunJobSkipsOverlap(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	started := make(chan struct{})
	release := make(chan struct{})
	job := &simpleJob{
		name:     "slow",
		schedule: "* * * * *",
		runFunc: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	lock := s.locks["slow"]

	done := make(chan bool)
	go func() { done <- s.runJob(context.Background(), job, lock) }()
	<-started

	if s.runJob(context.Background(), job, lock) {
		t.Error("overlapping tick must be skipped")
	}
	close(release)
	if !<-done {
		t.Error("first tick should have run")
	}
	if job.calls != 1 {
		t.Errorf("calls = %d, want 1", job.calls)
	}
}

func TestScheduler_RunJobError(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	job := &simpleJob{
		name:     "failing",
		schedule: "* * * * *",
		runFunc:  func(context.Context) error { return errors.New("gateway unreachable") },
	}
	_ = s.RegisterJob(job)

	if !s.runJob(context.Background(), job, s.locks["failing"]) {
		t.Error("a failing job still counts as run")
	}
	// The lock is released after a failure.
	if !s.runJob(context.Background(), job, s.locks["failing"]) {
		t.Error("lock leaked after failure")
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{DefaultUsageSchedule, DefaultPruneSchedule, DefaultSweepSchedule, "0 0 1 1 *"} {
		if err := ValidateSchedule(expr); err != nil {
			t.Errorf("ValidateSchedule(%q) = %v", expr, err)
		}
	}
	for _, expr := range []string{"", "invalid", "60 * * * *", "* * * * * *"} {
		if err := ValidateSchedule(expr); err == nil {
			t.Errorf("ValidateSchedule(%q) accepted", expr)
		}
	}
}
