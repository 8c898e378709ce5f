package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clawdesk/clawdesk/internal/usage"
)

type testHistory struct {
	recorded []*usage.Snapshot
	pruneAge time.Duration
	pruned   int64
	err      error
}

func (h *testHistory) Record(_ context.Context, snap *usage.Snapshot) error {
	if h.err != nil {
		return h.err
	}
	h.recorded = append(h.recorded, snap)
	return nil
}

func (h *testHistory) Prune(_ context.Context, maxAge time.Duration) (int64, error) {
	h.pruneAge = maxAge
	return h.pruned, h.err
}

type testSweeper struct{ calls atomic.Int32 }

func (s *testSweeper) Sweep() int {
	s.calls.Add(1)
	return 2
}

func TestJobs_NamesAndSchedules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		job          Job
		wantName     string
		wantSchedule string
	}{
		{&UsageRecordJob{}, "usage_record", DefaultUsageSchedule},
		{&UsageRecordJob{ScheduleExpr: "0 * * * *"}, "usage_record", "0 * * * *"},
		{&HistoryPruneJob{}, "usage_prune", DefaultPruneSchedule},
		{&SweepJob{Label: "ratelimit"}, "sweep:ratelimit", DefaultSweepSchedule},
	}
	for _, tt := range tests {
		if tt.job.Name() != tt.wantName || tt.job.Schedule() != tt.wantSchedule {
			t.Errorf("%T: name=%q schedule=%q", tt.job, tt.job.Name(), tt.job.Schedule())
		}
	}
}

func TestUsageRecordJob_Run(t *testing.T) {
	t.Parallel()

	hist := &testHistory{}
	snap := &usage.Snapshot{Profile: "local", Timestamp: time.Now()}
	j := &UsageRecordJob{
		Capture: func(context.Context) (*usage.Snapshot, error) { return snap, nil },
		Store:   hist,
		Logger:  slog.Default(),
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(hist.recorded) != 1 || hist.recorded[0] != snap {
		t.Errorf("recorded = %v", hist.recorded)
	}
}

func TestUsageRecordJob_CaptureFailure(t *testing.T) {
	t.Parallel()

	hist := &testHistory{}
	j := &UsageRecordJob{
		Capture: func(context.Context) (*usage.Snapshot, error) { return nil, errors.New("timeout") },
		Store:   hist,
	}
	if err := j.Run(context.Background()); err == nil {
		t.Fatal("expected capture error")
	}
	if len(hist.recorded) != 0 {
		t.Error("nothing must be recorded on failure")
	}
}

func TestHistoryPruneJob_DefaultRetention(t *testing.T) {
	t.Parallel()

	hist := &testHistory{pruned: 4}
	if err := (&HistoryPruneJob{Store: hist, Logger: slog.Default()}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hist.pruneAge != DefaultRetention {
		t.Errorf("maxAge = %v", hist.pruneAge)
	}
}

func TestSweepJob_Run(t *testing.T) {
	t.Parallel()

	sw := &testSweeper{}
	j := &SweepJob{Label: "ratelimit", Target: sw}
	if err := j.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sw.calls.Load() != 1 {
		t.Errorf("sweeps = %d", sw.calls.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Error("canceled context must abort")
	}
}
