package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawdesk/clawdesk/internal/usage"
)

// Default schedules.
const (
	DefaultUsageSchedule = "*/15 * * * *"
	DefaultPruneSchedule = "0 3 * * *"
	DefaultSweepSchedule = "*/5 * * * *"
)

// DefaultRetention is how long usage history is kept.
const DefaultRetention = 30 * 24 * time.Hour

// SnapshotRecorder is the subset of usage.History the record job needs.
type SnapshotRecorder interface {
	Record(ctx context.Context, snap *usage.Snapshot) error
}

// HistoryPruner is the subset of usage.History the prune job needs.
type HistoryPruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Sweeper drops idle state, such as empty rate limiter buckets.
type Sweeper interface {
	Sweep() int
}

// UsageRecordJob captures a usage snapshot of the active profile and
// appends it to the history store.
type UsageRecordJob struct {
	// Capture resolves the active profile and returns its snapshot.
	Capture      func(ctx context.Context) (*usage.Snapshot, error)
	Store        SnapshotRecorder
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultUsageSchedule
}

var _ Job = (*UsageRecordJob)(nil)

// Name implements Job.
func (j *UsageRecordJob) Name() string { return "usage_record" }

// Schedule implements Job.
func (j *UsageRecordJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultUsageSchedule
}

// Run implements Job.
func (j *UsageRecordJob) Run(ctx context.Context) error {
	snap, err := j.Capture(ctx)
	if err != nil {
		return fmt.Errorf("cron: capture usage: %w", err)
	}
	if err := j.Store.Record(ctx, snap); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Debug("usage snapshot recorded", "profile", snap.Profile)
	}
	return nil
}

// HistoryPruneJob deletes usage history older than MaxAge.
type HistoryPruneJob struct {
	Store        HistoryPruner
	MaxAge       time.Duration // zero = DefaultRetention
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultPruneSchedule
}

var _ Job = (*HistoryPruneJob)(nil)

// Name implements Job.
func (j *HistoryPruneJob) Name() string { return "usage_prune" }

// Schedule implements Job.
func (j *HistoryPruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultPruneSchedule
}

// Run implements Job.
func (j *HistoryPruneJob) Run(ctx context.Context) error {
	maxAge := j.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	n, err := j.Store.Prune(ctx, maxAge)
	if err != nil {
		return err
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("pruned usage history", "count", n)
	}
	return nil
}

// SweepJob calls Sweep on Target.
type SweepJob struct {
	Label        string
	Target       Sweeper
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultSweepSchedule
}

var _ Job = (*SweepJob)(nil)

// Name implements Job.
func (j *SweepJob) Name() string { return "sweep:" + j.Label }

// Schedule implements Job.
func (j *SweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultSweepSchedule
}

// Run implements Job.
func (j *SweepJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: sweep cancelled: %w", err)
	}
	if n := j.Target.Sweep(); n > 0 && j.Logger != nil {
		j.Logger.Debug("swept idle entries", "target", j.Label, "count", n)
	}
	return nil
}
