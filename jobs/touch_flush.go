package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridianmc/meridian-core/internal/jobs"
)

// SeenFlusher folds live session heartbeats into profile last-seen times.
type SeenFlusher interface {
	FlushSeen(ctx context.Context) (int64, error)
}

// TouchFlushJob keeps players.last_seen_at current for everyone online.
// Heartbeats only touch the session row; this job batches the profile writes.
type TouchFlushJob struct {
	Players SeenFlusher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTouchFlushJob wires dependencies for the touch flush handler.
func NewTouchFlushJob(players SeenFlusher, logger *slog.Logger, metrics *jobmetrics.Metrics) *TouchFlushJob {
	return &TouchFlushJob{Players: players, Logger: logger, Metrics: metrics}
}

// Handle processes touch flush tasks.
func (j *TouchFlushJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Players == nil {
		return errors.New("touch flush: handler not configured")
	}
	tracker := j.Metrics.Track(TaskTouchFlush)
	flushed, err := j.Players.FlushSeen(ctx)
	if err != nil {
		j.Logger.Error("touch flush failed", "error", err)
		return tracker.End(err)
	}
	if flushed > 0 {
		j.Logger.Debug("flushed last-seen times", "profiles", flushed)
	}
	return tracker.End(nil)
}
