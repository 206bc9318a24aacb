package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridianmc/meridian-core/internal/jobs"
	"github.com/meridianmc/meridian-core/internal/session"
)

// SessionReapJob closes out sessions whose game server stopped heartbeating,
// usually because the server crashed without sending disconnects.
type SessionReapJob struct {
	Registry *session.Registry
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Cutoff   time.Duration
	clock    func() time.Time
}

// NewSessionReapJob wires dependencies for the reap handler.
func NewSessionReapJob(registry *session.Registry, logger *slog.Logger, metrics *jobmetrics.Metrics, cutoff time.Duration) *SessionReapJob {
	return &SessionReapJob{
		Registry: registry,
		Logger:   logger,
		Metrics:  metrics,
		Cutoff:   cutoff,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes session reap tasks.
func (j *SessionReapJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Registry == nil {
		return errors.New("session reap: handler not configured")
	}
	var payload SessionReapPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	cutoff := j.Cutoff
	if payload.Cutoff > 0 {
		cutoff = payload.Cutoff
	}

	tracker := j.Metrics.Track(TaskSessionReap)
	reaped, err := j.Registry.ReapIdle(ctx, j.clock().Add(-cutoff))
	if err != nil {
		j.Logger.Error("session reap failed", "error", err)
		return tracker.End(err)
	}
	j.Metrics.AddReaped(reaped)
	if reaped > 0 {
		j.Logger.Info("reaped idle sessions", "count", reaped, "cutoff", cutoff.String())
	}
	return tracker.End(nil)
}
