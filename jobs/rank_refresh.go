package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridianmc/meridian-core/internal/events"
	jobmetrics "github.com/meridianmc/meridian-core/internal/jobs"
	"github.com/meridianmc/meridian-core/internal/rank"
	"github.com/meridianmc/meridian-core/internal/shared"
)

// RankSource lists the full rank catalog.
type RankSource interface {
	ListRanks(ctx context.Context) ([]rank.Rank, error)
}

// RankRefreshJob reloads the rank catalog from the store and announces the
// new revision on the bus so every instance swaps catalogs together.
type RankRefreshJob struct {
	Ranks     RankSource
	Catalog   *rank.Catalog
	Publisher *events.Publisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewRankRefreshJob wires dependencies for the refresh handler.
func NewRankRefreshJob(ranks RankSource, catalog *rank.Catalog, publisher *events.Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *RankRefreshJob {
	return &RankRefreshJob{Ranks: ranks, Catalog: catalog, Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handle processes rank refresh tasks.
func (j *RankRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ranks == nil {
		return errors.New("rank refresh: handler not configured")
	}
	var payload RankRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskRankRefresh)
	ranks, err := j.Ranks.ListRanks(ctx)
	if err != nil {
		j.Logger.Error("rank catalog reload failed", "error", err)
		return tracker.End(err)
	}
	if err := j.Catalog.Replace(ranks); err != nil {
		j.Logger.Error("rank catalog rejected", "error", err)
		_ = tracker.End(err)
		return asynq.SkipRetry
	}

	if _, err := j.Publisher.Publish(ctx, shared.TopicRankCatalogChanged, "catalog", events.TypeRankCatalogUpdated, RankRefreshPayload{Reason: payload.Reason}); err != nil {
		j.Logger.Error("rank catalog announce failed", "error", err)
		return tracker.End(err)
	}
	j.Logger.Info("rank catalog refreshed", "ranks", len(ranks), "reason", payload.Reason)
	return tracker.End(nil)
}
