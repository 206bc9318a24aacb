// Package jobs holds the background maintenance tasks that keep the live
// state tier honest: reaping sessions left behind by crashed game servers and
// broadcasting rank catalog refreshes.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every maintenance task runs on.
	QueueDefault = "default"
	// TaskSessionReap closes sessions whose heartbeats stopped.
	TaskSessionReap = "session:reap"
	// TaskRankRefresh reloads the rank catalog and fans the change out.
	TaskRankRefresh = "rank:refresh"
	// TaskTouchFlush folds session heartbeats into profile last-seen times.
	TaskTouchFlush = "profile:touch-flush"
)

// SessionReapPayload bounds a reap run.
type SessionReapPayload struct {
	// Cutoff overrides the configured idle window when non-zero.
	Cutoff time.Duration `json:"cutoff,omitempty"`
}

// NewSessionReapTask constructs a session reap task.
func NewSessionReapTask(payload SessionReapPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionReap, data), nil
}

// RankRefreshPayload carries optional context for a catalog refresh.
type RankRefreshPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewRankRefreshTask constructs a rank refresh task.
func NewRankRefreshTask(payload RankRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRankRefresh, data), nil
}

// NewTouchFlushTask constructs a touch flush task. It carries no payload.
func NewTouchFlushTask() *asynq.Task {
	return asynq.NewTask(TaskTouchFlush, nil)
}
