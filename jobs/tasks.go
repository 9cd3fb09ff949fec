package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/aegis-id/aegis/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskHeartbeat records worker liveness for dashboards and alerting.
	TaskHeartbeat = "ops:heartbeat"
	// TaskSessionSweep removes orphaned session records.
	TaskSessionSweep = "sessions:sweep"

	heartbeatKey = "ops:worker_heartbeat"
	heartbeatTTL = 5 * time.Minute
)

// HeartbeatPayload carries the scheduling source of a heartbeat tick.
type HeartbeatPayload struct {
	Source string `json:"source"`
}

// NewHeartbeatTask constructs an Asynq heartbeat task.
func NewHeartbeatTask(source string) (*asynq.Task, error) {
	data, err := json.Marshal(HeartbeatPayload{Source: source})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskHeartbeat, data), nil
}

// HeartbeatJob stamps a Redis key so operators can tell the worker is alive.
type HeartbeatJob struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewHeartbeatJob constructs a HeartbeatJob.
func NewHeartbeatJob(client *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *HeartbeatJob {
	return &HeartbeatJob{client: client, logger: logger, metrics: metrics}
}

// Handle processes TaskHeartbeat tasks.
func (j *HeartbeatJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("heartbeat")
	var payload HeartbeatPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := j.client.Set(ctx, heartbeatKey, now, heartbeatTTL).Err(); err != nil {
		return tracker.End(err)
	}
	j.logger.Info("worker heartbeat", slog.String("source", payload.Source), slog.String("at", now))
	return tracker.End(nil)
}

// SessionSweepPayload configures an orphaned-session sweep.
type SessionSweepPayload struct {
	Pattern string `json:"pattern"`
}

// NewSessionSweepTask constructs an Asynq session sweep task.
func NewSessionSweepTask(pattern string) (*asynq.Task, error) {
	data, err := json.Marshal(SessionSweepPayload{Pattern: pattern})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}

// SessionSweepJob deletes session keys that lost their expiry. Sessions
// normally expire through their Redis TTL; a key with no TTL is debris from
// an interrupted write and would otherwise live forever.
type SessionSweepJob struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSessionSweepJob constructs a SessionSweepJob.
func NewSessionSweepJob(client *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{client: client, logger: logger, metrics: metrics}
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("session_sweep")
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	pattern := payload.Pattern
	if pattern == "" {
		pattern = "session:*"
	}

	var removed int
	iter := j.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := j.client.TTL(ctx, key).Result()
		if err != nil {
			return tracker.End(err)
		}
		if ttl != -1 {
			continue
		}
		if err := j.client.Del(ctx, key).Err(); err != nil {
			return tracker.End(err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return tracker.End(err)
	}
	j.metrics.AddSweptSessions(removed)
	j.logger.Info("session sweep complete", slog.String("pattern", pattern), slog.Int("removed", removed))
	return tracker.End(nil)
}
