package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestHeartbeatJobStampsKey(t *testing.T) {
	mr, client := newTestRedis(t)
	job := NewHeartbeatJob(client, slog.Default(), nil)

	task, err := NewHeartbeatTask("scheduler")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))

	val, err := mr.Get("ops:worker_heartbeat")
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, val)
	require.NoError(t, err)

	ttl := mr.TTL("ops:worker_heartbeat")
	require.Greater(t, ttl, time.Duration(0))
}

func TestSessionSweepRemovesOnlyOrphans(t *testing.T) {
	mr, client := newTestRedis(t)
	job := NewSessionSweepJob(client, slog.Default(), nil)

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "session:live", "{}", time.Hour).Err())
	require.NoError(t, client.Set(ctx, "session:orphan", "{}", 0).Err())
	require.NoError(t, client.Set(ctx, "permissions:unrelated", "[]", 0).Err())

	task, err := NewSessionSweepTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))

	require.True(t, mr.Exists("session:live"))
	require.False(t, mr.Exists("session:orphan"))
	require.True(t, mr.Exists("permissions:unrelated"))
}

func TestSessionSweepRejectsMalformedPayload(t *testing.T) {
	_, client := newTestRedis(t)
	job := NewSessionSweepJob(client, slog.Default(), nil)

	task := asynq.NewTask(TaskSessionSweep, []byte("{not json"))
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}
