package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeSweepEnqueuer struct {
	payload SessionSweepPayload
	calls   int
	err     error
}

func (f *fakeSweepEnqueuer) EnqueueSessionSweep(_ context.Context, payload SessionSweepPayload) (*asynq.TaskInfo, error) {
	f.calls++
	f.payload = payload
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func jobsRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHandlerEnqueuesSessionSweep(t *testing.T) {
	enqueuer := &fakeSweepEnqueuer{}
	router := jobsRouter(NewHandler(nil, enqueuer, slog.Default()))

	body := strings.NewReader(`{"pattern":"session:stale:*"}`)
	req := httptest.NewRequest(http.MethodPost, "/jobs/sessions/sweep", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1, enqueuer.calls)
	require.Equal(t, "session:stale:*", enqueuer.payload.Pattern)
	require.Contains(t, rr.Body.String(), `"task_id":"task-1"`)
}

func TestHandlerEnqueueDefaultsPattern(t *testing.T) {
	enqueuer := &fakeSweepEnqueuer{}
	router := jobsRouter(NewHandler(nil, enqueuer, slog.Default()))

	req := httptest.NewRequest(http.MethodPost, "/jobs/sessions/sweep", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1, enqueuer.calls)
	require.Empty(t, enqueuer.payload.Pattern)
}

func TestHandlerEnqueueRejectsMalformedBody(t *testing.T) {
	enqueuer := &fakeSweepEnqueuer{}
	router := jobsRouter(NewHandler(nil, enqueuer, slog.Default()))

	req := httptest.NewRequest(http.MethodPost, "/jobs/sessions/sweep", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Zero(t, enqueuer.calls)
}

func TestHandlerEnqueueReportsBrokerFailure(t *testing.T) {
	enqueuer := &fakeSweepEnqueuer{err: errors.New("broker down")}
	router := jobsRouter(NewHandler(nil, enqueuer, slog.Default()))

	req := httptest.NewRequest(http.MethodPost, "/jobs/sessions/sweep", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandlerEnqueueUnavailableWithoutClient(t *testing.T) {
	router := jobsRouter(NewHandler(nil, nil, slog.Default()))

	req := httptest.NewRequest(http.MethodPost, "/jobs/sessions/sweep", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
