package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/kaskita/kaskita/internal/jobs"
	"github.com/kaskita/kaskita/internal/notify"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: uuid.NewString(), Queue: QueueNotifications, Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestClientEnqueuesAndJobPublishes(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)
	ev := notify.Event{ID: uuid.New(), Type: notify.EventPaymentRecorded, OrganizationID: uuid.New(), Amount: 50000}
	require.NoError(t, client.Notify(context.Background(), ev))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskNotifyEvent, enq.tasks[0].Type())

	var published []notify.Event
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewNotifyEventJob(notify.NotifierFunc(func(_ context.Context, got notify.Event) error {
		published = append(published, got)
		return nil
	}), nil, metrics)

	require.NoError(t, job.Handle(context.Background(), enq.tasks[0]))
	require.Len(t, published, 1)
	require.Equal(t, ev.ID, published[0].ID)
	require.Equal(t, ev.OrganizationID, published[0].OrganizationID)

	families, err := registry.Gather()
	require.NoError(t, err)
	var runs float64
	for _, mf := range families {
		if mf.GetName() != "kaskita_jobs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			runs += m.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), runs)
}

func TestJobFailures(t *testing.T) {
	boom := errors.New("redis down")
	job := NewNotifyEventJob(notify.NotifierFunc(func(context.Context, notify.Event) error { return boom }), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewNotifyEventTask(notify.Event{ID: uuid.New(), Type: notify.EventDuesCreated, OrganizationID: uuid.New()})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)

	err = job.Handle(context.Background(), asynq.NewTask(TaskNotifyEvent, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *NotifyEventJob
	require.Error(t, unconfigured.Handle(context.Background(), task))
}

func TestClientNotifyPropagatesEnqueueError(t *testing.T) {
	boom := errors.New("queue full")
	client := NewClientWith(&fakeEnqueuer{err: boom})
	require.ErrorIs(t, client.Notify(context.Background(), notify.Event{Type: notify.EventMemberSaved}), boom)

	var nilClient *Client
	require.NoError(t, nilClient.Notify(context.Background(), notify.Event{}))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueNotifications, Pending: 4}}, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"notifications","pending":4,"retry":0,"failed":0}`, rr.Body.String())

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("down")}, nil).MountRoutes(r)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "queue unavailable"))
}
