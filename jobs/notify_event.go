package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kaskita/kaskita/internal/jobs"
	"github.com/kaskita/kaskita/internal/notify"
)

// NotifyEventJob forwards queued ledger events to the pub/sub broker.
type NotifyEventJob struct {
	Publisher notify.Notifier
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewNotifyEventJob wires dependencies for the notification handler.
func NewNotifyEventJob(publisher notify.Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyEventJob {
	return &NotifyEventJob{Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNotifyEvent tasks.
func (j *NotifyEventJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Publisher == nil {
		return errors.New("notify event: handler not configured")
	}
	var ev notify.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("notify event: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskNotifyEvent)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(
		slog.String("event", string(ev.Type)),
		slog.String("organization_id", ev.OrganizationID.String()),
	)
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = j.Publisher.Notify(publishCtx, ev); err != nil {
		logger.Error("publish notification", slog.Any("error", err))
		return err
	}
	logger.Debug("published notification", slog.String("event_id", ev.ID.String()))
	return nil
}

func (j *NotifyEventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNotifyEvent))
	}
	return slog.Default().With(slog.String("job", TaskNotifyEvent))
}

func (j *NotifyEventJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
