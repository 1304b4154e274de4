package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/kaskita/kaskita/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries ledger mutation events.
	QueueNotifications = "notifications"
	// TaskNotifyEvent publishes one ledger event to connected clients.
	TaskNotifyEvent = "notify:event"
)

// NewNotifyEventTask constructs an Asynq task for a ledger event.
func NewNotifyEventTask(ev notify.Event) (*asynq.Task, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode event: %w", err)
	}
	return asynq.NewTask(TaskNotifyEvent, data), nil
}
