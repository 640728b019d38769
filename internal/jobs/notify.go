package jobs

import (
	"context"
	"time"

	"github.com/produvia/kryptos-go/internal/logger"
	"go.uber.org/zap"
)

// Notifier pushes user-facing messages about a run onto the updates queue.
// Jobs without a notify channel produce no messages.
type Notifier struct {
	store  Store
	logger *logger.Logger
}

// NewNotifier creates a notifier over the shared store.
func NewNotifier(store Store, log *logger.Logger) *Notifier {
	return &Notifier{store: store, logger: log.Named("notify")}
}

// Notify enqueues a message for the job's notify channel. Delivery failures
// are logged; a run never fails because a notification did not go out.
func (n *Notifier) Notify(ctx context.Context, job *Job, message string) {
	if job.Meta.NotifyChannel == "" {
		return
	}

	update := Notification{
		ChannelID: job.Meta.NotifyChannel,
		Message:   message,
		Time:      time.Now().UTC(),
	}

	if err := n.store.PushUpdate(ctx, update); err != nil {
		n.logger.Warn("failed to push notification",
			zap.String("run_id", job.ID),
			zap.Error(err),
		)
	}
}
