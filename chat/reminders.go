package chat

import (
	"context"
	"time"

	"github.com/powerfulqa/aszune-ai-bot-sub000/database"
	"go.uber.org/zap"
)

// DeliverFunc hands a due reminder to the messaging transport.
type DeliverFunc func(ctx context.Context, reminder database.Reminder) error

// RunReminderLoop polls for due reminders and delivers them until ctx is
// cancelled. Delivery failures leave the reminder unsent so the next poll
// retries it.
func RunReminderLoop(ctx context.Context, db *database.PostgresStore, interval time.Duration, deliver DeliverFunc, logger *zap.Logger) {
	if db == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		due, err := db.DueReminders(pollCtx, time.Now())
		cancel()
		if err != nil {
			logger.Warn("Failed to load due reminders", zap.Error(err))
			continue
		}

		for _, reminder := range due {
			deliverCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := deliver(deliverCtx, reminder)
			cancel()
			if err != nil {
				logger.Warn("Reminder delivery failed, will retry",
					zap.Error(err),
					zap.String("reminder_id", reminder.ID.String()))
				continue
			}

			markCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := db.MarkReminderSent(markCtx, reminder.ID); err != nil {
				logger.Warn("Failed to mark reminder sent", zap.Error(err))
			}
			cancel()
		}
	}
}
