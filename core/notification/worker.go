package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/classync/classync/core"
)

const (
	drainBatchSize  = 100
	defaultInterval = 10 * time.Second
)

// Worker redelivers the notifications waiting in the outbox.
// an entry is retried with the backoff of the policy and dropped after policy.MaxAttempts.
type Worker struct {
	outbox     Outbox
	dispatcher *Dispatcher
	policy     core.RetryPolicy
	interval   time.Duration
	logger     core.Logger
	now        core.Clock
}

func NewWorker(outbox Outbox, dispatcher *Dispatcher, policy core.RetryPolicy, interval time.Duration, logger core.Logger, now core.Clock) *Worker {
	vala.BeginValidation().Validate(
		vala.IsNotNil(outbox, "outbox"),
		vala.IsNotNil(dispatcher, "dispatcher"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(now, "now"),
	).CheckAndPanic()

	if interval <= 0 {
		interval = defaultInterval
	}

	return &Worker{
		outbox:     outbox,
		dispatcher: dispatcher,
		policy:     policy,
		interval:   interval,
		logger:     logger,
		now:        now,
	}
}

// Run drains the outbox every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("notification worker started")
	defer w.logger.Info("notification worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := w.Drain(ctx); err != nil {
				w.logger.Error("draining notification outbox", err)
			}
		}
	}
}

// Drain makes one delivery attempt for every due entry.
func (w *Worker) Drain(ctx context.Context) (delivered, dropped int, err error) {
	now := w.now().UTC()
	entries, err := w.outbox.Due(ctx, now, drainBatchSize)
	if err != nil {
		return 0, 0, errors.Wrap(err, "listing due entries")
	}

	for _, entry := range entries {
		failed, dErr := w.dispatcher.Deliver(ctx, entry.Notification, entry.Channels)
		if dErr == nil && len(failed) == 0 {
			if err = w.outbox.Remove(ctx, entry.ID); err != nil {
				return delivered, dropped, errors.Wrap(err, "removing delivered entry")
			}
			delivered++
			continue
		}

		entry.Attempts++
		if entry.Attempts >= w.policy.MaxAttempts {
			w.logger.Error(fmt.Sprintf("notification %s: giving up after %d attempts", entry.ID, entry.Attempts), dErr)
			if err = w.outbox.Remove(ctx, entry.ID); err != nil {
				return delivered, dropped, errors.Wrap(err, "removing dropped entry")
			}
			dropped++
			continue
		}

		entry.Channels = failed
		entry.NextAttemptAt = now.Add(w.policy.Delay(entry.Attempts))
		if dErr != nil {
			entry.LastError = dErr.Error()
		}
		if err = w.outbox.Reschedule(ctx, entry); err != nil {
			return delivered, dropped, errors.Wrap(err, "rescheduling entry")
		}
	}
	return delivered, dropped, nil
}
