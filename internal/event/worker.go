package event

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/metrics"
	"github.com/zulandar/tempo/internal/models"
	"gorm.io/gorm"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 50
	defaultMaxAttempts  = 5
)

// Handler processes one delivered event. Handlers must tolerate seeing the
// same event more than once.
type Handler interface {
	Handle(ctx context.Context, ev models.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev models.Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev models.Event) error {
	return f(ctx, ev)
}

// RecomputeHandler recomputes the owner's active goals over the calendar day
// the event's entity was completed on.
func RecomputeHandler(engine *goal.Engine) Handler {
	return HandlerFunc(func(ctx context.Context, ev models.Event) error {
		from, to := goal.DayWindow(ev.CompletedAt.In(engine.Location()))
		_, err := engine.RecomputeAllActive(ctx, ev.UserID, from, to)
		return err
	})
}

// WorkerOpts configures a Worker.
type WorkerOpts struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Metrics      *metrics.Manager
}

// Worker drains the event outbox. An event is acknowledged only after its
// handler succeeds, so delivery is at-least-once.
type Worker struct {
	db      *gorm.DB
	handler Handler
	opts    WorkerOpts
}

// NewWorker returns a Worker that passes events from db to handler.
func NewWorker(db *gorm.DB, handler Handler, opts WorkerOpts) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Worker{db: db, handler: handler, opts: opts}
}

// Run polls until ctx is cancelled. A batch that fails to load is logged and
// retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	if w.db == nil {
		return fmt.Errorf("event: db is required")
	}
	if w.handler == nil {
		return fmt.Errorf("event: handler is required")
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessBatch(ctx); err != nil {
			logrus.WithError(err).Error("event: process batch")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch handles up to BatchSize pending events and returns how many
// were acknowledged. A failing event stays pending until it exhausts
// MaxAttempts; it does not stop the rest of the batch.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	evs, err := Pending(w.db.WithContext(ctx), w.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	acked := 0
	for i := range evs {
		if ctx.Err() != nil {
			break
		}
		ev := &evs[i]
		log := logrus.WithFields(logrus.Fields{
			"event_id": ev.ID,
			"kind":     ev.Kind,
			"user_id":  ev.UserID,
		})

		if herr := w.handler.Handle(ctx, *ev); herr != nil {
			dead, err := Fail(w.db, ev, herr, w.opts.MaxAttempts)
			if err != nil {
				log.WithError(err).Error("event: record failure")
				continue
			}
			if dead {
				w.opts.Metrics.EventHandled(string(ev.Kind), metrics.OutcomeDead)
				log.WithError(herr).WithField("attempts", ev.Attempts).Error("event: giving up")
			} else {
				w.opts.Metrics.EventHandled(string(ev.Kind), metrics.OutcomeRetry)
				log.WithError(herr).WithField("attempts", ev.Attempts).Warn("event: handler failed, will retry")
			}
			continue
		}
		if err := Acknowledge(w.db, ev.ID); err != nil {
			// The handler ran; a redelivery is harmless.
			log.WithError(err).Warn("event: acknowledge")
			continue
		}
		w.opts.Metrics.EventHandled(string(ev.Kind), metrics.OutcomeAcked)
		acked++
	}
	return acked, nil
}
