package reporting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"lithipos/internal/ledger"
)

// drainLockKey guards the queue drain across server instances; without it,
// two instances would double-submit every queued receipt on each tick.
const drainLockKey = "lithipos:report-worker"

// QueueStore lists receipts awaiting re-submission.
type QueueStore interface {
	ListUnreported(ctx context.Context, pendingBefore time.Time, limit int) ([]*ledger.Receipt, error)
}

// pendingGrace is how long a receipt may sit in PENDING before the worker
// treats it as stranded. Fresh PENDING receipts belong to an in-flight
// submit; one older than this was orphaned by a crash or a failed status
// write mid-report and must be re-submitted to keep reporting at-least-once.
const pendingGrace = 5 * time.Minute

// Worker periodically re-submits receipts stuck in QUEUED, plus PENDING
// receipts older than pendingGrace. The interval is a plain fixed tick; the
// contract is only about the state left behind, and a receipt stays
// unreported until the authority acknowledges it.
type Worker struct {
	reporter *Reporter
	queue    QueueStore
	interval time.Duration
	batch    int
	locker   *redislock.Client
	logger   *slog.Logger
}

// NewWorker builds the retry worker. redisClient may be nil; the worker then
// runs without a cross-instance lock, which is fine for a single node.
func NewWorker(reporter *Reporter, queue QueueStore, interval time.Duration, redisClient redis.UniversalClient, logger *slog.Logger) *Worker {
	w := &Worker{
		reporter: reporter,
		queue:    queue,
		interval: interval,
		batch:    100,
		logger:   logger,
	}
	if redisClient != nil {
		w.locker = redislock.New(redisClient)
	}
	return w
}

// Run drains the queue every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	if w.locker != nil {
		lock, err := w.locker.Obtain(ctx, drainLockKey, w.interval, nil)
		if err != nil {
			if !errors.Is(err, redislock.ErrNotObtained) {
				w.logger.WarnContext(ctx, "report worker lock error", "error", err.Error())
			}
			return
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	unreported, err := w.queue.ListUnreported(ctx, time.Now().Add(-pendingGrace), w.batch)
	if err != nil {
		w.logger.ErrorContext(ctx, "list unreported receipts", "error", err.Error())
		return
	}
	if len(unreported) == 0 {
		return
	}

	w.logger.InfoContext(ctx, "retrying unreported receipts", "count", len(unreported))
	for _, receipt := range unreported {
		if ctx.Err() != nil {
			return
		}
		status, _ := w.reporter.Report(ctx, receipt)
		if status == ledger.StatusReported {
			w.logger.InfoContext(ctx, "retried receipt acknowledged",
				"device_id", receipt.DeviceID, "global_no", receipt.GlobalNo)
		}
	}
}
