package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/wellpoints/internal/metrics"
	"github.com/dukerupert/wellpoints/internal/model"
)

// Appender persists a single ledger entry.
type Appender interface {
	Append(ctx context.Context, e model.LedgerEntry) error
}

// Recorder appends ledger entries on a background goroutine. Record never
// blocks: when the queue is full the entry is dropped and logged. A failed
// append is logged and counted; the point award it describes stands.
type Recorder struct {
	mu       sync.RWMutex
	appender Appender
	queue    chan model.LedgerEntry
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRecorder creates a recorder with a queue of bufferSize entries.
func NewRecorder(a Appender, bufferSize int, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Recorder{
		appender: a,
		queue:    make(chan model.LedgerEntry, bufferSize),
		timeout:  5 * time.Second,
		metrics:  m,
		logger:   logger,
	}
}

// Record queues an entry for appending.
func (r *Recorder) Record(e model.LedgerEntry) {
	select {
	case r.queue <- e:
	default:
		r.metrics.LedgerWrite("dropped")
		r.logger.Error("ledger queue full, entry dropped",
			"user_id", e.UserID, "challenge_key", e.ChallengeKey,
			"points", e.PointsAwarded, "completion_id", e.CompletionID)
	}
}

// Start begins draining the queue.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case e := <-r.queue:
				r.write(e)
			case <-ctx.Done():
				r.drain()
				return
			}
		}
	}()
}

// Stop stops the loop after writing whatever is still queued.
func (r *Recorder) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		default:
			return
		}
	}
}

func (r *Recorder) write(e model.LedgerEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.appender.Append(ctx, e); err != nil {
		r.metrics.LedgerWrite("error")
		r.logger.Error("ledger write failed",
			"user_id", e.UserID, "challenge_key", e.ChallengeKey,
			"points", e.PointsAwarded, "completion_id", e.CompletionID, "error", err)
		return
	}
	r.metrics.LedgerWrite("ok")
}

// Reason formats the ledger reason for a completed challenge.
func Reason(title string) string {
	return fmt.Sprintf("Completed challenge %s", title)
}
