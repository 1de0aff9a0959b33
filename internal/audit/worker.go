package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"certexport/pkg/platform/sentinel"
)

// DefaultQueueSize bounds the number of events waiting for the worker.
const DefaultQueueSize = 1024

// Queue is a bounded in-process buffer implementing Store. Append never
// blocks: when the buffer is full the event is dropped and counted.
type Queue struct {
	inbox   chan Event
	dropped atomic.Int64
}

// NewQueue creates a queue buffering up to size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{inbox: make(chan Event, size)}
}

func (q *Queue) Append(_ context.Context, event Event) error {
	select {
	case q.inbox <- event:
		return nil
	default:
		q.dropped.Add(1)
		return fmt.Errorf("audit queue full: %w", sentinel.ErrUnavailable)
	}
}

// Dropped returns how many events were rejected because the queue was full.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Len returns the number of events waiting.
func (q *Queue) Len() int { return len(q.inbox) }

// Worker consumes audit events from a queue and forwards them to a sink.
// A failing sink is logged per event and does not stop the worker.
type Worker struct {
	sink   Store
	inbox  <-chan Event
	logger *slog.Logger
}

// NewWorker creates a worker draining queue into sink.
func NewWorker(sink Store, queue *Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{sink: sink, inbox: queue.inbox, logger: logger}
}

// Run forwards events until ctx is cancelled, then flushes what is already
// queued using a context that outlives the cancellation.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event := <-w.inbox:
			w.forward(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event := <-w.inbox:
			w.forward(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) forward(ctx context.Context, event Event) {
	if err := w.sink.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "audit sink append failed",
			"action", event.Action,
			"event_id", event.ID,
			"error", err,
		)
	}
}
