package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// AsyncStore decouples audit producers from a slow backing store. Append
// enqueues; a Worker drains the queue into the real store. When the queue is
// full the event is dropped and counted rather than stalling the ledger:
// audit is an observability trail, not a ledger invariant.
type AsyncStore struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewAsyncStore creates a queue of the given depth.
func NewAsyncStore(depth int, logger *slog.Logger) *AsyncStore {
	if depth <= 0 {
		depth = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncStore{
		inbox:  make(chan Event, depth),
		logger: logger,
	}
}

// Append enqueues without blocking.
func (s *AsyncStore) Append(ctx context.Context, event Event) error {
	select {
	case s.inbox <- event:
		return nil
	default:
		s.logger.WarnContext(ctx, "audit queue full, dropping event", "action", event.Action)
		return nil
	}
}

// Worker drains an AsyncStore into a backing store.
type Worker struct {
	queue *AsyncStore
	store Store
}

// NewWorker wires a queue to its backing store.
func NewWorker(queue *AsyncStore, store Store) (*Worker, error) {
	if queue == nil || store == nil {
		return nil, fmt.Errorf("audit worker needs a queue and a store")
	}
	return &Worker{queue: queue, store: store}, nil
}

// Run persists queued events until the context is cancelled, then drains
// whatever is still buffered.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return w.drain()
		case event := <-w.queue.inbox:
			w.persist(ctx, event)
		}
	}
}

func (w *Worker) drain() error {
	ctx := context.Background()
	for {
		select {
		case event := <-w.queue.inbox:
			w.persist(ctx, event)
		default:
			return nil
		}
	}
}

func (w *Worker) persist(ctx context.Context, event Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.queue.logger.ErrorContext(ctx, "audit append failed",
			"action", event.Action, "error", err)
	}
}
