package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/pkg/platform/audit"
	auditmemory "credence/pkg/platform/audit/store/memory"
)

func TestAsyncWorkerPersistsQueuedEvents(t *testing.T) {
	sink := auditmemory.New()
	queue := audit.NewAsyncStore(8, nil)
	worker, err := audit.NewWorker(queue, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	publisher := audit.NewPublisher(queue)
	require.NoError(t, publisher.Emit(ctx, audit.Event{Action: audit.ActionVoteCast, Identity: "async-a"}))
	require.NoError(t, publisher.Emit(ctx, audit.Event{Action: audit.ActionEpochAdvanced}))

	require.Eventually(t, func() bool {
		return len(sink.Events()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	events := sink.Events()
	assert.Equal(t, audit.ActionVoteCast, events[0].Action)
	assert.NotEmpty(t, events[0].ID)
}

func TestAsyncStoreDropsWhenFull(t *testing.T) {
	// No worker draining: the queue fills and further appends must not block.
	queue := audit.NewAsyncStore(2, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, queue.Append(ctx, audit.Event{Action: audit.ActionVoteCast}))
	}
}

func TestWorkerDrainsOnShutdown(t *testing.T) {
	sink := auditmemory.New()
	queue := audit.NewAsyncStore(8, nil)
	worker, err := audit.NewWorker(queue, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Append(context.Background(), audit.Event{Action: audit.ActionItemResolved}))
	}

	require.NoError(t, worker.Run(ctx))
	assert.Len(t, sink.Events(), 3)
}
