//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"credence/pkg/platform/audit"
	auditkafka "credence/pkg/platform/audit/kafka"
	"credence/pkg/testutil/containers"
)

func TestKafkaAuditStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	broker := containers.StartRedpanda(t)
	ctx := context.Background()
	topic := "credence.audit.test"

	store, err := auditkafka.New(ctx, []string{broker.Broker}, topic)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	publisher := audit.NewPublisher(store)

	events := []audit.Event{
		{Action: audit.ActionIdentityBootstrapped, Identity: "kafka-alice"},
		{Action: audit.ActionVoteCast, Identity: "kafka-alice", Decision: "true", Epoch: 3},
		{Action: audit.ActionInviterSlashed, Identity: "kafka-bob", Actor: "cascade"},
	}
	for _, ev := range events {
		require.NoError(t, publisher.Emit(ctx, ev))
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var got []audit.Event
	for len(got) < len(events) {
		fetches := consumer.PollFetches(pollCtx)
		require.NoError(t, pollCtx.Err(), "timed out waiting for audit events")
		fetches.EachRecord(func(record *kgo.Record) {
			var ev audit.Event
			require.NoError(t, json.Unmarshal(record.Value, &ev))
			got = append(got, ev)
		})
	}

	require.Len(t, got, len(events))
	for i, ev := range got {
		assert.Equal(t, events[i].Action, ev.Action)
		assert.NotEmpty(t, ev.ID, "publisher must stamp event IDs")
		assert.False(t, ev.Timestamp.IsZero(), "publisher must stamp timestamps")
	}
	assert.Equal(t, "true", got[1].Decision)
	assert.Equal(t, "cascade", got[2].Actor)
}
