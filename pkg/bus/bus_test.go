package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePreservesArrivalOrder(t *testing.T) {
	q := NewQueue(8)
	for i := 1; i <= 3; i++ {
		require.True(t, q.Publish(InboundEvent{UpdateID: i}))
	}
	assert.Equal(t, 3, q.Len())

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		ev, ok := q.Consume(ctx)
		require.True(t, ok)
		assert.Equal(t, i, ev.UpdateID)
	}
}

func TestQueueFullDropsAfterTimeout(t *testing.T) {
	q := NewQueue(1)
	q.writeTimeout = 10 * time.Millisecond

	require.True(t, q.Publish(InboundEvent{UpdateID: 1}))
	start := time.Now()
	assert.False(t, q.Publish(InboundEvent{UpdateID: 2}))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestQueueCloseDrainsThenStops(t *testing.T) {
	q := NewQueue(4)
	require.True(t, q.Publish(InboundEvent{UpdateID: 7}))
	q.Close()
	q.Close()

	assert.False(t, q.Publish(InboundEvent{UpdateID: 8}))

	ev, ok := q.Consume(context.Background())
	require.True(t, ok)
	assert.Equal(t, 7, ev.UpdateID)

	_, ok = q.Consume(context.Background())
	assert.False(t, ok)
}

func TestQueueConsumeHonorsContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Consume(ctx)
	assert.False(t, ok)
}

func TestInboundEventIsCommand(t *testing.T) {
	assert.True(t, InboundEvent{Discriminator: "/start"}.IsCommand())
	assert.False(t, InboundEvent{Discriminator: "/"}.IsCommand())
	assert.False(t, InboundEvent{Discriminator: "KPI"}.IsCommand())
}
