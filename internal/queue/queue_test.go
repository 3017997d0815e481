package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	sent := Message{Type: TypePendingCreated, RecordID: "r1", UFID: "12345678", At: time.Now().UTC()}
	require.NoError(t, q.Publish(ctx, sent))

	select {
	case got := <-msgs:
		assert.Equal(t, sent.RecordID, got.RecordID)
		assert.Equal(t, TypePendingCreated, got.Type)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestInMemoryConsumeStopsWithoutReceiver(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: TypePendingCreated, RecordID: "r1"}))

	// let the forwarder pick up the message and block on the unread channel
	time.Sleep(10 * time.Millisecond)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("consumer goroutine did not stop after cancel")
		}
	}
}

func TestInMemoryPublishHonorsCancel(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Publish(ctx, Message{Type: TypePendingResolved})
	assert.ErrorIs(t, err, context.Canceled)
}
