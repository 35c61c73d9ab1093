package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DeliversInOrderThenCloses(t *testing.T) {
	q := New[int](4)

	go func() {
		for i := 0; i < 10; i++ {
			if err := q.Send(context.Background(), i); err != nil {
				q.Close(err)
				return
			}
		}
		q.Close(nil)
	}()

	var got []int
	for item := range q.Items() {
		got = append(got, item)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.NoError(t, q.Err())
}

func TestQueue_FullQueueBlocksProducer(t *testing.T) {
	q := New[int](2)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, 1))
	require.NoError(t, q.Send(ctx, 2))

	sent := make(chan error, 1)
	go func() {
		sent <- q.Send(ctx, 3)
	}()

	select {
	case <-sent:
		t.Fatal("Send returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 1, <-q.Items())

	select {
	case err := <-sent:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send did not resume after the consumer drained an item")
	}
	assert.Equal(t, 2, <-q.Items())
	assert.Equal(t, 3, <-q.Items())
}

func TestQueue_CancelUnblocksProducer(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Send(context.Background(), 1))

	sent := make(chan error, 1)
	go func() {
		sent <- q.Send(context.Background(), 2)
	}()

	q.Cancel()

	select {
	case err := <-sent:
		assert.ErrorIs(t, err, ErrConsumerGone)
	case <-time.After(time.Second):
		t.Fatal("Send did not observe cancellation")
	}

	assert.ErrorIs(t, q.Send(context.Background(), 3), ErrConsumerGone)
}

func TestQueue_SendAfterCancelFailsEvenWithRoom(t *testing.T) {
	q := New[int](10)
	q.Cancel()
	q.Cancel()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, q.Send(context.Background(), 1), ErrConsumerGone)
	}
	q.Close(nil)
	_, open := <-q.Items()
	assert.False(t, open, "nothing should have been enqueued after Cancel")
}

func TestQueue_ContextCancellation(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Send(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, q.Send(ctx, 2), context.Canceled)
}

func TestQueue_CloseRecordsFirstError(t *testing.T) {
	q := New[string](0)
	boom := errors.New("upstream failed")

	q.Close(boom)
	q.Close(nil)

	_, open := <-q.Items()
	assert.False(t, open)
	assert.ErrorIs(t, q.Err(), boom)
}
