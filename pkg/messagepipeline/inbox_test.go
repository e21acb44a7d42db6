package messagepipeline_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-vizbridge/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueuePolicy(t *testing.T) {
	p, err := messagepipeline.ParseQueuePolicy("")
	require.NoError(t, err)
	assert.Equal(t, messagepipeline.PolicyBlock, p)

	p, err = messagepipeline.ParseQueuePolicy("drop_oldest")
	require.NoError(t, err)
	assert.Equal(t, messagepipeline.PolicyDropOldest, p)
	assert.Equal(t, "drop_oldest", p.String())

	_, err = messagepipeline.ParseQueuePolicy("lifo")
	assert.Error(t, err)
}

func TestInbox_DropOldestKeepsNewest(t *testing.T) {
	inbox := messagepipeline.NewInbox(2, messagepipeline.PolicyDropOldest)
	var acked atomic.Int32
	for _, id := range []string{"1", "2", "3", "4"} {
		ok := inbox.Push(context.Background(), messagepipeline.Message{ID: id, Ack: func() { acked.Add(1) }})
		require.True(t, ok)
	}
	inbox.Close()

	var ids []string
	for msg := range inbox.Messages() {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"3", "4"}, ids)
	assert.Equal(t, uint64(2), inbox.Dropped())
	assert.Equal(t, int32(2), acked.Load(), "dropped messages are acked")
}

func TestInbox_BlockWaitsForRoom(t *testing.T) {
	inbox := messagepipeline.NewInbox(1, messagepipeline.PolicyBlock)
	require.True(t, inbox.Push(context.Background(), messagepipeline.Message{ID: "1"}))

	pushed := make(chan bool, 1)
	go func() { pushed <- inbox.Push(context.Background(), messagepipeline.Message{ID: "2"}) }()

	select {
	case <-pushed:
		t.Fatal("push should block while the inbox is full")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, "1", (<-inbox.Messages()).ID)
	assert.True(t, <-pushed)
	assert.Equal(t, "2", (<-inbox.Messages()).ID)
}

func TestInbox_BlockHonoursContext(t *testing.T) {
	inbox := messagepipeline.NewInbox(1, messagepipeline.PolicyBlock)
	require.True(t, inbox.Push(context.Background(), messagepipeline.Message{ID: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, inbox.Push(ctx, messagepipeline.Message{ID: "2"}))
}

func TestInbox_CloseReleasesBlockedProducer(t *testing.T) {
	inbox := messagepipeline.NewInbox(1, messagepipeline.PolicyBlock)
	require.True(t, inbox.Push(context.Background(), messagepipeline.Message{ID: "1"}))

	pushed := make(chan bool, 1)
	go func() { pushed <- inbox.Push(context.Background(), messagepipeline.Message{ID: "2"}) }()
	time.Sleep(20 * time.Millisecond)
	inbox.Close()

	select {
	case ok := <-pushed:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the blocked producer")
	}

	msg, ok := <-inbox.Messages()
	require.True(t, ok, "queued message survives Close")
	assert.Equal(t, "1", msg.ID)
	_, ok = <-inbox.Messages()
	assert.False(t, ok)
	assert.False(t, inbox.Push(context.Background(), messagepipeline.Message{ID: "3"}))
}
