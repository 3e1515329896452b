package executor

import (
	"testing"
	"time"

	"github.com/nestor-run/nestor/pkg/protocol"
	"github.com/nestor-run/nestor/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveUpdate(t *testing.T, consumer *utils.BroadcastConsumer[*protocol.Event]) *protocol.TaskStatus {
	select {
	case event := <-consumer.Chan:
		require.Equal(t, protocol.EventUpdate, event.Type)
		require.NotNil(t, event.Update)
		return &event.Update.Status
	case <-time.After(time.Second):
		require.Fail(t, "no update received")
		return nil
	}
}

func TestStreamPost(t *testing.T) {
	outbound := utils.NewBroadcast[*protocol.Event]()
	defer outbound.Close()
	consumer := outbound.NewConsumer()
	defer consumer.Close()

	stream := NewStatusStream("agent-1", outbound)

	updateID := stream.Post(protocol.TaskStatus{TaskID: "t1", State: protocol.TaskRunning})
	assert.NotEmpty(t, updateID)
	assert.True(t, stream.HasUnacked())

	status := receiveUpdate(t, consumer)
	assert.Equal(t, "t1", status.TaskID)
	assert.Equal(t, protocol.TaskRunning, status.State)
	assert.Equal(t, updateID, status.UpdateID)
	assert.Equal(t, "agent-1", status.AgentID)
	assert.False(t, status.Timestamp.IsZero())

	// Every post mints a fresh identifier, even for identical states.
	other := stream.Post(protocol.TaskStatus{TaskID: "t1", State: protocol.TaskRunning})
	assert.NotEqual(t, updateID, other)
}

func TestStreamAcknowledge(t *testing.T) {
	outbound := utils.NewBroadcast[*protocol.Event]()
	defer outbound.Close()

	stream := NewStatusStream("agent-1", outbound)

	updateID := stream.Post(protocol.TaskStatus{TaskID: "t1", State: protocol.TaskFinished})
	assert.Equal(t, 1, stream.NumUnacked())

	assert.ErrorIs(t, stream.Acknowledge("bogus"), utils.ErrNotFound)
	assert.NoError(t, stream.Acknowledge(updateID))
	assert.False(t, stream.HasUnacked())

	// Double acknowledgement is rejected.
	assert.ErrorIs(t, stream.Acknowledge(updateID), utils.ErrNotFound)
}

func TestStreamReplay(t *testing.T) {
	outbound := utils.NewBroadcast[*protocol.Event]()
	defer outbound.Close()
	consumer := outbound.NewConsumer()
	defer consumer.Close()

	stream := NewStatusStream("agent-1", outbound)

	first := stream.Post(protocol.TaskStatus{TaskID: "t1", State: protocol.TaskRunning})
	second := stream.Post(protocol.TaskStatus{TaskID: "t1", State: protocol.TaskFinished})
	receiveUpdate(t, consumer)
	receiveUpdate(t, consumer)

	// Replay preserves order and identifiers.
	stream.Replay()
	assert.Equal(t, first, receiveUpdate(t, consumer).UpdateID)
	assert.Equal(t, second, receiveUpdate(t, consumer).UpdateID)

	// Acknowledged updates are not replayed.
	assert.NoError(t, stream.Acknowledge(first))
	stream.Replay()
	assert.Equal(t, second, receiveUpdate(t, consumer).UpdateID)
}
