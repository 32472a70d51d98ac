package livechat_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply/livechat/internal/livechat"
	"shoply/livechat/internal/models"
)

func TestSetActiveConversation_Join(t *testing.T) {
	pub := &RecordingPublisher{}
	rooms := livechat.NewRoomSubscription(pub)

	rooms.SetActiveConversation("c1")

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.ClientJoin, events[0].Type)
	assert.Equal(t, "c1", events[0].ConversationID)
	assert.Equal(t, "c1", rooms.ActiveConversation())
}

func TestSetActiveConversation_SwitchEmitsLeaveThenJoin(t *testing.T) {
	// Arrange
	pub := &RecordingPublisher{}
	rooms := livechat.NewRoomSubscription(pub)
	rooms.SetActiveConversation("A")
	pub.Reset()

	// Act
	rooms.SetActiveConversation("B")

	// Assert - exactly one leave(A) followed by exactly one join(B)
	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.ClientLeave, events[0].Type)
	assert.Equal(t, "A", events[0].ConversationID)
	assert.Equal(t, models.ClientJoin, events[1].Type)
	assert.Equal(t, "B", events[1].ConversationID)
}

func TestSetActiveConversation_NilOnlyLeaves(t *testing.T) {
	pub := &RecordingPublisher{}
	rooms := livechat.NewRoomSubscription(pub)
	rooms.SetActiveConversation("A")
	pub.Reset()

	rooms.SetActiveConversation("")

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.ClientLeave, events[0].Type)
	assert.Empty(t, rooms.ActiveConversation())
}

func TestSetActiveConversation_SameIDIsNoOp(t *testing.T) {
	pub := &RecordingPublisher{}
	rooms := livechat.NewRoomSubscription(pub)
	rooms.SetActiveConversation("A")
	pub.Reset()

	rooms.SetActiveConversation("A")

	assert.Empty(t, pub.Events())
}

func TestResubscribe_RejoinsActiveRoom(t *testing.T) {
	pub := &RecordingPublisher{}
	rooms := livechat.NewRoomSubscription(pub)
	rooms.SetActiveConversation("A")
	pub.Reset()

	// A connected event after reconnect triggers exactly one re-join.
	rooms.Resubscribe()

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.ClientJoin, events[0].Type)
	assert.Equal(t, "A", events[0].ConversationID)
}

func TestResubscribe_NoActiveRoom(t *testing.T) {
	pub := &RecordingPublisher{}
	rooms := livechat.NewRoomSubscription(pub)

	rooms.Resubscribe()

	assert.Empty(t, pub.Events())
}

func TestLeaveFailureIsSwallowed(t *testing.T) {
	// Leave is best-effort: a dead connection must not surface an error or
	// stop the subsequent join from being attempted.
	pub := &RecordingPublisher{}
	rooms := livechat.NewRoomSubscription(pub)
	rooms.SetActiveConversation("A")

	pub.FailWith(errors.New("connection gone"))
	rooms.SetActiveConversation("B")

	assert.Equal(t, "B", rooms.ActiveConversation())
}
