package livechat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply/livechat/internal/livechat"
	"shoply/livechat/internal/models"
)

func msgAt(id, conv string, unix int64) models.Message {
	return models.Message{
		MessageID:      id,
		ConversationID: conv,
		SenderID:       "cust_1",
		Body:           "body of " + id,
		CreatedAt:      time.UnixMilli(unix),
	}
}

func TestApplyIncoming_DedupByMessageID(t *testing.T) {
	// Arrange
	log := livechat.NewMessageLog(new(MockStore))

	// Act
	first := log.ApplyIncoming(msgAt("m1", "c1", 100))
	second := log.ApplyIncoming(msgAt("m1", "c1", 100))

	// Assert
	assert.True(t, first, "first apply should be new")
	assert.False(t, second, "second apply of same MessageID must be a no-op")
	assert.Equal(t, 1, log.Len("c1"))
}

func TestApplyIncoming_OrderedByCreatedAt(t *testing.T) {
	log := livechat.NewMessageLog(new(MockStore))

	log.ApplyIncoming(msgAt("m2", "c1", 200))
	log.ApplyIncoming(msgAt("m1", "c1", 100))
	log.ApplyIncoming(msgAt("m3", "c1", 300))

	msgs := log.Messages("c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].MessageID)
	assert.Equal(t, "m2", msgs[1].MessageID)
	assert.Equal(t, "m3", msgs[2].MessageID)
}

func TestApplyIncoming_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	log := livechat.NewMessageLog(new(MockStore))

	// Same millisecond: stable insert must preserve arrival order.
	log.ApplyIncoming(msgAt("first", "c1", 500))
	log.ApplyIncoming(msgAt("second", "c1", 500))
	log.ApplyIncoming(msgAt("third", "c1", 500))

	msgs := log.Messages("c1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].MessageID)
	assert.Equal(t, "second", msgs[1].MessageID)
	assert.Equal(t, "third", msgs[2].MessageID)
}

func TestApplyIncoming_ConversationsAreIndependent(t *testing.T) {
	log := livechat.NewMessageLog(new(MockStore))

	log.ApplyIncoming(msgAt("m1", "c1", 100))
	log.ApplyIncoming(msgAt("m1", "c2", 100)) // same id, different conversation

	assert.Equal(t, 1, log.Len("c1"))
	assert.Equal(t, 1, log.Len("c2"))
}

func TestLoadHistory_ReplacesLog(t *testing.T) {
	// Arrange
	storeMock := new(MockStore)
	log := livechat.NewMessageLog(storeMock)

	log.ApplyIncoming(msgAt("stale", "c1", 50))
	storeMock.On("FetchHistory", "c1").Return([]models.Message{
		msgAt("m2", "c1", 200),
		msgAt("m1", "c1", 100),
	}, nil)

	// Act
	msgs, err := log.LoadHistory(context.Background(), "c1")

	// Assert - the fetched history fully replaces the local log, sorted.
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].MessageID)
	assert.Equal(t, "m2", msgs[1].MessageID)
	assert.Equal(t, 2, log.Len("c1"), "pre-existing entries must not be merged in")
}

func TestLoadHistory_FailureKeepsExistingLog(t *testing.T) {
	storeMock := new(MockStore)
	log := livechat.NewMessageLog(storeMock)

	log.ApplyIncoming(msgAt("m1", "c1", 100))
	storeMock.On("FetchHistory", "c1").Return(nil, errors.New("store unavailable"))

	msgs, err := log.LoadHistory(context.Background(), "c1")

	require.Error(t, err)
	assert.Nil(t, msgs)
	assert.Equal(t, 1, log.Len("c1"), "a failed fetch must not clear the log")
}

func TestLoadHistory_ThenPushIsDeduplicated(t *testing.T) {
	// The same message arriving via REST history and via live push during one
	// session must appear once.
	storeMock := new(MockStore)
	log := livechat.NewMessageLog(storeMock)

	storeMock.On("FetchHistory", "c1").Return([]models.Message{msgAt("m1", "c1", 100)}, nil)
	_, err := log.LoadHistory(context.Background(), "c1")
	require.NoError(t, err)

	applied := log.ApplyIncoming(msgAt("m1", "c1", 100))

	assert.False(t, applied)
	assert.Equal(t, 1, log.Len("c1"))
}

func TestMessageLog_EvictsColdestConversation(t *testing.T) {
	log := livechat.NewMessageLog(new(MockStore))
	log.MaxConversations = 2

	log.ApplyIncoming(msgAt("a1", "cold", 100))
	log.ApplyIncoming(msgAt("b1", "warm", 100))
	log.ApplyIncoming(msgAt("c1", "hot", 100))

	assert.Equal(t, 0, log.Len("cold"), "least recently touched conversation should be evicted")
	assert.Equal(t, 1, log.Len("warm"))
	assert.Equal(t, 1, log.Len("hot"))

	// An evicted conversation starts fresh: the same id applies again.
	assert.True(t, log.ApplyIncoming(msgAt("a1", "cold", 100)))
}

func TestMessages_ReturnsCopy(t *testing.T) {
	log := livechat.NewMessageLog(new(MockStore))
	log.ApplyIncoming(msgAt("m1", "c1", 100))

	msgs := log.Messages("c1")
	msgs[0].Body = "mutated"

	assert.Equal(t, "body of m1", log.Messages("c1")[0].Body)
}
