package devserver_test

import (
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"shoply/livechat/internal/devserver"
	"shoply/livechat/internal/models"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveConversation(conv *devserver.ConversationRecord) error {
	args := m.Called(conv)
	return args.Error(0)
}

func (m *MockStorage) GetConversation(conversationID string) (*devserver.ConversationRecord, error) {
	args := m.Called(conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*devserver.ConversationRecord), args.Error(1)
}

func (m *MockStorage) GetConversationsForParticipant(participantID string) ([]devserver.ConversationRecord, error) {
	args := m.Called(participantID)
	return args.Get(0).([]devserver.ConversationRecord), args.Error(1)
}

func (m *MockStorage) GetAllConversations() ([]devserver.ConversationRecord, error) {
	args := m.Called()
	return args.Get(0).([]devserver.ConversationRecord), args.Error(1)
}

func (m *MockStorage) SetConversationStatus(conversationID, status string) error {
	args := m.Called(conversationID, status)
	return args.Error(0)
}

func (m *MockStorage) SaveMessage(msg *devserver.MessageRecord) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockStorage) GetMessageHistory(conversationID string) ([]devserver.MessageRecord, error) {
	args := m.Called(conversationID)
	return args.Get(0).([]devserver.MessageRecord), args.Error(1)
}

func (m *MockStorage) PublishEvent(ev models.ServerEvent) error {
	args := m.Called(ev)
	return args.Error(0)
}

func (m *MockStorage) SubscribeEvents() *redis.PubSub {
	args := m.Called()
	return args.Get(0).(*redis.PubSub)
}

func (m *MockStorage) IncrementUnread(conversationID, participantID string) error {
	args := m.Called(conversationID, participantID)
	return args.Error(0)
}

func (m *MockStorage) ResetUnread(conversationID, participantID string) error {
	args := m.Called(conversationID, participantID)
	return args.Error(0)
}

func (m *MockStorage) GetUnread(conversationID, participantID string) (int, error) {
	args := m.Called(conversationID, participantID)
	return args.Int(0), args.Error(1)
}
