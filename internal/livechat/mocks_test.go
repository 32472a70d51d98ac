package livechat_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"shoply/livechat/internal/models"
)

// RecordingPublisher captures outbound control events for assertions.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []models.ClientEvent
	err    error
}

func (p *RecordingPublisher) Publish(ev models.ClientEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *RecordingPublisher) Events() []models.ClientEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ClientEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func (p *RecordingPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// MockStore is a testify mock of the REST collaborator.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FetchConversations(ctx context.Context, participantID string) ([]models.Conversation, error) {
	args := m.Called(participantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockStore) FetchHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStore) CreateConversation(ctx context.Context) (*models.Conversation, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStore) CreateMessage(ctx context.Context, conversationID, body, clientNonce string) (*models.Message, error) {
	args := m.Called(conversationID, body, clientNonce)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) MarkRead(ctx context.Context, conversationID string) error {
	args := m.Called(conversationID)
	return args.Error(0)
}

func (m *MockStore) CloseConversation(ctx context.Context, conversationID string) error {
	args := m.Called(conversationID)
	return args.Error(0)
}

func (m *MockStore) ReopenConversation(ctx context.Context, conversationID string) error {
	args := m.Called(conversationID)
	return args.Error(0)
}
