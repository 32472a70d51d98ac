package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"shoply/livechat/internal/models"
)

const eventsChannel = "livechat:events"

var ErrConversationNotFound = errors.New("devserver: conversation not found")

// Storage is the persistence surface of the dev harness. PostgreSQL holds
// conversations and messages; redis carries the event fanout between
// instances and the per-participant unread counters.
type Storage interface {
	SaveConversation(conv *ConversationRecord) error
	GetConversation(conversationID string) (*ConversationRecord, error)
	GetConversationsForParticipant(participantID string) ([]ConversationRecord, error)
	GetAllConversations() ([]ConversationRecord, error)
	SetConversationStatus(conversationID, status string) error

	SaveMessage(msg *MessageRecord) error
	GetMessageHistory(conversationID string) ([]MessageRecord, error)

	PublishEvent(ev models.ServerEvent) error
	SubscribeEvents() *redis.PubSub

	IncrementUnread(conversationID, participantID string) error
	ResetUnread(conversationID, participantID string) error
	GetUnread(conversationID, participantID string) (int, error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

func (s *Service) SaveConversation(conv *ConversationRecord) error {
	return s.DB.Save(conv).Error
}

func (s *Service) GetConversation(conversationID string) (*ConversationRecord, error) {
	var conv ConversationRecord
	err := s.DB.Where("conversation_id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		log.Printf("ERROR: failed to get conversation %s: %v", conversationID, err)
		return nil, err
	}
	return &conv, nil
}

func (s *Service) GetConversationsForParticipant(participantID string) ([]ConversationRecord, error) {
	var convs []ConversationRecord
	err := s.DB.Where("? = ANY(participants)", participantID).
		Order("last_message_at desc").
		Find(&convs).Error
	if err != nil {
		log.Printf("ERROR: failed to list conversations for %s: %v", participantID, err)
		return nil, err
	}
	return convs, nil
}

// GetAllConversations backs the staff console, which sees every thread
// including unclaimed waiting ones.
func (s *Service) GetAllConversations() ([]ConversationRecord, error) {
	var convs []ConversationRecord
	if err := s.DB.Order("last_message_at desc").Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *Service) SetConversationStatus(conversationID, status string) error {
	result := s.DB.Model(&ConversationRecord{}).
		Where("conversation_id = ?", conversationID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *Service) SaveMessage(msg *MessageRecord) error {
	if err := s.DB.Create(msg).Error; err != nil {
		log.Printf("ERROR: failed to save message for conversation %s: %v", msg.ConversationID, err)
		return err
	}
	return s.DB.Model(&ConversationRecord{}).
		Where("conversation_id = ?", msg.ConversationID).
		Update("last_message_at", msg.CreatedAt).Error
}

func (s *Service) GetMessageHistory(conversationID string) ([]MessageRecord, error) {
	var history []MessageRecord
	err := s.DB.Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Find(&history).Error
	if err != nil {
		log.Printf("ERROR: failed to get history for conversation %s: %v", conversationID, err)
		return nil, err
	}
	return history, nil
}

// PublishEvent pushes a server event into the cross-instance fanout channel.
// Every running instance, including this one, receives it via SubscribeEvents
// and routes it to joined room members.
func (s *Service) PublishEvent(ev models.ServerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, eventsChannel, string(data)).Err()
}

func (s *Service) SubscribeEvents() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, eventsChannel)
}

func unreadKey(conversationID, participantID string) string {
	return "unread:" + conversationID + ":" + participantID
}

func (s *Service) IncrementUnread(conversationID, participantID string) error {
	return s.Redis.Incr(s.Ctx, unreadKey(conversationID, participantID)).Err()
}

func (s *Service) ResetUnread(conversationID, participantID string) error {
	return s.Redis.Del(s.Ctx, unreadKey(conversationID, participantID)).Err()
}

func (s *Service) GetUnread(conversationID, participantID string) (int, error) {
	val, err := s.Redis.Get(s.Ctx, unreadKey(conversationID, participantID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}
