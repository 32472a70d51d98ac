package devserver

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pings the support staff Telegram channel when a customer opens a
// new conversation, so waiting customers are noticed without anyone watching
// the queue.
type Notifier struct {
	BotAPI *tgbotapi.BotAPI
	ChatID int64
}

// NewNotifier creates a Notifier, or returns nil (no error) when the token is
// empty so the harness runs fine without Telegram configured.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false
	log.Printf("notifying staff via telegram account %s", bot.Self.UserName)
	return &Notifier{BotAPI: bot, ChatID: chatID}, nil
}

// NewConversation announces a freshly opened conversation. Failures are
// logged, never surfaced; notification is best effort.
func (n *Notifier) NewConversation(conversationID, customerID string) {
	text := fmt.Sprintf("New support conversation %s from customer %s is waiting.", conversationID, customerID)
	if _, err := n.BotAPI.Send(tgbotapi.NewMessage(n.ChatID, text)); err != nil {
		log.Printf("WARNING: telegram notification failed: %v", err)
	}
}
