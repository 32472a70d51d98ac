package livechat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shoply/livechat/internal/config"
	"shoply/livechat/internal/models"
)

// HistoryFetcher is the slice of the REST store the message log needs.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, conversationID string) ([]models.Message, error)
}

// MessageLog is the deduplicated, ordered store of messages per conversation.
// It reconciles one-shot REST history loads with live-pushed deltas: history
// replaces, pushes insert, and MessageID uniqueness is the only hard
// guarantee. Ordering by CreatedAt is best effort since sender clocks are not
// synchronized; entries with equal timestamps keep arrival order.
//
// Logs of inactive conversations are retained up to a cap so that switching
// back to a recent conversation does not force a refetch; the least recently
// touched conversation is evicted first.
type MessageLog struct {
	fetcher HistoryFetcher

	mu    sync.Mutex
	logs  map[string][]models.Message
	seen  map[string]map[string]bool
	touch []string // conversation ids, least recently touched first

	// MaxConversations caps how many conversations are cached. Overridable
	// before use.
	MaxConversations int
}

func NewMessageLog(fetcher HistoryFetcher) *MessageLog {
	return &MessageLog{
		fetcher:          fetcher,
		logs:             make(map[string][]models.Message),
		seen:             make(map[string]map[string]bool),
		MaxConversations: config.MaxCachedConversations,
	}
}

// LoadHistory fetches the full history and replaces the local log for the
// conversation. On fetch failure the existing log is left untouched, so the
// caller can keep showing it while offering a retry.
func (l *MessageLog) LoadHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	history, err := l.fetcher.FetchHistory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("livechat: history load for %s: %w", conversationID, err)
	}

	// Normalize what the store returned: drop duplicate ids, order by
	// CreatedAt with a stable sort so equal timestamps keep store order.
	seen := make(map[string]bool, len(history))
	entries := make([]models.Message, 0, len(history))
	for _, msg := range history {
		if seen[msg.MessageID] {
			continue
		}
		seen[msg.MessageID] = true
		entries = append(entries, msg)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	l.mu.Lock()
	l.logs[conversationID] = entries
	l.seen[conversationID] = seen
	l.touched(conversationID)
	out := snapshot(entries)
	l.mu.Unlock()
	return out, nil
}

// ApplyIncoming inserts a live-pushed message. It reports whether the message
// was newly applied; a MessageID already present is silently absorbed, which
// makes at-least-once delivery and the push/history overlap race safe.
func (l *MessageLog) ApplyIncoming(msg models.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := l.seen[msg.ConversationID]
	if seen == nil {
		seen = make(map[string]bool)
		l.seen[msg.ConversationID] = seen
	}
	if seen[msg.MessageID] {
		return false
	}
	seen[msg.MessageID] = true

	entries := l.logs[msg.ConversationID]
	// Stable insert: walk back over strictly newer entries only, so ties on
	// CreatedAt preserve arrival order.
	i := len(entries)
	for i > 0 && entries[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	entries = append(entries, models.Message{})
	copy(entries[i+1:], entries[i:])
	entries[i] = msg
	l.logs[msg.ConversationID] = entries

	l.touched(msg.ConversationID)
	return true
}

// Messages returns a copy of the conversation's log in display order.
func (l *MessageLog) Messages(conversationID string) []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return snapshot(l.logs[conversationID])
}

func (l *MessageLog) Len(conversationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs[conversationID])
}

// touched moves the conversation to the most-recent end of the LRU order and
// evicts the coldest conversation when over the cap. Caller holds l.mu.
func (l *MessageLog) touched(conversationID string) {
	for i, id := range l.touch {
		if id == conversationID {
			l.touch = append(l.touch[:i], l.touch[i+1:]...)
			break
		}
	}
	l.touch = append(l.touch, conversationID)

	for len(l.touch) > l.MaxConversations {
		cold := l.touch[0]
		l.touch = l.touch[1:]
		delete(l.logs, cold)
		delete(l.seen, cold)
	}
}

func snapshot(entries []models.Message) []models.Message {
	out := make([]models.Message, len(entries))
	copy(out, entries)
	return out
}
