package livechat

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"shoply/livechat/internal/models"
	"shoply/livechat/internal/store"
)

// Client ties the live channel together for one session: the shared
// connection, the per-view room subscription, the message log, the typing
// tracker and the conversation lifecycle. The widget and the console are both
// plain consumers of this type.
//
// Received messages are authoritative via the live push; sent messages and
// status changes are authoritative via the REST store. The demux loop routes
// every inbound event to exactly one component.
type Client struct {
	Conn      *ConnectionManager
	Rooms     *RoomSubscription
	Log       *MessageLog
	Typing    *PresenceTypingTracker
	Lifecycle *ConversationLifecycle
	Store     store.Conversations

	session models.Session

	mu     sync.Mutex
	opened bool
	events <-chan models.ServerEvent
	cancel func()
	done   chan struct{}
}

func New(wsURL string, session models.Session, st store.Conversations) *Client {
	conn := NewConnectionManager(wsURL, session)
	return &Client{
		Conn:      conn,
		Rooms:     NewRoomSubscription(conn),
		Log:       NewMessageLog(st),
		Typing:    NewPresenceTypingTracker(conn, session.ParticipantID),
		Lifecycle: NewConversationLifecycle(),
		Store:     st,
		session:   session,
		done:      make(chan struct{}),
	}
}

// Open establishes the transport and starts the demux loop. Calling it again
// on an open client is a no-op: one subscription, one demux goroutine.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	events, cancel := c.Conn.Subscribe()
	if err := c.Conn.Open(ctx); err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	if c.opened {
		// Lost the race against a concurrent Open; its goroutine already owns
		// the demux loop.
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.opened = true
	c.events = events
	c.cancel = cancel
	c.mu.Unlock()

	go c.run()
	return nil
}

// run is the event loop: one goroutine consuming the connection's typed
// stream, dispatching each variant to its component. It exits when the
// connection closes the subscription.
func (c *Client) run() {
	defer close(c.done)
	for ev := range c.events {
		switch ev.Type {
		case models.EventMessage:
			if ev.Message == nil {
				log.Printf("WARNING: livechat: message event without payload")
				continue
			}
			// Duplicates (at-least-once delivery, push/history overlap,
			// replays after reconnect) are absorbed here.
			c.Log.ApplyIncoming(*ev.Message)
		case models.EventTyping:
			if ev.Typing == nil {
				continue
			}
			c.Typing.OnRemoteTyping(*ev.Typing)
		case models.EventStatusChanged:
			if ev.Status == nil {
				continue
			}
			c.Lifecycle.ApplyStatusChanged(*ev.Status)
		case models.EventConnected:
			c.Rooms.Resubscribe()
		case models.EventDisconnected:
			// Connection state is observable via Conn.State; nothing to
			// route. Typing indicators are left to their TTL.
		default:
			log.Printf("WARNING: livechat: unknown event type %q", ev.Type)
		}
	}
}

// OpenConversation makes the conversation the active room and loads its
// history. The previous conversation's room is left and its pending typing
// timers are cleared; its log is retained under the log's cache cap.
func (c *Client) OpenConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	if prev := c.Rooms.ActiveConversation(); prev != "" && prev != conversationID {
		c.Typing.ClearConversation(prev)
	}
	c.Rooms.SetActiveConversation(conversationID)
	return c.Log.LoadHistory(ctx, conversationID)
}

// CloseActiveConversation leaves the current room, if any.
func (c *Client) CloseActiveConversation() {
	if prev := c.Rooms.ActiveConversation(); prev != "" {
		c.Typing.ClearConversation(prev)
	}
	c.Rooms.SetActiveConversation("")
}

// Send persists a message through the REST store. The message enters the log
// only once the store confirmed it; the live echo of the same message is
// deduplicated by MessageID. Sends against a closed conversation are refused
// locally with ErrConversationClosed.
func (c *Client) Send(ctx context.Context, conversationID, body string) (*models.Message, error) {
	if !c.Lifecycle.CanSend(conversationID) {
		return nil, ErrConversationClosed
	}

	c.Typing.SetLocalTyping(conversationID, false)

	msg, err := c.Store.CreateMessage(ctx, conversationID, body, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("livechat: send: %w", err)
	}
	c.Log.ApplyIncoming(*msg)
	return msg, nil
}

// SetTyping forwards a local typing change; the tracker debounces the wire
// traffic.
func (c *Client) SetTyping(conversationID string, isTyping bool) {
	c.Typing.SetLocalTyping(conversationID, isTyping)
}

// CloseConversation asks the store to close the conversation and flips the
// local state only on success. No optimistic update: a wrongly closed UI
// state would block the composer.
func (c *Client) CloseConversation(ctx context.Context, conversationID string) error {
	if err := c.Store.CloseConversation(ctx, conversationID); err != nil {
		return err
	}
	c.Lifecycle.ConfirmClosed(conversationID)
	return nil
}

// ReopenConversation is the symmetric REST-confirmed reopen.
func (c *Client) ReopenConversation(ctx context.Context, conversationID string) error {
	if err := c.Store.ReopenConversation(ctx, conversationID); err != nil {
		return err
	}
	c.Lifecycle.ConfirmReopened(conversationID)
	return nil
}

// MarkRead resets the caller's unread counter for the conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.Store.MarkRead(ctx, conversationID)
}

// Close tears the session down: best-effort leave of the active room, then
// the transport. The demux loop drains and exits before Close returns.
func (c *Client) Close() {
	c.CloseActiveConversation()
	c.Conn.Close()

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-c.done
	}
}
