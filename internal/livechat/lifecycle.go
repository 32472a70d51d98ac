package livechat

import (
	"log"
	"sync"

	"shoply/livechat/internal/models"
)

// ConversationLifecycle tracks whether each conversation accepts new messages.
// Transitions are server-confirmed: close/reopen flip local state only after
// the REST call succeeded, and statusChanged pushes always win, since they
// reflect the state the server had committed at broadcast time.
type ConversationLifecycle struct {
	mu       sync.Mutex
	statuses map[string]models.ConversationStatus
}

func NewConversationLifecycle() *ConversationLifecycle {
	return &ConversationLifecycle{
		statuses: make(map[string]models.ConversationStatus),
	}
}

// ApplyStatusChanged applies a server push. Pushes are authoritative; if an
// in-flight REST call loses the race against another staff client's change,
// the pushed status is the one that stands.
func (c *ConversationLifecycle) ApplyStatusChanged(ev models.StatusEvent) {
	switch ev.Status {
	case models.StatusWaiting, models.StatusActive, models.StatusClosed:
	default:
		log.Printf("WARNING: livechat: ignoring unknown status %q for %s", ev.Status, ev.ConversationID)
		return
	}

	c.mu.Lock()
	c.statuses[ev.ConversationID] = ev.Status
	c.mu.Unlock()
}

// ConfirmClosed records a REST-acknowledged close.
func (c *ConversationLifecycle) ConfirmClosed(conversationID string) {
	c.mu.Lock()
	c.statuses[conversationID] = models.StatusClosed
	c.mu.Unlock()
}

// ConfirmReopened records a REST-acknowledged reopen.
func (c *ConversationLifecycle) ConfirmReopened(conversationID string) {
	c.mu.Lock()
	c.statuses[conversationID] = models.StatusActive
	c.mu.Unlock()
}

// CurrentStatus returns the last known status. A conversation never observed
// through a push or a confirmation is reported as waiting, the state every
// conversation is created in.
func (c *ConversationLifecycle) CurrentStatus(conversationID string) models.ConversationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, ok := c.statuses[conversationID]; ok {
		return status
	}
	return models.StatusWaiting
}

// CanSend is the client-side composer guard. The store rejects sends against a
// closed conversation regardless; this only spares the round trip.
func (c *ConversationLifecycle) CanSend(conversationID string) bool {
	return c.CurrentStatus(conversationID) != models.StatusClosed
}
