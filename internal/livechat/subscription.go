package livechat

import (
	"log"
	"sync"

	"shoply/livechat/internal/models"
)

// RoomSubscription keeps the server-side room membership of one view aligned
// with the conversation the view currently displays. At most one room is
// joined at a time.
//
// Room membership does not survive a transport reconnect, so the owner must
// call Resubscribe whenever the connection reports a connected event. Keeping
// the re-join here (instead of inside ConnectionManager) makes the join
// transition identical for cold start and resume.
type RoomSubscription struct {
	pub Publisher

	mu     sync.Mutex
	active string
}

func NewRoomSubscription(pub Publisher) *RoomSubscription {
	return &RoomSubscription{pub: pub}
}

// SetActiveConversation switches the joined room. It leaves the previous room
// first (if any), then joins the new one. Passing "" only leaves. Setting the
// already-active conversation is a no-op.
//
// Leave is fire-and-forget: the server garbage-collects membership on
// disconnect, so an undeliverable leave is not an error worth surfacing.
func (r *RoomSubscription) SetActiveConversation(conversationID string) {
	r.mu.Lock()
	prev := r.active
	if prev == conversationID {
		r.mu.Unlock()
		return
	}
	r.active = conversationID
	r.mu.Unlock()

	if prev != "" {
		if err := r.pub.Publish(models.ClientEvent{Type: models.ClientLeave, ConversationID: prev}); err != nil {
			log.Printf("livechat: leave %s not delivered: %v", prev, err)
		}
	}
	if conversationID != "" {
		if err := r.pub.Publish(models.ClientEvent{Type: models.ClientJoin, ConversationID: conversationID}); err != nil {
			log.Printf("ERROR: livechat: join %s not delivered: %v", conversationID, err)
		}
	}
}

// Resubscribe re-issues the join for the active conversation, if one is set.
// Called on every connected event.
func (r *RoomSubscription) Resubscribe() {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if active == "" {
		return
	}
	if err := r.pub.Publish(models.ClientEvent{Type: models.ClientJoin, ConversationID: active}); err != nil {
		log.Printf("ERROR: livechat: rejoin %s not delivered: %v", active, err)
	}
}

// ActiveConversation returns the currently joined conversation, or "".
func (r *RoomSubscription) ActiveConversation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}
