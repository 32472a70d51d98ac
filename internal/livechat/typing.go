package livechat

import (
	"log"
	"sync"
	"time"

	"shoply/livechat/internal/config"
	"shoply/livechat/internal/models"
)

// PresenceTypingTracker propagates the ephemeral "is typing" signal in both
// directions. Typing state never enters the message log and is never
// persisted or replayed.
//
// Outbound, a keystroke burst collapses into one "started typing" event; a
// "stopped typing" follows after the debounce window of inactivity. Inbound,
// a counterparty's state expires after the TTL even without an explicit stop,
// so their disconnect cannot leave a stuck indicator.
type PresenceTypingTracker struct {
	pub    Publisher
	selfID string

	mu          sync.Mutex
	remote      map[string]models.TypingState // keyed by conversation id
	expireTimer map[string]*time.Timer
	localTyping map[string]bool
	stopTimer   map[string]*time.Timer
	stopGen     map[string]uint64

	// Tuning, overridable before use; tests shorten these.
	TTL      time.Duration
	Debounce time.Duration
}

func NewPresenceTypingTracker(pub Publisher, selfID string) *PresenceTypingTracker {
	return &PresenceTypingTracker{
		pub:         pub,
		selfID:      selfID,
		remote:      make(map[string]models.TypingState),
		expireTimer: make(map[string]*time.Timer),
		localTyping: make(map[string]bool),
		stopTimer:   make(map[string]*time.Timer),
		stopGen:     make(map[string]uint64),
		TTL:         config.TypingTTL,
		Debounce:    config.TypingStopDebounce,
	}
}

// SetLocalTyping records a local keystroke (isTyping=true) or an explicit stop
// (isTyping=false). Repeated true calls within a burst publish only once and
// push the debounced stop further out.
func (t *PresenceTypingTracker) SetLocalTyping(conversationID string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if isTyping {
		if !t.localTyping[conversationID] {
			t.localTyping[conversationID] = true
			t.publishTyping(conversationID, true)
		}
		if timer, ok := t.stopTimer[conversationID]; ok {
			timer.Stop()
		}
		// The generation invalidates a debounce callback that already fired
		// but has not taken the lock yet; Stop alone cannot catch that one.
		t.stopGen[conversationID]++
		gen := t.stopGen[conversationID]
		t.stopTimer[conversationID] = time.AfterFunc(t.Debounce, func() {
			t.debouncedStop(conversationID, gen)
		})
		return
	}

	t.stopGen[conversationID]++
	if timer, ok := t.stopTimer[conversationID]; ok {
		timer.Stop()
		delete(t.stopTimer, conversationID)
	}
	if t.localTyping[conversationID] {
		delete(t.localTyping, conversationID)
		t.publishTyping(conversationID, false)
	}
}

// debouncedStop ends the burst unless a newer keystroke superseded this
// timer while it was firing.
func (t *PresenceTypingTracker) debouncedStop(conversationID string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopGen[conversationID] != gen {
		return
	}
	delete(t.stopTimer, conversationID)
	if t.localTyping[conversationID] {
		delete(t.localTyping, conversationID)
		t.publishTyping(conversationID, false)
	}
}

// publishTyping sends the outbound event. Caller holds t.mu.
func (t *PresenceTypingTracker) publishTyping(conversationID string, isTyping bool) {
	err := t.pub.Publish(models.ClientEvent{
		Type:           models.ClientTyping,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
	if err != nil {
		log.Printf("livechat: typing event for %s not delivered: %v", conversationID, err)
	}
}

// OnRemoteTyping applies a counterparty typing event. Events carrying the
// local participant's own id are ignored.
func (t *PresenceTypingTracker) OnRemoteTyping(ev models.TypingEvent) {
	if ev.ParticipantID == t.selfID {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.expireTimer[ev.ConversationID]; ok {
		timer.Stop()
		delete(t.expireTimer, ev.ConversationID)
	}

	if !ev.IsTyping {
		delete(t.remote, ev.ConversationID)
		return
	}

	t.remote[ev.ConversationID] = models.TypingState{
		ConversationID: ev.ConversationID,
		ParticipantID:  ev.ParticipantID,
		IsTyping:       true,
		ExpiresAt:      time.Now().Add(t.TTL),
	}
	conversationID := ev.ConversationID
	t.expireTimer[conversationID] = time.AfterFunc(t.TTL, func() {
		t.expire(conversationID)
	})
}

func (t *PresenceTypingTracker) expire(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.remote, conversationID)
	delete(t.expireTimer, conversationID)
}

// CurrentTypingState reports whether the counterparty in the conversation is
// typing right now.
func (t *PresenceTypingTracker) CurrentTypingState(conversationID string) (models.TypingState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.remote[conversationID]
	if !ok || time.Now().After(state.ExpiresAt) {
		return models.TypingState{}, false
	}
	return state, true
}

// ClearConversation drops all typing state and pending timers for a
// conversation. Called when the view unmounts or switches away.
func (t *PresenceTypingTracker) ClearConversation(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopGen[conversationID]++
	if timer, ok := t.stopTimer[conversationID]; ok {
		timer.Stop()
		delete(t.stopTimer, conversationID)
	}
	if timer, ok := t.expireTimer[conversationID]; ok {
		timer.Stop()
		delete(t.expireTimer, conversationID)
	}
	delete(t.localTyping, conversationID)
	delete(t.remote, conversationID)
}
