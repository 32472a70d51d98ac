package devserver

import (
	"encoding/json"
	"log"

	"shoply/livechat/internal/models"
)

type roomChange struct {
	client         *WSClient
	conversationID string
}

type typingInbound struct {
	client *WSClient
	ev     models.ClientEvent
}

// Hub tracks the live connections of one server instance and fans events out
// to room members. All state changes go through Run's select loop, so no
// locking is needed on the maps.
//
// Each participant has at most one live connection; a newer socket for the
// same participant replaces the older one.
type Hub struct {
	Storage Storage

	RegisterCh   chan *WSClient
	UnregisterCh chan *WSClient
	JoinCh       chan roomChange
	LeaveCh      chan roomChange
	TypingCh     chan typingInbound

	clients  map[string]*WSClient
	rooms    map[string]map[*WSClient]bool
	pubSubCh chan models.ServerEvent
}

func NewHub(s Storage) *Hub {
	return &Hub{
		Storage:      s,
		RegisterCh:   make(chan *WSClient),
		UnregisterCh: make(chan *WSClient),
		JoinCh:       make(chan roomChange),
		LeaveCh:      make(chan roomChange),
		TypingCh:     make(chan typingInbound),
		clients:      make(map[string]*WSClient),
		rooms:        make(map[string]map[*WSClient]bool),
		pubSubCh:     make(chan models.ServerEvent, 64),
	}
}

// startPubSubListener bridges the redis fanout channel into the hub loop.
func (h *Hub) startPubSubListener() {
	go func() {
		pubsub := h.Storage.SubscribeEvents()
		defer pubsub.Close()

		for msg := range pubsub.Channel() {
			var ev models.ServerEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("ERROR: undecodable fanout event: %v", err)
				continue
			}
			h.pubSubCh <- ev
		}
	}()
}

func (h *Hub) Run() {
	h.startPubSubListener()

	for {
		select {
		case client := <-h.RegisterCh:
			if old, ok := h.clients[client.ParticipantID]; ok {
				h.dropClient(old)
			}
			h.clients[client.ParticipantID] = client
			log.Printf("participant %s connected", client.ParticipantID)

		case client := <-h.UnregisterCh:
			// Only drop if this exact socket is still current; a replacement
			// connection may already be registered under the same id.
			if h.clients[client.ParticipantID] == client {
				h.dropClient(client)
				log.Printf("participant %s disconnected", client.ParticipantID)
			}

		case change := <-h.JoinCh:
			room := h.rooms[change.conversationID]
			if room == nil {
				room = make(map[*WSClient]bool)
				h.rooms[change.conversationID] = room
			}
			room[change.client] = true

			// Joining a room delivers a status snapshot, so a client that
			// reconnected does not depend on having seen earlier pushes.
			h.sendStatusSnapshot(change.client, change.conversationID)

		case change := <-h.LeaveCh:
			h.removeFromRoom(change.client, change.conversationID)

		case typing := <-h.TypingCh:
			// Typing is ephemeral: relayed through the fanout, never stored.
			err := h.Storage.PublishEvent(models.ServerEvent{
				Type: models.EventTyping,
				Typing: &models.TypingEvent{
					ConversationID: typing.ev.ConversationID,
					ParticipantID:  typing.client.ParticipantID,
					IsTyping:       typing.ev.IsTyping,
				},
			})
			if err != nil {
				log.Printf("ERROR: publishing typing event: %v", err)
			}

		case ev := <-h.pubSubCh:
			h.fanout(ev)
		}
	}
}

func (h *Hub) sendStatusSnapshot(client *WSClient, conversationID string) {
	conv, err := h.Storage.GetConversation(conversationID)
	if err != nil {
		log.Printf("WARNING: no status snapshot for %s: %v", conversationID, err)
		return
	}
	client.deliver(models.ServerEvent{
		Type: models.EventStatusChanged,
		Status: &models.StatusEvent{
			ConversationID: conv.ConversationID,
			Status:         models.ConversationStatus(conv.Status),
		},
	})
}

// fanout routes a server event to every member of its conversation's room.
func (h *Hub) fanout(ev models.ServerEvent) {
	conversationID := eventConversationID(ev)
	if conversationID == "" {
		return
	}
	for client := range h.rooms[conversationID] {
		client.deliver(ev)
	}
}

func (h *Hub) dropClient(client *WSClient) {
	delete(h.clients, client.ParticipantID)
	for conversationID := range h.rooms {
		h.removeFromRoom(client, conversationID)
	}
	client.Close()
}

func (h *Hub) removeFromRoom(client *WSClient, conversationID string) {
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

func eventConversationID(ev models.ServerEvent) string {
	switch ev.Type {
	case models.EventMessage:
		if ev.Message != nil {
			return ev.Message.ConversationID
		}
	case models.EventTyping:
		if ev.Typing != nil {
			return ev.Typing.ConversationID
		}
	case models.EventStatusChanged:
		if ev.Status != nil {
			return ev.Status.ConversationID
		}
	}
	return ""
}
