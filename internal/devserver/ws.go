package devserver

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shoply/livechat/internal/config"
	"shoply/livechat/internal/models"
)

// WSClient is one live socket for one participant. readPump feeds control
// events into the hub; writePump is the sole writer on the connection.
type WSClient struct {
	ParticipantID string
	Role          models.Role
	Conn          *websocket.Conn
	Hub           *Hub
	Send          chan models.ServerEvent

	closeOnce sync.Once
}

func NewWSClient(hub *Hub, conn *websocket.Conn, participantID string, role models.Role) *WSClient {
	return &WSClient{
		ParticipantID: participantID,
		Role:          role,
		Conn:          conn,
		Hub:           hub,
		Send:          make(chan models.ServerEvent, config.SendBufferSize),
	}
}

func (c *WSClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close shuts the send channel, which stops writePump and closes the socket.
// Safe to call more than once; the hub may drop a client it already replaced.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// deliver hands an event to the client without blocking the hub loop.
func (c *WSClient) deliver(ev models.ServerEvent) {
	select {
	case c.Send <- ev:
	default:
		log.Printf("WARNING: dropping event for slow participant %s", c.ParticipantID)
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.Hub.UnregisterCh <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading from participant %s: %v", c.ParticipantID, err)
			}
			break
		}

		var ev models.ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Printf("ERROR: decoding event from %s: %v", c.ParticipantID, err)
			continue
		}

		switch ev.Type {
		case models.ClientJoin:
			if c.mayAccess(ev.ConversationID) {
				c.Hub.JoinCh <- roomChange{client: c, conversationID: ev.ConversationID}
			}
		case models.ClientLeave:
			c.Hub.LeaveCh <- roomChange{client: c, conversationID: ev.ConversationID}
		case models.ClientTyping:
			c.Hub.TypingCh <- typingInbound{client: c, ev: ev}
		default:
			log.Printf("WARNING: unknown event type %q from %s", ev.Type, c.ParticipantID)
		}
	}
}

// mayAccess gates room joins: staff see every conversation, customers only
// their own.
func (c *WSClient) mayAccess(conversationID string) bool {
	if c.Role == models.RoleStaff {
		return true
	}
	conv, err := c.Hub.Storage.GetConversation(conversationID)
	if err != nil {
		log.Printf("WARNING: join refused for %s: %v", c.ParticipantID, err)
		return false
	}
	return conv.hasParticipant(c.ParticipantID)
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
