package livechat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply/livechat/internal/livechat"
	"shoply/livechat/internal/models"
)

// fakeChatServer is a minimal websocket endpoint: it checks the bearer token,
// records inbound control events and lets tests push server events or kill
// connections to simulate network loss.
type fakeChatServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader
	control  chan models.ClientEvent

	mu         sync.Mutex
	conns      []*websocket.Conn
	accepted   int
	rejectAuth bool
}

func newFakeChatServer(t *testing.T) *fakeChatServer {
	s := &fakeChatServer{
		t:       t,
		control: make(chan models.ClientEvent, 64),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeChatServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.rejectAuth
	s.mu.Unlock()

	if reject || r.Header.Get("Authorization") != "Bearer good-token" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.accepted++
	s.mu.Unlock()

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev models.ClientEvent
			if json.Unmarshal(data, &ev) == nil {
				s.control <- ev
			}
		}
	}()
}

func (s *fakeChatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *fakeChatServer) acceptedConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *fakeChatServer) push(ev models.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.conns, "push with no connection")
	data, err := json.Marshal(ev)
	require.NoError(s.t, err)
	conn := s.conns[len(s.conns)-1]
	require.NoError(s.t, conn.WriteMessage(websocket.TextMessage, data))
}

// dropConnections closes every accepted connection without a close handshake,
// simulating network loss.
func (s *fakeChatServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func testSession() models.Session {
	return models.Session{ParticipantID: "cust_1", Role: models.RoleCustomer, AuthToken: "good-token"}
}

func newTestConn(t *testing.T, s *fakeChatServer) *livechat.ConnectionManager {
	m := livechat.NewConnectionManager(s.wsURL(), testSession())
	m.ReconnectBase = 20 * time.Millisecond
	m.ReconnectMax = 100 * time.Millisecond
	t.Cleanup(m.Close)
	return m
}

func nextEvent(t *testing.T, ch <-chan models.ServerEvent, timeout time.Duration) models.ServerEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return models.ServerEvent{}
	}
}

func nextControl(t *testing.T, s *fakeChatServer, timeout time.Duration) models.ClientEvent {
	t.Helper()
	select {
	case ev := <-s.control:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for control event")
		return models.ClientEvent{}
	}
}

func TestConnectionManager_OpenIsIdempotent(t *testing.T) {
	// Arrange
	s := newFakeChatServer(t)
	m := newTestConn(t, s)

	// Act
	require.NoError(t, m.Open(context.Background()))
	require.NoError(t, m.Open(context.Background()))
	time.Sleep(100 * time.Millisecond)

	// Assert - one session, one socket
	assert.Equal(t, 1, s.acceptedConnections())
	assert.Equal(t, models.StateConnected, m.State())
}

func TestConnectionManager_AuthRejectedIsTerminal(t *testing.T) {
	s := newFakeChatServer(t)
	s.rejectAuth = true
	m := newTestConn(t, s)

	err := m.Open(context.Background())

	require.ErrorIs(t, err, livechat.ErrAuthRejected)
	assert.Equal(t, models.StateDisconnected, m.State())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, s.acceptedConnections(), "a rejected handshake must not be retried")
}

func TestConnectionManager_DeliversTypedEvents(t *testing.T) {
	s := newFakeChatServer(t)
	m := newTestConn(t, s)

	events, cancel := m.Subscribe()
	defer cancel()
	require.NoError(t, m.Open(context.Background()))

	ev := nextEvent(t, events, time.Second)
	assert.Equal(t, models.EventConnected, ev.Type)

	s.push(models.ServerEvent{
		Type:    models.EventMessage,
		Message: &models.Message{MessageID: "m1", ConversationID: "c1", Body: "hello"},
	})

	ev = nextEvent(t, events, time.Second)
	require.Equal(t, models.EventMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "m1", ev.Message.MessageID)
}

func TestConnectionManager_PublishWritesControlEvents(t *testing.T) {
	s := newFakeChatServer(t)
	m := newTestConn(t, s)
	require.NoError(t, m.Open(context.Background()))

	require.NoError(t, m.Publish(models.ClientEvent{Type: models.ClientJoin, ConversationID: "c1"}))

	ev := nextControl(t, s, time.Second)
	assert.Equal(t, models.ClientJoin, ev.Type)
	assert.Equal(t, "c1", ev.ConversationID)
}

func TestConnectionManager_ReconnectsWithBackoff(t *testing.T) {
	s := newFakeChatServer(t)
	m := newTestConn(t, s)

	events, cancel := m.Subscribe()
	defer cancel()
	require.NoError(t, m.Open(context.Background()))
	require.Equal(t, models.EventConnected, nextEvent(t, events, time.Second).Type)

	// Act - simulated network loss
	s.dropConnections()

	// Assert - disconnected, then connected again on a fresh socket
	assert.Equal(t, models.EventDisconnected, nextEvent(t, events, 2*time.Second).Type)
	assert.Equal(t, models.EventConnected, nextEvent(t, events, 2*time.Second).Type)
	assert.Equal(t, models.StateConnected, m.State())
	assert.Equal(t, 2, s.acceptedConnections())
}

func TestConnectionManager_CloseIsFinal(t *testing.T) {
	s := newFakeChatServer(t)
	m := newTestConn(t, s)

	events, cancel := m.Subscribe()
	defer cancel()
	require.NoError(t, m.Open(context.Background()))
	require.Equal(t, models.EventConnected, nextEvent(t, events, time.Second).Type)

	m.Close()

	// The subscription is closed, nothing further is delivered.
	_, ok := <-events
	assert.False(t, ok, "subscriber channel must be closed after Close")

	// Publishing after Close fails fast.
	err := m.Publish(models.ClientEvent{Type: models.ClientJoin, ConversationID: "c1"})
	assert.ErrorIs(t, err, livechat.ErrConnectionClosed)

	// And no reconnect is attempted.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, models.StateDisconnected, m.State())
	assert.Equal(t, 1, s.acceptedConnections())
}

func TestConnectionManager_PublishBuffersWhileReconnecting(t *testing.T) {
	s := newFakeChatServer(t)
	m := newTestConn(t, s)

	events, cancel := m.Subscribe()
	defer cancel()
	require.NoError(t, m.Open(context.Background()))
	require.Equal(t, models.EventConnected, nextEvent(t, events, time.Second).Type)

	s.dropConnections()
	require.Equal(t, models.EventDisconnected, nextEvent(t, events, 2*time.Second).Type)

	// Queued while the transport is down, flushed after reconnect.
	require.NoError(t, m.Publish(models.ClientEvent{Type: models.ClientTyping, ConversationID: "c1", IsTyping: true}))

	require.Equal(t, models.EventConnected, nextEvent(t, events, 2*time.Second).Type)
	ev := nextControl(t, s, time.Second)
	assert.Equal(t, models.ClientTyping, ev.Type)
}
