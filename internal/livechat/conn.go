// Package livechat implements the live conversation channel shared by the
// customer widget and the staff console: one socket per session, room-scoped
// subscriptions, a deduplicated message log, ephemeral typing presence and the
// conversation lifecycle state machine.
package livechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shoply/livechat/internal/config"
	"shoply/livechat/internal/models"
)

// Publisher is the outbound control surface of the live connection. Only the
// room subscription and the typing tracker publish on it, which keeps the
// single socket free of uncoordinated writers.
type Publisher interface {
	Publish(ev models.ClientEvent) error
}

// ConnectionManager owns the single duplex connection of a session: handshake,
// reconnect with backoff, and teardown. It survives conversation switches; it
// is torn down only when the session ends.
//
// Opening an already-open manager is a no-op, so all views of a session share
// one socket. Inbound traffic is decoded into tagged ServerEvents and fanned
// out to subscribers; transport transitions surface as connected/disconnected
// events on the same stream, never as errors.
type ConnectionManager struct {
	url     string
	session models.Session
	dialer  *websocket.Dialer

	mu          sync.Mutex
	state       models.ConnectionState
	conn        *websocket.Conn
	opened      bool
	subscribers map[int]chan models.ServerEvent
	nextSubID   int

	sendCh    chan models.ClientEvent
	closeCh   chan struct{}
	closeOnce sync.Once

	// Backoff tuning. Overridable before Open; tests shorten these.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
}

func NewConnectionManager(url string, session models.Session) *ConnectionManager {
	return &ConnectionManager{
		url:     url,
		session: session,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
		state:       models.StateDisconnected,
		subscribers: make(map[int]chan models.ServerEvent),
		sendCh:      make(chan models.ClientEvent, config.SendBufferSize),
		closeCh:     make(chan struct{}),

		ReconnectBase: config.ReconnectBaseDelay,
		ReconnectMax:  config.ReconnectMaxDelay,
	}
}

// Session returns the identity this connection was opened with. Changing role
// or token means closing this manager and constructing a new one.
func (m *ConnectionManager) Session() models.Session {
	return m.session
}

func (m *ConnectionManager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open establishes the transport. Calling it again while the connection is
// open (or opening) is idempotent and returns nil. A handshake rejection is
// terminal and reported as ErrAuthRejected; it is never retried here.
func (m *ConnectionManager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.opened || m.state == models.StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = models.StateConnecting
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.setState(models.StateDisconnected)
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.opened = true
	m.state = models.StateConnected
	m.mu.Unlock()

	m.startPumps(conn)
	m.broadcast(models.ServerEvent{Type: models.EventConnected})
	return nil
}

func (m *ConnectionManager) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.session.AuthToken)

	conn, resp, err := m.dialer.DialContext(ctx, m.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("livechat: dial %s: %w", m.url, err)
	}
	return conn, nil
}

// Subscribe registers a listener for inbound events. The returned cancel
// function removes the listener and closes its channel. Close cancels all
// remaining subscriptions.
func (m *ConnectionManager) Subscribe() (<-chan models.ServerEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan models.ServerEvent, config.EventBufferSize)
	m.subscribers[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish queues an outbound control event. While the transport is down the
// event is buffered and flushed after reconnection.
func (m *ConnectionManager) Publish(ev models.ClientEvent) error {
	select {
	case <-m.closeCh:
		return ErrConnectionClosed
	case m.sendCh <- ev:
		return nil
	}
}

// Close releases the transport and unsubscribes every listener. It is safe to
// call more than once. No events are delivered after it returns.
func (m *ConnectionManager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.state = models.StateDisconnected
		close(m.closeCh)
		conn := m.conn
		m.conn = nil
		subs := m.subscribers
		m.subscribers = make(map[int]chan models.ServerEvent)
		m.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		for _, ch := range subs {
			close(ch)
		}
	})
}

func (m *ConnectionManager) setState(s models.ConnectionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *ConnectionManager) closed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

// broadcast fans an event out to all subscribers. Delivery is non-blocking: a
// subscriber that stopped draining its buffer loses events rather than
// stalling the read pump (same policy the server hub applies to slow clients).
func (m *ConnectionManager) broadcast(ev models.ServerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			log.Printf("WARNING: livechat subscriber %d is not draining, dropping %s event", id, ev.Type)
		}
	}
}

func (m *ConnectionManager) startPumps(conn *websocket.Conn) {
	done := make(chan struct{})
	go m.writePump(conn, done)
	go m.readPump(conn, done)
}

func (m *ConnectionManager) readPump(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		conn.Close()
	}()

	conn.SetReadLimit(config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !m.closed() {
				log.Printf("livechat: read error: %v", err)
			}
			break
		}

		var ev models.ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("livechat: dropping undecodable event: %v", err)
			continue
		}
		m.broadcast(ev)
	}

	if m.closed() {
		return
	}

	// Transport lost, not an explicit Close: surface the transition and start
	// the backoff loop.
	m.setState(models.StateReconnecting)
	m.broadcast(models.ServerEvent{Type: models.EventDisconnected})
	go m.reconnectLoop()
}

func (m *ConnectionManager) writePump(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-m.sendCh:
			conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("ERROR: livechat: encoding %s event: %v", ev.Type, err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-m.closeCh:
			conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (m *ConnectionManager) reconnectLoop() {
	for attempt := 0; ; attempt++ {
		select {
		case <-m.closeCh:
			return
		case <-time.After(m.reconnectDelay(attempt)):
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.HandshakeTimeout)
		conn, err := m.dial(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, ErrAuthRejected) {
				// The token went bad while we were reconnecting. Give up; the
				// caller sees a lasting disconnected state.
				log.Printf("ERROR: livechat: reconnect rejected by handshake, giving up: %v", err)
				m.setState(models.StateDisconnected)
				return
			}
			log.Printf("livechat: reconnect attempt %d failed: %v", attempt+1, err)
			continue
		}

		m.mu.Lock()
		if m.closed() {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.state = models.StateConnected
		m.mu.Unlock()

		m.startPumps(conn)
		m.broadcast(models.ServerEvent{Type: models.EventConnected})
		return
	}
}

// reconnectDelay doubles from the base up to the cap, with jitter on both
// sides so a fleet of clients does not stampede the server after an outage.
func (m *ConnectionManager) reconnectDelay(attempt int) time.Duration {
	delay := m.ReconnectBase << uint(attempt)
	if delay > m.ReconnectMax || delay <= 0 {
		delay = m.ReconnectMax
	}
	jitter := 1 - config.ReconnectJitter + 2*config.ReconnectJitter*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}
