package websocket

import (
	"context"
	"sync"
	"time"

	"tutorhub/notify"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeChange MessageType = "change"
	MessageTypePing   MessageType = "ping"
	MessageTypePong   MessageType = "pong"
)

// Message is what a change stream client receives. A change message only
// says that something changed; clients re-fetch what they display.
type Message struct {
	Type      MessageType   `json:"type"`
	Source    notify.Source `json:"source,omitempty"`
	Key       string        `json:"key,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// Client is one WebSocket connection
type Client struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan *Message
	Manager *Manager
	once    sync.Once
}

// Manager fans notifier signals out to every connected client
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewManager starts the fan-out loop. It runs until ctx ends or Close is
// called.
func NewManager(ctx context.Context, notifier *notify.Notifier, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.GetDefault()
	}
	ctx, cancel := context.WithCancel(ctx)

	m := &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 10),
		unregister: make(chan *Client, 10),
		log:        log.Component("websocket"),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go m.run(notifier.Signals(ctx))
	return m
}

func (m *Manager) run(signals <-chan notify.Signal) {
	defer close(m.done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case sig, ok := <-signals:
			if !ok {
				m.closeAllClients()
				return
			}
			m.broadcast(&Message{
				Type:      MessageTypeChange,
				Source:    sig.Source,
				Key:       sig.Key,
				Timestamp: time.Now().UnixMilli(),
			})

		case <-ticker.C:
			m.broadcast(&Message{Type: MessageTypePing, Timestamp: time.Now().UnixMilli()})

		case <-m.ctx.Done():
			m.closeAllClients()
			return
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.mu.Lock()
	m.clients[client.ID] = client
	total := len(m.clients)
	m.mu.Unlock()

	metrics.StreamConnectionsActive.WithLabelValues("websocket").Inc()
	m.log.WithFields(map[string]any{"client_id": client.ID, "total_clients": total}).Debug("client registered")
}

func (m *Manager) unregisterClient(client *Client) {
	m.mu.Lock()
	_, exists := m.clients[client.ID]
	if exists {
		delete(m.clients, client.ID)
	}
	m.mu.Unlock()

	if exists {
		close(client.Send)
		metrics.StreamConnectionsActive.WithLabelValues("websocket").Dec()
	}
}

// broadcast drops the message for clients whose buffer is full; they
// catch up on the next change or their own poll
func (m *Manager) broadcast(msg *Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, client := range m.clients {
		select {
		case client.Send <- msg:
		default:
			m.log.WithField("client_id", id).Warn("client send buffer full, dropping message")
		}
	}
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
		metrics.StreamConnectionsActive.WithLabelValues("websocket").Dec()
	}
}

// Close stops the fan-out loop and disconnects every client
func (m *Manager) Close() {
	m.cancel()
	<-m.done
}

// Serve registers conn and pumps messages until either side hangs up
func (m *Manager) Serve(conn *websocket.Conn) {
	client := &Client{
		ID:      uuid.NewString(),
		Conn:    conn,
		Send:    make(chan *Message, 16),
		Manager: m,
	}

	select {
	case m.register <- client:
	case <-m.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

// readPump only watches for the peer going away; clients send nothing
// but pongs
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Manager.unregister <- c:
		case <-c.Manager.ctx.Done():
		}
		c.close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Manager.log.WithError(err).Debug("websocket read error")
			}
			return
		}
		if msg.Type == MessageTypePong || msg.Type == MessageTypePing {
			c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}
}

func (c *Client) writePump() {
	defer c.close()

	for msg := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.Conn.WriteJSON(msg); err != nil {
			c.Manager.log.WithError(err).Debug("websocket write error")
			return
		}
	}

	c.Conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) close() {
	c.once.Do(func() {
		c.Conn.Close()
	})
}
