// Package live pushes query results to websocket clients and re-pushes them
// whenever a change event touches a watched topic.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

// Message types sent to clients.
const (
	TypeSnapshot = "snapshot"
	TypeError    = "error"
)

// ClientMessage is what a client sends over the socket.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// ServerMessage carries a topic's full result set or a per-topic error.
type ServerMessage struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
	Error string      `json:"error,omitempty"`
	At    time.Time   `json:"at"`
}

// Conn is the part of a websocket connection the hub uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Client struct {
	ID        string
	Principal model.Principal
	send      chan []byte
	topics    map[string]model.Topic
}

type Hub struct {
	querier Querier
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
}

func NewHub(querier Querier, log *logger.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Hub{
		querier: querier,
		logger:  log.With("live"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
	}
}

// Run feeds change events from the broker into the hub until ctx is done.
func (h *Hub) Run(ctx context.Context, broker messaging.MessageBroker, channel string) error {
	return broker.Subscribe(ctx, channel, func(payload []byte) error {
		var change model.ChangeEvent
		if err := json.Unmarshal(payload, &change); err != nil {
			return err
		}
		h.HandleChange(ctx, change)
		return nil
	})
}

// HandleChange re-runs the query of every watched topic the change touches
// and pushes the new result sets.
func (h *Hub) HandleChange(ctx context.Context, change model.ChangeEvent) {
	h.querier.Changed(change)

	type target struct {
		client *Client
		topic  string
		parsed model.Topic
	}
	var targets []target

	h.mu.RLock()
	for _, topic := range change.Topics {
		for c := range h.clients[topic] {
			targets = append(targets, target{client: c, topic: topic, parsed: c.topics[topic]})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		h.push(ctx, t.client, t.topic, t.parsed)
		h.metrics.LivePushes.WithLabelValues(change.Collection).Inc()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
	h.metrics.LiveConnections.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[c]; !ok {
		return
	}
	for topic := range c.topics {
		h.removeLocked(c, topic)
	}
	delete(h.all, c)
	close(c.send)
	h.metrics.LiveConnections.Dec()
}

func (h *Hub) subscribe(c *Client, raw string, t model.Topic) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.topics[raw]; ok {
		return false
	}
	if h.clients[raw] == nil {
		h.clients[raw] = make(map[*Client]struct{})
	}
	h.clients[raw][c] = struct{}{}
	c.topics[raw] = t
	h.metrics.LiveSubscriptions.Inc()
	return true
}

func (h *Hub) unsubscribe(c *Client, raw string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, raw)
}

func (h *Hub) removeLocked(c *Client, raw string) {
	if _, ok := c.topics[raw]; !ok {
		return
	}
	delete(c.topics, raw)
	if subscribers, ok := h.clients[raw]; ok {
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(h.clients, raw)
		}
	}
	h.metrics.LiveSubscriptions.Dec()
}

// ProcessMessage subscribes or unsubscribes. A new subscription is
// registered before its first snapshot is taken so no change can fall
// between the two.
func (h *Hub) ProcessMessage(ctx context.Context, c *Client, msg ClientMessage) {
	for _, raw := range msg.Topics {
		switch msg.Action {
		case "subscribe":
			t := model.ParseTopic(raw)
			if err := Authorize(c.Principal, t); err != nil {
				h.sendError(c, raw, err)
				continue
			}
			if h.subscribe(c, raw, t) {
				h.push(ctx, c, raw, t)
			}
		case "unsubscribe":
			h.unsubscribe(c, raw)
		default:
			h.sendError(c, raw, errors.New("unknown action"))
			return
		}
	}
}

func (h *Hub) push(ctx context.Context, c *Client, raw string, t model.Topic) {
	data, err := h.querier.Query(ctx, c.Principal, t)
	if err != nil {
		if errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnknownTopic) {
			h.unsubscribe(c, raw)
		}
		h.sendError(c, raw, err)
		return
	}
	h.send(c, ServerMessage{Type: TypeSnapshot, Topic: raw, Data: data, At: h.now()})
}

func (h *Hub) sendError(c *Client, raw string, err error) {
	h.send(c, ServerMessage{Type: TypeError, Topic: raw, Error: err.Error(), At: h.now()})
}

func (h *Hub) send(c *Client, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(err, "failed to marshal live message", "topic", msg.Topic)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("live client too slow, message dropped", "client_id", c.ID, "topic", msg.Topic)
	}
}

// Serve runs a connected client until the socket closes or ctx is done.
func (h *Hub) Serve(ctx context.Context, conn Conn, p model.Principal) {
	c := &Client{
		ID:        uuid.New().String(),
		Principal: p,
		send:      make(chan []byte, 64),
		topics:    make(map[string]model.Topic),
	}
	h.register(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c, conn)
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	h.readPump(ctx, c, conn)
	h.unregister(c)
	<-done
}

func (h *Hub) readPump(ctx context.Context, c *Client, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(c, "", errors.New("malformed message"))
			continue
		}
		h.ProcessMessage(ctx, c, msg)
	}
}

func (h *Hub) writePump(c *Client, conn Conn) {
	defer conn.Close()
	for data := range c.send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients watching topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
