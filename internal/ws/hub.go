package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"channel-service/internal/models"
	"channel-service/internal/observability"
)

// subscriberQueueSize bounds the per-subscriber send queue. A subscriber
// whose queue is full when a publish arrives is disconnected rather than
// allowed to block the publisher.
const subscriberQueueSize = 64

// Hub fans published events out to topic subscribers. Delivery is
// at-most-once: no persistence, no replay, no backlog.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*Subscriber]struct{})}
}

// Subscriber is one live connection attached to a topic.
type Subscriber struct {
	topic string
	info  ConnInfo
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	once  sync.Once
}

// Info returns the connection metadata captured at handshake time.
func (s *Subscriber) Info() ConnInfo {
	return s.info
}

// Subscribe attaches a connection to a topic and starts its write pump.
// A nil conn registers a queue-only subscriber, used in tests.
func (h *Hub) Subscribe(topic string, conn *websocket.Conn, info ConnInfo) *Subscriber {
	sub := &Subscriber{
		topic: topic,
		info:  info,
		conn:  conn,
		send:  make(chan []byte, subscriberQueueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*Subscriber]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	h.mu.Unlock()

	if conn != nil {
		go sub.writePump()
	}
	return sub
}

// Unsubscribe detaches the subscriber and closes its connection. Safe to
// call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Publish delivers an event to every current subscriber of the topic.
// Fire-and-forget: the call never blocks on a slow subscriber; a subscriber
// with a full queue is dropped.
func (h *Hub) Publish(topic string, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}

	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.topics[topic]))
	for sub := range h.topics[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.send <- payload:
		case <-sub.done:
		default:
			log.Printf("dropping slow subscriber topic=%s conn_id=%s", topic, sub.info.ConnID)
			observability.IncWSEvent(topicKind(topic), "ws_overflow")
			h.Unsubscribe(sub)
		}
	}
}

// SubscriberCount reports the current number of subscribers on a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (s *Subscriber) writePump() {
	for {
		select {
		case payload := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error: %v", err)
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// close signals the pump to stop and closes the underlying connection.
// The send channel is never closed so publishers can race safely.
func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}
