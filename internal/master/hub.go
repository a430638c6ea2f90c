package master

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	writeWait = 2 * time.Second

	// Render nodes never send data on the frame stream; only control frames
	// such as close and pong are expected.
	maxSubscriberMessage = 512
)

// SubscriberInfo describes one frame stream subscription.
type SubscriberInfo struct {
	ID      string `json:"id"`
	NodeID  string `json:"node_id"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type subscriber struct {
	id     ksuid.KSUID
	nodeID string
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// offer queues buf for sending. Only the newest frame is kept: if the
// subscriber has not picked up the previous one yet, it is replaced. Offer is
// only called from the single publishing goroutine.
func (s *subscriber) offer(buf []byte) {
	for {
		select {
		case s.frames <- buf:
			return
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
	}
}

// Hub fans encoded frames out to every subscribed render node over
// websockets. Each frame is sent as one binary message, unmodified.
type Hub struct {
	mu       sync.RWMutex
	subs     map[ksuid.KSUID]*subscriber
	upgrader websocket.Upgrader

	published atomic.Uint64
}

// NewHub returns a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[ksuid.KSUID]*subscriber),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades a render node's request on GET /frames?node=<id> and
// streams frames to it until it disconnects or is dropped.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nodeID := r.URL.Query().Get("node")
	if nodeID == "" {
		http.Error(w, "missing node", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("frames upgrade for render[%s]: %v", nodeID, err)
		return
	}

	sub := &subscriber{
		id:     ksuid.New(),
		nodeID: nodeID,
		conn:   conn,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(maxSubscriberMessage)
	h.add(sub)
	defer h.remove(sub)

	// Reads are only needed to notice the peer closing the connection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.close()
				return
			}
		}
	}()

	for {
		select {
		case buf := <-sub.frames:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				log.Printf("frames write to render[%s]: %v", nodeID, err)
				return
			}
			sub.sent.Add(1)
		case <-sub.done:
			return
		}
	}
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()
	log.Printf("render[%s] subscribed to frames as %s, %d subscribers", sub.nodeID, sub.id, n)
}

func (h *Hub) remove(sub *subscriber) {
	sub.close()
	h.mu.Lock()
	delete(h.subs, sub.id)
	n := len(h.subs)
	h.mu.Unlock()
	log.Printf("render[%s] unsubscribed %s, %d subscribers", sub.nodeID, sub.id, n)
}

// Publish queues buf for every current subscriber. It never blocks on a slow
// subscriber. buf must not be modified afterwards.
func (h *Hub) Publish(buf []byte) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.offer(buf)
	}
}

// Drop closes every subscription held by nodeID and returns how many there
// were.
func (h *Hub) Drop(nodeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, sub := range h.subs {
		if sub.nodeID == nodeID {
			sub.close()
			n++
		}
	}
	return n
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.close()
	}
}

// Subscribers lists the current subscriptions.
func (h *Hub) Subscribers() []SubscriberInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]SubscriberInfo, 0, len(h.subs))
	for _, sub := range h.subs {
		out = append(out, SubscriberInfo{
			ID:      sub.id.String(),
			NodeID:  sub.nodeID,
			Sent:    sub.sent.Load(),
			Dropped: sub.dropped.Load(),
		})
	}
	return out
}

// Published returns the number of frames handed to Publish.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}
