package control

import (
	"log"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// WebsocketSource accepts control messages over websocket connections. Each
// connection is assigned its own channel index.
type WebsocketSource struct {
	ctrl     *Controller
	upgrader websocket.Upgrader
	channels atomic.Int64
}

// NewWebsocketSource returns a source feeding ctrl.
func NewWebsocketSource(ctrl *Controller) *WebsocketSource {
	return &WebsocketSource{
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and hands every received message to the
// controller until the peer disconnects. Nothing is written back.
func (s *WebsocketSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("control websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	channel := int(s.channels.Add(1) - 1)
	log.Printf("control[%d]: websocket connected from %s", channel, r.RemoteAddr)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("control[%d]: websocket read: %v", channel, err)
			}
			log.Printf("control[%d]: websocket closed", channel)
			return
		}
		// Errors are logged by the controller and never end the session.
		_ = s.ctrl.Handle(msg, channel)
	}
}
