package cluster

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// FramesPath is the master endpoint render nodes subscribe to.
const FramesPath = "/frames"

// ErrNotBinary is returned by a FrameConn when the master sends a
// non-binary message on the frame stream.
var ErrNotBinary = errors.New("frame stream message is not binary")

// FrameConn is a render node's websocket subscription to the master's frame
// stream. Each binary message is exactly one encoded frame.
type FrameConn struct {
	conn *websocket.Conn
}

// FramesURL turns the master's HTTP base address into the websocket URL of
// its frame stream for nodeID.
func FramesURL(masterAddr, nodeID string) (string, error) {
	addr := masterAddr
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse master address: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported master scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + FramesPath
	u.RawQuery = url.Values{"node": []string{nodeID}}.Encode()
	return u.String(), nil
}

// DialFrames subscribes to the master's frame stream.
func DialFrames(ctx context.Context, masterAddr, nodeID string) (*FrameConn, error) {
	u, err := FramesURL(masterAddr, nodeID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &FrameConn{conn: conn}, nil
}

// ReadFrame blocks until the next frame arrives.
func (f *FrameConn) ReadFrame() ([]byte, error) {
	typ, buf, err := f.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.BinaryMessage {
		return nil, ErrNotBinary
	}
	return buf, nil
}

// Close ends the subscription.
func (f *FrameConn) Close() error {
	return f.conn.Close()
}
