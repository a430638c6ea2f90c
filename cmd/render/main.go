// Package main implements a scenesync render node, which mirrors the master's
// scene by applying the frames it streams.
//
// A render node:
//   - Registers with the master so it is health checked
//   - Verifies its scene has the same layout as the master's
//   - Subscribes to the frame stream and applies every frame before drawing
//   - Exits on a frame of the wrong size, since its scene can no longer match
//
// HTTP API:
//
//	GET /health  liveness, probed by the master
//	GET /state   current box poses
//	GET /info    node identity and frame counters
//
// Configuration:
//   - NODE_ID: node identifier (default: a generated KSUID)
//   - NODE_LISTEN: listen address (default ":8081")
//   - NODE_ADDR: public address given to the master (default "http://127.0.0.1:8081")
//   - MASTER_ADDR: master URL (required)
//   - SCENE_CONFIG: YAML scene file, must match the master's
//   - DRAW_LOG_EVERY: log poses every N frames, 0 disables (default 0)
//   - PROFILE: "cpu" or "mem" to write a profile on exit
//
// Example:
//
//	MASTER_ADDR=http://localhost:8080 NODE_LISTEN=:8081 ./render
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/profile"
	"github.com/segmentio/ksuid"

	"github.com/dreamware/scenesync/internal/cluster"
	"github.com/dreamware/scenesync/internal/codec"
	"github.com/dreamware/scenesync/internal/scene"
)

// logFatal is a variable so tests can intercept fatal errors.
var logFatal = log.Fatalf

var (
	registerAttempts = 10
	registerDelay    = 400 * time.Millisecond
	reconnectDelay   = time.Second
)

func main() {
	nodeID := getenv("NODE_ID", "")
	if nodeID == "" {
		nodeID = ksuid.New().String()
	}
	listen := getenv("NODE_LISTEN", ":8081")
	public := getenv("NODE_ADDR", "http://127.0.0.1:8081")
	masterAddr := mustGetenv("MASTER_ADDR")
	if p := startProfile(os.Getenv("PROFILE")); p != nil {
		defer p.Stop()
	}

	cfg := loadSceneConfig(os.Getenv("SCENE_CONFIG"))
	node, err := newRenderNode(nodeID, masterAddr, cfg, uint64(getenvInt("DRAW_LOG_EVERY", 0)))
	if err != nil {
		logFatal("scene: %v", err)
		return
	}

	s := &http.Server{
		Addr:              listen,
		Handler:           node.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("render[%s] listening on %s (public %s)", nodeID, listen, public)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	register(ctx, masterAddr, nodeID, public)
	if err := checkLayout(ctx, masterAddr, node.app); err != nil {
		logFatal("render[%s] scene layout: %v", nodeID, err)
		return
	}

	done := make(chan error, 1)
	go func() { done <- node.run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-done:
		logFatal("render[%s] stopped: %v", nodeID, err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("render stopped")
}

type renderNode struct {
	id     string
	master string
	app    *cluster.App
}

func newRenderNode(id, master string, cfg scene.Config, drawEvery uint64) (*renderNode, error) {
	state, err := scene.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	drawer := cluster.LogDrawer{Prefix: "render[" + id + "]", Every: drawEvery}
	return &renderNode{
		id:     id,
		master: master,
		app:    cluster.NewApp(state, drawer),
	}, nil
}

func (n *renderNode) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/state", n.handleState).Methods(http.MethodGet)
	r.HandleFunc("/info", n.handleInfo).Methods(http.MethodGet)
	return r
}

func (n *renderNode) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, struct {
		Boxes []scene.Pose `json:"boxes"`
	}{Boxes: n.app.State().Snapshot()})
}

func (n *renderNode) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, struct {
		ID     string             `json:"id"`
		Master string             `json:"master"`
		Boxes  int                `json:"boxes"`
		Frames cluster.FrameStats `json:"frames"`
	}{
		ID:     n.id,
		Master: n.master,
		Boxes:  n.app.State().Len(),
		Frames: n.app.Stats(),
	})
}

// run keeps the node subscribed to the master's frame stream until ctx is
// cancelled. A dropped stream is redialled. A framing error is returned,
// since no later frame can be trusted either.
func (n *renderNode) run(ctx context.Context) error {
	for {
		conn, err := cluster.DialFrames(ctx, n.master, n.id)
		if err == nil {
			log.Printf("render[%s] subscribed to frames @ %s", n.id, n.master)
			err = cluster.Receive(ctx, n.app, conn)
			conn.Close()
			if errors.Is(err, codec.ErrFraming) {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("render[%s] frame stream: %v, reconnecting in %v", n.id, err, reconnectDelay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// register announces the node to the master, retrying while the master
// starts up. Failing every attempt is fatal.
func register(ctx context.Context, master, id, addr string) {
	body := cluster.RegisterRequest{Node: cluster.NodeInfo{ID: id, Addr: addr}}
	var lastErr error

	for i := 0; i < registerAttempts; i++ {
		lastErr = cluster.PostJSON(ctx, master+"/register", body, nil)
		if lastErr == nil {
			log.Printf("render[%s] registered with master @ %s", id, master)
			return
		}
		log.Printf("register retry %d: %v", i+1, lastErr)
		time.Sleep(registerDelay)
	}

	logFatal("failed to register with master: %v", lastErr)
}

// checkLayout compares the master's sync buffer layout with the local scene.
func checkLayout(ctx context.Context, master string, app *cluster.App) error {
	var remote cluster.Layout
	if err := cluster.GetJSON(ctx, master+"/scene", &remote); err != nil {
		return fmt.Errorf("fetch layout: %w", err)
	}
	local := app.Layout(nil)
	if remote.FrameSize != local.FrameSize || remote.Boxes != local.Boxes {
		return fmt.Errorf("%w: master has %d boxes in %d bytes, local scene has %d boxes in %d bytes",
			codec.ErrFraming, remote.Boxes, remote.FrameSize, local.Boxes, local.FrameSize)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func loadSceneConfig(path string) scene.Config {
	if path == "" {
		return scene.DefaultConfig()
	}
	cfg, err := scene.LoadConfig(path)
	if err != nil {
		logFatal("scene config %s: %v", path, err)
		return scene.DefaultConfig()
	}
	return cfg
}

func startProfile(mode string) interface{ Stop() } {
	switch mode {
	case "":
		return nil
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	case "mem":
		return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	default:
		log.Printf("unknown PROFILE %q, profiling disabled", mode)
		return nil
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", k, v, def)
		return def
	}
	return n
}

func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
