// Package main implements the scenesync master, the authoritative owner of
// the shared scene.
//
// The master:
//   - Accepts control messages over websocket, HTTP and optionally Redis
//   - Encodes the scene once per frame and streams it to render nodes
//   - Keeps a registry of render nodes and probes their health
//
// HTTP API:
//
//	GET  /health             liveness
//	POST /register           render node registration
//	GET  /nodes              registered render nodes
//	GET  /scene              sync buffer layout
//	GET  /state              current box poses
//	GET  /info               frame, control and subscriber counters
//	POST /reset              zero every box
//	GET  /control/ws         control messages over websocket
//	POST /control            control message, channel 0
//	POST /control/{channel}  control message on a numbered channel
//	GET  /frames?node=<id>   frame stream (websocket)
//
// Configuration:
//   - MASTER_LISTEN: listen address (default ":8080")
//   - SCENE_CONFIG: YAML scene file (default: two boxes, selectors '0' and '1')
//   - FRAME_RATE: frames per second (default 60)
//   - HEALTH_INTERVAL: render node probe interval (default "5s")
//   - DRAW_LOG_EVERY: log poses every N frames, 0 disables (default 0)
//   - REDIS_ADDR: enables the Redis control source when set
//   - REDIS_CHANNELS: comma-separated channels (default "scenesync:control")
//   - PROFILE: "cpu" or "mem" to write a profile on exit
//
// Example:
//
//	MASTER_LISTEN=:8080 ./master
//	curl -X POST localhost:8080/control/0 -d '00 1.0 0.5 -2.0'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/pkg/profile"

	"github.com/dreamware/scenesync/internal/cluster"
	"github.com/dreamware/scenesync/internal/control"
	"github.com/dreamware/scenesync/internal/master"
	"github.com/dreamware/scenesync/internal/scene"
)

// logFatal is a variable so tests can intercept fatal errors.
var logFatal = log.Fatalf

func main() {
	addr := getenv("MASTER_LISTEN", ":8080")
	if p := startProfile(os.Getenv("PROFILE")); p != nil {
		defer p.Stop()
	}

	cfg := loadSceneConfig(os.Getenv("SCENE_CONFIG"))
	srv, err := newServer(cfg, uint64(getenvInt("DRAW_LOG_EVERY", 0)))
	if err != nil {
		logFatal("scene: %v", err)
		return
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("master listening on %s with %d boxes", addr, srv.app.State().Len())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := cluster.NewLoop(srv.app, srv.hub, getenvInt("FRAME_RATE", 60))
	go loop.Run(ctx)
	srv.monitor.Run(ctx, srv.registry.List)

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		channels := splitList(getenv("REDIS_CHANNELS", "scenesync:control"))
		src := control.NewRedisSource(rdb, channels, srv.ctrl)
		go func() {
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("redis control source stopped: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	srv.monitor.Stop()
	srv.hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Println("master stopped")
}

type server struct {
	cfg      scene.Config
	app      *cluster.App
	ctrl     *control.Controller
	registry *master.Registry
	hub      *master.Hub
	monitor  *master.HealthMonitor
}

func newServer(cfg scene.Config, drawEvery uint64) (*server, error) {
	state, err := scene.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &server{
		cfg:      cfg,
		app:      cluster.NewApp(state, cluster.LogDrawer{Prefix: "master", Every: drawEvery}),
		ctrl:     control.NewController(state, control.SelectorsFromConfig(cfg)),
		registry: master.NewRegistry(),
		hub:      master.NewHub(),
		monitor:  master.NewHealthMonitor(getenvDuration("HEALTH_INTERVAL", 5*time.Second)),
	}
	s.monitor.SetOnStatusChange(s.onNodeStatus)
	return s, nil
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/nodes", s.handleListNodes).Methods(http.MethodGet)
	r.HandleFunc("/scene", s.handleScene).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	r.Handle("/control/ws", control.NewWebsocketSource(s.ctrl)).Methods(http.MethodGet)
	r.Handle("/control", control.HTTPHandler(s.ctrl)).Methods(http.MethodPost)
	r.Handle("/control/{channel}", control.HTTPHandler(s.ctrl)).Methods(http.MethodPost)

	r.Handle(cluster.FramesPath, s.hub).Methods(http.MethodGet)
	return r
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	added, err := s.registry.Register(req.Node)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if added {
		log.Printf("render[%s] registered @ %s", req.Node.ID, req.Node.Addr)
	} else {
		log.Printf("render[%s] re-registered @ %s", req.Node.ID, req.Node.Addr)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.registry.List()
	if nodes == nil {
		nodes = []cluster.NodeInfo{}
	}
	writeJSON(w, struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}{Nodes: nodes})
}

func (s *server) handleScene(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.app.Layout(selectorList(s.cfg)))
}

func (s *server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, struct {
		Boxes []scene.Pose `json:"boxes"`
	}{Boxes: s.app.State().Snapshot()})
}

func (s *server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, struct {
		Frames      cluster.FrameStats      `json:"frames"`
		Control     control.Stats           `json:"control"`
		Published   uint64                  `json:"published"`
		Subscribers []master.SubscriberInfo `json:"subscribers"`
	}{
		Frames:      s.app.Stats(),
		Control:     s.ctrl.Stats(),
		Published:   s.hub.Published(),
		Subscribers: s.hub.Subscribers(),
	})
}

func (s *server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.app.State().Reset()
	log.Println("master: scene reset")
	w.WriteHeader(http.StatusNoContent)
}

// onNodeStatus records health transitions and stops streaming to nodes that
// stopped answering; they resubscribe when they come back.
func (s *server) onNodeStatus(nodeID, status string) {
	s.registry.SetStatus(nodeID, status)
	if status == cluster.StatusUnhealthy {
		if n := s.hub.Drop(nodeID); n > 0 {
			log.Printf("render[%s] unhealthy, dropped %d frame subscriptions", nodeID, n)
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func selectorList(cfg scene.Config) []string {
	out := make([]string, len(cfg.Boxes))
	for i, b := range cfg.Boxes {
		out[i] = b.Selector
	}
	return out
}

// loadSceneConfig reads the scene from path, or returns the default scene
// when path is empty. An unreadable or invalid file is fatal.
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %v", k, v, def)
		return def
	}
	return d
}
