package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/scenesync/internal/cluster"
	"github.com/dreamware/scenesync/internal/codec"
	"github.com/dreamware/scenesync/internal/master"
	"github.com/dreamware/scenesync/internal/scene"
)

func interceptFatal(t *testing.T) *string {
	t.Helper()
	var msg string
	orig := logFatal
	logFatal = func(format string, args ...any) { msg = fmt.Sprintf(format, args...) }
	t.Cleanup(func() { logFatal = orig })
	return &msg
}

func fastRetries(t *testing.T) {
	t.Helper()
	attempts, delay, reconnect := registerAttempts, registerDelay, reconnectDelay
	registerAttempts, registerDelay, reconnectDelay = 3, time.Millisecond, 10*time.Millisecond
	t.Cleanup(func() {
		registerAttempts, registerDelay, reconnectDelay = attempts, delay, reconnect
	})
}

// TestMustGetenv verifies a missing required variable is fatal
func TestMustGetenv(t *testing.T) {
	fatal := interceptFatal(t)

	t.Setenv("SCENESYNC_MASTER", "http://m:8080")
	assert.Equal(t, "http://m:8080", mustGetenv("SCENESYNC_MASTER"))
	assert.Empty(t, *fatal)

	t.Setenv("SCENESYNC_MASTER", "")
	assert.Equal(t, "", mustGetenv("SCENESYNC_MASTER"))
	assert.Equal(t, "missing env SCENESYNC_MASTER", *fatal)
}

// TestGetenvInt verifies integer env parsing falls back on bad input
func TestGetenvInt(t *testing.T) {
	t.Setenv("SCENESYNC_EVERY", "120")
	assert.Equal(t, 120, getenvInt("SCENESYNC_EVERY", 0))
	t.Setenv("SCENESYNC_EVERY", "x")
	assert.Equal(t, 0, getenvInt("SCENESYNC_EVERY", 0))
}

// TestRoutes covers /health, /state and /info
func TestRoutes(t *testing.T) {
	node, err := newRenderNode("r1", "http://master", scene.DefaultConfig(), 0)
	require.NoError(t, err)
	box, _ := node.app.State().Box(1)
	box.RotBeta.Set(0.75)

	ts := httptest.NewServer(node.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var state struct {
		Boxes []scene.Pose `json:"boxes"`
	}
	require.NoError(t, cluster.GetJSON(context.Background(), ts.URL+"/state", &state))
	require.Len(t, state.Boxes, 2)
	assert.Equal(t, scene.Vec3{0, 0.75, 0}, state.Boxes[1].Rotation)
	assert.Equal(t, "covidag", state.Boxes[1].Name)

	var info map[string]json.RawMessage
	require.NoError(t, cluster.GetJSON(context.Background(), ts.URL+"/info", &info))
	assert.JSONEq(t, `"r1"`, string(info["id"]))
	assert.JSONEq(t, `2`, string(info["boxes"]))
}

// TestRegister covers the registration retry loop
func TestRegister(t *testing.T) {
	fastRetries(t)

	t.Run("succeeds after master comes up", func(t *testing.T) {
		fatal := interceptFatal(t)
		var calls atomic.Int32
		var got cluster.RegisterRequest
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			assert.Equal(t, "/register", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer ts.Close()

		register(context.Background(), ts.URL, "r1", "http://127.0.0.1:9001")
		assert.Empty(t, *fatal)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, cluster.NodeInfo{ID: "r1", Addr: "http://127.0.0.1:9001"}, got.Node)
	})

	t.Run("fatal after every attempt fails", func(t *testing.T) {
		fatal := interceptFatal(t)
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		register(context.Background(), ts.URL, "r1", "http://127.0.0.1:9001")
		assert.Contains(t, *fatal, "failed to register with master")
		assert.Equal(t, int32(3), calls.Load())
	})
}

func layoutServer(t *testing.T, layout cluster.Layout) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/scene", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, layout)
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

// TestCheckLayout verifies a layout mismatch with the master is a framing error
func TestCheckLayout(t *testing.T) {
	app := cluster.NewApp(scene.New(2), cluster.NopDrawer{})

	tests := []struct {
		name    string
		layout  cluster.Layout
		framing bool
	}{
		{"matching", cluster.Layout{Boxes: 2, FrameSize: 48}, false},
		{"more boxes on master", cluster.Layout{Boxes: 3, FrameSize: 72}, true},
		{"frame size differs", cluster.Layout{Boxes: 2, FrameSize: 40}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := layoutServer(t, tt.layout)
			err := checkLayout(context.Background(), ts.URL, app)
			if tt.framing {
				assert.ErrorIs(t, err, codec.ErrFraming)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("master unreachable", func(t *testing.T) {
		err := checkLayout(context.Background(), "http://127.0.0.1:1", app)
		require.Error(t, err)
		assert.NotErrorIs(t, err, codec.ErrFraming)
	})
}

// TestRunMirrorsMasterAndStopsOnFraming applies a streamed frame, then stops on a frame of the wrong size
func TestRunMirrorsMasterAndStopsOnFraming(t *testing.T) {
	fastRetries(t)

	hub := master.NewHub()
	defer hub.Close()
	r := mux.NewRouter()
	r.Handle(cluster.FramesPath, hub)
	ts := httptest.NewServer(r)
	defer ts.Close()

	node, err := newRenderNode("r1", ts.URL, scene.DefaultConfig(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- node.run(ctx) }()
	require.Eventually(t, func() bool { return len(hub.Subscribers()) == 1 }, 2*time.Second, 5*time.Millisecond)

	src := scene.New(2)
	b, _ := src.Box(0)
	b.PosZ.Set(-3.5)
	b.RotAlpha.Set(1.25)
	hub.Publish(codec.Encode(src))

	require.Eventually(t, func() bool { return node.app.Stats().Frames == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, src.Snapshot()[0].Position, node.app.State().Snapshot()[0].Position)
	assert.Equal(t, src.Snapshot()[0].Rotation, node.app.State().Snapshot()[0].Rotation)

	hub.Publish(make([]byte, codec.FrameSize(3)))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, codec.ErrFraming)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop on a framing error")
	}
	assert.Equal(t, uint64(1), node.app.Stats().FramingErrors)
	assert.Equal(t, src.Snapshot()[0].Position, node.app.State().Snapshot()[0].Position)
}

// TestRunReconnectsAfterDrop verifies a dropped frame stream is redialled
func TestRunReconnectsAfterDrop(t *testing.T) {
	fastRetries(t)

	hub := master.NewHub()
	defer hub.Close()
	ts := httptest.NewServer(hub)
	defer ts.Close()

	node, err := newRenderNode("r1", ts.URL, scene.DefaultConfig(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- node.run(ctx) }()

	require.Eventually(t, func() bool { return len(hub.Subscribers()) == 1 }, 2*time.Second, 5*time.Millisecond)
	first := hub.Subscribers()[0].ID
	assert.Equal(t, 1, hub.Drop("r1"))

	require.Eventually(t, func() bool {
		subs := hub.Subscribers()
		return len(subs) == 1 && subs[0].ID != first
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
