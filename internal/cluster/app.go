package cluster

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/dreamware/scenesync/internal/codec"
	"github.com/dreamware/scenesync/internal/scene"
)

// Hooks are the points at which the frame driver touches shared scene state.
// On the master the driver calls PreSync then Encode once per frame; on a
// render node it calls Decode once per received frame, before drawing.
type Hooks interface {
	PreSync(now time.Time)
	Encode() []byte
	Decode(buf []byte) error
}

// Drawer is the rendering step. It runs after the scene for a frame is final
// and must only read the state.
type Drawer interface {
	Draw(frame uint64, s *scene.State)
}

// NopDrawer draws nothing.
type NopDrawer struct{}

// Draw implements Drawer.
func (NopDrawer) Draw(uint64, *scene.State) {}

// LogDrawer logs every box's pose once every Every frames. Zero disables it.
type LogDrawer struct {
	Prefix string
	Every  uint64
}

// Draw implements Drawer.
func (d LogDrawer) Draw(frame uint64, s *scene.State) {
	if d.Every == 0 || frame%d.Every != 0 {
		return
	}
	for _, p := range s.Snapshot() {
		log.Printf("%s frame %d box %d %s pos=%v rot=%v", d.Prefix, frame, p.ID, p.Name, p.Position, p.Rotation)
	}
}

// FrameStats reports frame counters for /info endpoints.
type FrameStats struct {
	Frames        uint64    `json:"frames"`
	FramingErrors uint64    `json:"framing_errors"`
	LastFrame     time.Time `json:"last_frame,omitempty"`
}

// App is the per-process context that owns the scene and implements Hooks.
// One App exists per process and is passed explicitly to the frame driver.
type App struct {
	state  *scene.State
	drawer Drawer

	frames        atomic.Uint64
	framingErrors atomic.Uint64
	lastFrame     atomic.Int64
}

// NewApp returns an App around state. A nil drawer draws nothing.
func NewApp(state *scene.State, drawer Drawer) *App {
	if drawer == nil {
		drawer = NopDrawer{}
	}
	return &App{state: state, drawer: drawer}
}

// State returns the scene owned by the app.
func (a *App) State() *scene.State {
	return a.state
}

// PreSync samples the master clock for the frame about to be encoded.
func (a *App) PreSync(now time.Time) {
	a.lastFrame.Store(now.UnixNano())
}

// Encode serializes the scene and counts the frame. Master only.
func (a *App) Encode() []byte {
	buf := codec.Encode(a.state)
	a.frames.Add(1)
	return buf
}

// Decode applies a received frame to the scene. A framing mismatch is counted
// and returned unchanged so callers can match it with errors.Is.
func (a *App) Decode(buf []byte) error {
	if err := codec.Decode(buf, a.state); err != nil {
		a.framingErrors.Add(1)
		return err
	}
	a.frames.Add(1)
	a.lastFrame.Store(time.Now().UnixNano())
	return nil
}

// Draw runs the drawer for the current frame.
func (a *App) Draw() {
	a.drawer.Draw(a.frames.Load(), a.state)
}

// Stats returns the frame counters.
func (a *App) Stats() FrameStats {
	st := FrameStats{
		Frames:        a.frames.Load(),
		FramingErrors: a.framingErrors.Load(),
	}
	if ns := a.lastFrame.Load(); ns != 0 {
		st.LastFrame = time.Unix(0, ns)
	}
	return st
}

// Layout describes the sync buffer this app produces and accepts.
func (a *App) Layout(selectors []string) Layout {
	return Layout{
		Boxes:     a.state.Len(),
		Selectors: selectors,
		FrameSize: codec.FrameSize(a.state.Len()),
	}
}
