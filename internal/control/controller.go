package control

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/dreamware/scenesync/internal/scene"
)

// Stats counts control messages by outcome since the controller was created.
type Stats struct {
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
	Ignored  uint64 `json:"ignored"`
}

// Controller applies control messages to a scene. It is safe for concurrent
// use by any number of sources; every field write goes through the box's
// shared values.
type Controller struct {
	state *scene.State
	sel   Selectors

	applied  atomic.Uint64
	rejected atomic.Uint64
	ignored  atomic.Uint64
}

// NewController returns a controller that mutates state, resolving selectors
// through sel.
func NewController(state *scene.State, sel Selectors) *Controller {
	return &Controller{state: state, sel: sel}
}

// Handle parses and applies one message. A zero-length message is a no-op and
// returns nil. Any other failure is logged, counted and returned; the scene
// is left untouched in that case.
func (c *Controller) Handle(msg []byte, channel int) error {
	if len(msg) == 0 {
		c.ignored.Add(1)
		return nil
	}

	cmd, err := Parse(msg, c.sel)
	if err == nil {
		err = c.Apply(cmd)
	}
	if err != nil {
		c.rejected.Add(1)
		log.Printf("control[%d]: rejected %q: %v", channel, msg, err)
		return err
	}

	c.applied.Add(1)
	return nil
}

// Apply adds the command's delta to its target box. The target index is
// checked before use.
func (c *Controller) Apply(cmd Command) error {
	box, ok := c.state.Box(cmd.Target)
	if !ok {
		return fmt.Errorf("%w: box index %d", ErrUnknownTarget, cmd.Target)
	}

	fields := box.Fields()
	group := fields[:3]
	switch cmd.Op {
	case OpPosition:
	case OpRotation:
		group = fields[3:]
	default:
		return fmt.Errorf("%w %v", ErrUnknownOperation, cmd.Op)
	}

	for i, f := range group {
		f.Add(cmd.Delta[i])
	}
	return nil
}

// Stats returns the current message counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Applied:  c.applied.Load(),
		Rejected: c.rejected.Load(),
		Ignored:  c.ignored.Load(),
	}
}
