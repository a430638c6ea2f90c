// Package scene holds the authoritative set of boxes whose pose is shared
// across the cluster.
//
// A State is built once before the first frame and never grows or shrinks.
// The order of its boxes is the order they travel on the wire, so every node
// must build its State from the same configuration.
package scene

import (
	"github.com/dreamware/scenesync/internal/shared"
)

// Box is one entity of the scene. All six pose fields are shared values and
// may be touched concurrently by the control path and the frame loop.
type Box struct {
	Name string
	ID   int

	PosX shared.Value[float32]
	PosY shared.Value[float32]
	PosZ shared.Value[float32]

	RotAlpha shared.Value[float32]
	RotBeta  shared.Value[float32]
	RotGamma shared.Value[float32]
}

// Fields returns the six pose fields in wire order:
// posX, posY, posZ, rotAlpha, rotBeta, rotGamma.
func (b *Box) Fields() [6]*shared.Value[float32] {
	return [6]*shared.Value[float32]{
		&b.PosX, &b.PosY, &b.PosZ,
		&b.RotAlpha, &b.RotBeta, &b.RotGamma,
	}
}

// Position returns the current position.
func (b *Box) Position() Vec3 {
	return Vec3{b.PosX.Get(), b.PosY.Get(), b.PosZ.Get()}
}

// Rotation returns the current yaw/pitch/roll angles.
func (b *Box) Rotation() Vec3 {
	return Vec3{b.RotAlpha.Get(), b.RotBeta.Get(), b.RotGamma.Get()}
}

// Vec3 is a plain triple used for snapshots and configuration.
type Vec3 [3]float32

// Pose is a point-in-time copy of one box, used for JSON output.
type Pose struct {
	Name     string `json:"name,omitempty"`
	ID       int    `json:"id"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
}

// State is an ordered, fixed-size collection of boxes.
type State struct {
	boxes []Box
}

// New creates a state with n zeroed boxes numbered 0..n-1.
func New(n int) *State {
	if n < 0 {
		n = 0
	}
	s := &State{boxes: make([]Box, n)}
	for i := range s.boxes {
		s.boxes[i].ID = i
	}
	return s
}

// Len returns the number of boxes.
func (s *State) Len() int {
	return len(s.boxes)
}

// Box returns the box at index i, or false when i is out of range.
func (s *State) Box(i int) (*Box, bool) {
	if i < 0 || i >= len(s.boxes) {
		return nil, false
	}
	return &s.boxes[i], true
}

// Boxes returns pointers to every box in wire order.
func (s *State) Boxes() []*Box {
	out := make([]*Box, len(s.boxes))
	for i := range s.boxes {
		out[i] = &s.boxes[i]
	}
	return out
}

// Snapshot copies the current pose of every box.
// Each field is read atomically; the snapshot as a whole is not.
func (s *State) Snapshot() []Pose {
	out := make([]Pose, len(s.boxes))
	for i := range s.boxes {
		b := &s.boxes[i]
		out[i] = Pose{
			Name:     b.Name,
			ID:       b.ID,
			Position: b.Position(),
			Rotation: b.Rotation(),
		}
	}
	return out
}

// Reset zeroes the position and rotation of every box.
func (s *State) Reset() {
	for i := range s.boxes {
		for _, f := range s.boxes[i].Fields() {
			f.Set(0)
		}
	}
}
