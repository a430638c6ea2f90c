// Package codec converts a scene.State to and from the per-frame sync buffer.
//
// The buffer is a flat run of little-endian IEEE-754 float32 values. For each
// box, in state order, it carries posX, posY, posZ, rotAlpha, rotBeta and
// rotGamma. There are no tags or length prefixes: framing is positional, so
// Encode and Decode must walk the fields in exactly the same order.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dreamware/scenesync/internal/scene"
)

const (
	// ScalarsPerEntity is the number of scalars each box contributes.
	ScalarsPerEntity = 6
	// ScalarSize is the encoded width of one scalar in bytes.
	ScalarSize = 4
)

// ErrFraming is returned when a sync buffer does not have the size the local
// scene expects. The sending and receiving sides disagree on the protocol
// shape; the frame must not be applied.
var ErrFraming = errors.New("sync buffer framing mismatch")

// FramingError carries the sizes involved in a framing mismatch.
type FramingError struct {
	Got  int // bytes received
	Want int // bytes expected for the local scene
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("%v: got %d bytes (%.2f scalars), want %d bytes (%d scalars)",
		ErrFraming, e.Got, float64(e.Got)/ScalarSize, e.Want, e.Want/ScalarSize)
}

// Unwrap lets errors.Is match ErrFraming.
func (e *FramingError) Unwrap() error {
	return ErrFraming
}

// FrameSize returns the encoded size in bytes for a scene of n boxes.
func FrameSize(n int) int {
	return n * ScalarsPerEntity * ScalarSize
}

// Encode serializes every box of s. Only the master calls this.
func Encode(s *scene.State) []byte {
	return AppendEncode(make([]byte, 0, FrameSize(s.Len())), s)
}

// AppendEncode appends the encoded form of s to dst and returns the extended
// buffer, allowing the caller to reuse storage across frames.
func AppendEncode(dst []byte, s *scene.State) []byte {
	for _, b := range s.Boxes() {
		for _, f := range b.Fields() {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f.Get()))
		}
	}
	return dst
}

// Decode writes the scalars in buf into s, in the same order Encode reads
// them. The size is checked before any field is written, so a mismatched
// buffer leaves s untouched and returns a *FramingError.
func Decode(buf []byte, s *scene.State) error {
	if want := FrameSize(s.Len()); len(buf) != want {
		return &FramingError{Got: len(buf), Want: want}
	}
	off := 0
	for _, b := range s.Boxes() {
		for _, f := range b.Fields() {
			f.Set(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])))
			off += ScalarSize
		}
	}
	return nil
}
