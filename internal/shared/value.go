// Package shared provides scalar boxes that can be read and written from the
// frame loop and from network callbacks at the same time.
package shared

import (
	"math"
	"sync/atomic"
)

// Float is the set of scalar types a Value can hold.
type Float interface {
	float32 | float64
}

// Value holds one scalar that is safe for concurrent access.
// The scalar is kept as its IEEE-754 bit pattern in a single atomic word,
// so a reader always observes a complete write, never a torn one.
// The zero Value holds +0.
type Value[T Float] struct {
	bits atomic.Uint64
}

// NewValue returns a Value initialised to v.
func NewValue[T Float](v T) *Value[T] {
	sv := &Value[T]{}
	sv.Set(v)
	return sv
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	return fromBits[T](v.bits.Load())
}

// Set replaces the current value. Concurrent writers are last-writer-wins.
func (v *Value[T]) Set(x T) {
	v.bits.Store(toBits(x))
}

// Add adds delta to the current value and returns the result.
// Unlike Get followed by Set, concurrent Adds never lose an update.
func (v *Value[T]) Add(delta T) T {
	for {
		old := v.bits.Load()
		next := fromBits[T](old) + delta
		if v.bits.CompareAndSwap(old, toBits(next)) {
			return next
		}
	}
}

// Bits returns the raw bit pattern of the current value. For float32 values
// only the low 32 bits are used.
func (v *Value[T]) Bits() uint64 {
	return v.bits.Load()
}

func toBits[T Float](x T) uint64 {
	if f, ok := any(x).(float32); ok {
		return uint64(math.Float32bits(f))
	}
	return math.Float64bits(any(x).(float64))
}

func fromBits[T Float](b uint64) T {
	var zero T
	if _, ok := any(zero).(float32); ok {
		return any(math.Float32frombits(uint32(b))).(T)
	}
	return any(math.Float64frombits(b)).(T)
}
