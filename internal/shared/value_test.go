package shared

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValueZero verifies the zero Value reads as +0 for both widths
func TestValueZero(t *testing.T) {
	var f32 Value[float32]
	var f64 Value[float64]

	assert.Equal(t, float32(0), f32.Get())
	assert.Equal(t, float64(0), f64.Get())
	assert.False(t, math.Signbit(float64(f32.Get())))
}

// TestValueSetGet covers plain set/get including special floats
func TestValueSetGet(t *testing.T) {
	tests := []struct {
		name string
		in   float32
	}{
		{name: "positive", in: 1.5},
		{name: "negative", in: -2.25},
		{name: "negative zero", in: float32(math.Copysign(0, -1))},
		{name: "max", in: math.MaxFloat32},
		{name: "smallest subnormal", in: math.SmallestNonzeroFloat32},
		{name: "infinity", in: float32(math.Inf(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValue(tt.in)
			assert.Equal(t, math.Float32bits(tt.in), uint32(v.Bits()))
			assert.Equal(t, math.Float32bits(tt.in), math.Float32bits(v.Get()))
		})
	}

	t.Run("float64 keeps full precision", func(t *testing.T) {
		v := NewValue(math.Pi)
		assert.Equal(t, math.Pi, v.Get())
		assert.Equal(t, math.Float64bits(math.Pi), v.Bits())
	})

	t.Run("NaN survives bitwise", func(t *testing.T) {
		nan := math.Float32frombits(0x7fc00001)
		v := NewValue(nan)
		assert.Equal(t, uint32(0x7fc00001), math.Float32bits(v.Get()))
	})
}

// TestValueAdd verifies Add accumulates and returns the new value
func TestValueAdd(t *testing.T) {
	v := NewValue[float32](1)

	assert.Equal(t, float32(3), v.Add(2))
	assert.Equal(t, float32(2.5), v.Add(-0.5))
	assert.Equal(t, float32(2.5), v.Get())
}

// TestValueConcurrentSet checks that racing writers leave one of the
// written values behind, never a mix of two of them.
func TestValueConcurrentSet(t *testing.T) {
	const writers = 64

	for round := 0; round < 20; round++ {
		var v Value[float64]
		written := make(map[uint64]bool, writers)

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			// Values with distinct high and low halves make a torn
			// write show up as a bit pattern nobody wrote.
			x := math.Float64frombits(uint64(i+1)<<32 | uint64(writers-i))
			written[math.Float64bits(x)] = true

			wg.Add(1)
			go func(x float64) {
				defer wg.Done()
				v.Set(x)
			}(x)
		}
		wg.Wait()

		require.True(t, written[v.Bits()], "final bits %x were never written", v.Bits())
	}
}

// TestValueConcurrentAdd checks that no delta is lost under contention
func TestValueConcurrentAdd(t *testing.T) {
	const (
		workers = 16
		perWork = 500
	)

	var v Value[float32]
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWork; j++ {
				v.Add(1)
			}
		}()
	}

	// Readers run alongside the writers; every observed value must be
	// a whole number because each Add contributes exactly 1.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			got := v.Get()
			if got != float32(math.Trunc(float64(got))) {
				t.Errorf("observed non-integral value %v", got)
				return
			}
		}
	}()

	wg.Wait()
	<-done

	assert.Equal(t, float32(workers*perWork), v.Get())
}
