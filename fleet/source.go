package fleet

import (
	"math/rand"
	"sync"
)

// DefaultJitter is the largest per-axis displacement, in degrees, applied to
// an active vehicle on a simulated tick.
const DefaultJitter = 0.0005

// PositionSource supplies the displacement for one active vehicle on one
// tick. Implementations must keep each offset within ±DefaultJitter (or
// whatever bound they document).
type PositionSource interface {
	Offset() (dLat, dLon float64)
}

// JitterSource draws offsets uniformly from [-Max, +Max) on each axis.
type JitterSource struct {
	Max float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewJitterSource(max float64, seed int64) *JitterSource {
	if max <= 0 {
		max = DefaultJitter
	}
	return &JitterSource{Max: max, rng: rand.New(rand.NewSource(seed))}
}

func (j *JitterSource) Offset() (float64, float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return (j.rng.Float64() - 0.5) * 2 * j.Max, (j.rng.Float64() - 0.5) * 2 * j.Max
}

// FixedSource returns the same offset every time.
type FixedSource struct {
	DLat, DLon float64
}

func (f FixedSource) Offset() (float64, float64) { return f.DLat, f.DLon }
