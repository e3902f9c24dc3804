package effects

import "math"

// Limiter keeps the mix under a fixed ceiling. Fast attack so a sudden
// tutti cannot spike through, slow release so sustained passages do not
// pump.
type Limiter struct {
	ceiling float32
	attack  float32 // coefficient
	release float32 // coefficient
	env     float32
}

// NewLimiter creates the output limiter. ceiling is linear (e.g. 0.95).
func NewLimiter(sampleRate int, ceiling float32) *Limiter {
	sr := float64(sampleRate)
	return &Limiter{
		ceiling: clamp(ceiling, 0.1, 1),
		attack:  float32(1.0 - math.Exp(-1.0/(0.002*sr))),
		release: float32(1.0 - math.Exp(-1.0/(0.200*sr))),
	}
}

func (c *Limiter) Process(l, r float32) (float32, float32) {
	peak := float32(math.Abs(float64(l)))
	if ar := float32(math.Abs(float64(r))); ar > peak {
		peak = ar
	}
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	gain := float32(1.0)
	if c.env > c.ceiling {
		gain = c.ceiling / c.env
	}
	return l * gain, r * gain
}

func (c *Limiter) Reset() {
	c.env = 0
}
