package effects

import "math"

// Ensemble thickens the mix the way a section of players thickens a single
// line: two short modulated delay taps, one per channel, drifting in
// opposite phase so the sides decorrelate. No feedback; sections do not
// flange.
type Ensemble struct {
	bufL, bufR []float32
	pos        int
	size       int
	base       float32 // center delay in samples
	depth      float32 // drift depth in samples
	rate       float64 // drift in radians per sample
	phase      float64
	width      float32 // wet mix 0..1
}

const (
	ensembleDelayMs = 18.0
	ensembleDepthMs = 7.0
	ensembleRateHz  = 0.8
)

// NewEnsemble creates the widener. width 0 is bypass, 1 is full section.
func NewEnsemble(sampleRate int, width float64) *Ensemble {
	base := ensembleDelayMs * float64(sampleRate) / 1000.0
	depth := ensembleDepthMs * float64(sampleRate) / 1000.0
	size := int(base+depth) + 2
	return &Ensemble{
		bufL:  make([]float32, size),
		bufR:  make([]float32, size),
		size:  size,
		base:  float32(base),
		depth: float32(depth),
		rate:  2.0 * math.Pi * ensembleRateHz / float64(sampleRate),
		width: clamp(float32(width), 0, 1),
	}
}

func (e *Ensemble) SetWidth(width float64) {
	e.width = clamp(float32(width), 0, 1)
}

func (e *Ensemble) Width() float64 { return float64(e.width) }

func (e *Ensemble) Process(l, r float32) (float32, float32) {
	drift := float32(math.Sin(e.phase)) * e.depth
	e.phase += e.rate
	if e.phase > 2*math.Pi {
		e.phase -= 2 * math.Pi
	}
	e.bufL[e.pos] = l
	e.bufR[e.pos] = r

	// left tap drifts one way, right tap the other
	wetL := e.tap(e.bufL, e.base+drift)
	wetR := e.tap(e.bufR, e.base-drift)

	e.pos++
	if e.pos >= e.size {
		e.pos = 0
	}
	w := e.width * 0.5
	return l*(1-w) + wetL*w, r*(1-w) + wetR*w
}

// tap reads the buffer delay samples behind the write head with linear
// interpolation.
func (e *Ensemble) tap(buf []float32, delay float32) float32 {
	readPos := float32(e.pos) - delay
	for readPos < 0 {
		readPos += float32(e.size)
	}
	idx := int(readPos)
	frac := readPos - float32(idx)
	idx2 := idx + 1
	if idx2 >= e.size {
		idx2 = 0
	}
	return buf[idx]*(1-frac) + buf[idx2]*frac
}

func (e *Ensemble) Reset() {
	for i := range e.bufL {
		e.bufL[i] = 0
		e.bufR[i] = 0
	}
	e.pos = 0
	e.phase = 0
}
