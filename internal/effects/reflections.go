package effects

// Reflections models the first wavefronts bouncing off a hall's walls: a
// handful of discrete taps at uneven delays, decaying and alternating sides.
// Unlike a feedback delay there is no regeneration; the dense tail is the
// reverb's job.
type Reflections struct {
	bufL, bufR []float32
	pos        int
	taps       []tap
	wet        float32
}

type tap struct {
	offset int
	gainL  float32
	gainR  float32
}

// tap times in milliseconds, measured-hall flavored: uneven and unsynced
var tapPattern = []struct {
	ms   float64
	gain float32
	pan  float32 // -1 left .. 1 right
}{
	{17.9, 0.62, -0.4},
	{29.3, 0.48, 0.5},
	{41.1, 0.39, -0.2},
	{53.4, 0.30, 0.6},
	{67.2, 0.22, -0.6},
	{83.0, 0.16, 0.3},
}

// NewReflections builds the early-reflection stage. wet is the reflected
// level mixed against the dry signal.
func NewReflections(sampleRate int, wet float32) *Reflections {
	r := &Reflections{wet: clamp(wet, 0, 1)}
	longest := 1
	for _, t := range tapPattern {
		off := int(t.ms * float64(sampleRate) / 1000.0)
		if off < 1 {
			off = 1
		}
		if off > longest {
			longest = off
		}
		lg := t.gain * (1 - t.pan) * 0.5
		rg := t.gain * (1 + t.pan) * 0.5
		r.taps = append(r.taps, tap{offset: off, gainL: lg, gainR: rg})
	}
	r.bufL = make([]float32, longest+1)
	r.bufR = make([]float32, longest+1)
	return r
}

func (r *Reflections) Process(l, rr float32) (float32, float32) {
	r.bufL[r.pos] = l
	r.bufR[r.pos] = rr
	var wl, wr float32
	n := len(r.bufL)
	for _, t := range r.taps {
		i := r.pos - t.offset
		if i < 0 {
			i += n
		}
		wl += r.bufL[i] * t.gainL
		wr += r.bufR[i] * t.gainR
	}
	r.pos++
	if r.pos >= n {
		r.pos = 0
	}
	return l + wl*r.wet, rr + wr*r.wet
}

func (r *Reflections) Reset() {
	for i := range r.bufL {
		r.bufL[i] = 0
		r.bufR[i] = 0
	}
	r.pos = 0
}
