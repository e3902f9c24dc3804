package effects

// HallReverb is a Schroeder-style reverb tuned for a concert hall: six
// damped comb filters per channel (right bank offset for stereo width) into
// two allpass diffusers per channel.
type HallReverb struct {
	combsL   [6]combFilter
	combsR   [6]combFilter
	allpassL [2]allpassFilter
	allpassR [2]allpassFilter
	wet      float32
}

// combFilter recirculates with a one-pole lowpass in the feedback path, so
// high frequencies die faster than lows the way air absorption works.
type combFilter struct {
	buf   []float32
	pos   int
	fb    float32
	damp  float32
	store float32
}

type allpassFilter struct {
	buf []float32
	pos int
	fb  float32
}

// comb delay lengths at 44100Hz, prime-ish to avoid stacked resonances;
// scaled by size and sample rate at construction
var combTuning = [6]int{1557, 1617, 1491, 1422, 1277, 1356}
var allpassTuning = [2]int{556, 441}

const stereoSpread = 23

// NewHallReverb creates the hall stage.
// size: 0..1 scales the delay network
// decay: 0..1 controls tail length
// damping: 0..1 high-frequency absorption
// wet: wet/dry mix 0..1
func NewHallReverb(sampleRate int, size, decay, damping, wet float32) *HallReverb {
	scale := float64(sampleRate) / 44100.0 * float64(0.5+clamp(size, 0, 1))
	fb := 0.7 + clamp(decay, 0, 1)*0.28
	damp := clamp(damping, 0, 1) * 0.8
	r := &HallReverb{wet: clamp(wet, 0, 1)}
	for i := range r.combsL {
		n := int(float64(combTuning[i]) * scale)
		if n < 16 {
			n = 16
		}
		r.combsL[i] = combFilter{buf: make([]float32, n), fb: fb, damp: damp}
		r.combsR[i] = combFilter{buf: make([]float32, n+stereoSpread), fb: fb, damp: damp}
	}
	for i := range r.allpassL {
		n := int(float64(allpassTuning[i]) * scale)
		if n < 8 {
			n = 8
		}
		r.allpassL[i] = allpassFilter{buf: make([]float32, n), fb: 0.5}
		r.allpassR[i] = allpassFilter{buf: make([]float32, n+stereoSpread), fb: 0.5}
	}
	return r
}

func (r *HallReverb) Process(l, r2 float32) (float32, float32) {
	mono := (l + r2) * 0.5
	var outL, outR float32
	for i := range r.combsL {
		outL += r.combsL[i].process(mono)
		outR += r.combsR[i].process(mono)
	}
	outL /= float32(len(r.combsL))
	outR /= float32(len(r.combsR))
	for i := range r.allpassL {
		outL = r.allpassL[i].process(outL)
		outR = r.allpassR[i].process(outR)
	}
	return l*(1-r.wet) + outL*r.wet, r2*(1-r.wet) + outR*r.wet
}

func (r *HallReverb) Reset() {
	for i := range r.combsL {
		r.combsL[i].reset()
		r.combsR[i].reset()
	}
	for i := range r.allpassL {
		r.allpassL[i].reset()
		r.allpassR[i].reset()
	}
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = in + c.store*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (c *combFilter) reset() {
	for i := range c.buf {
		c.buf[i] = 0
	}
	c.pos = 0
	c.store = 0
}

func (a *allpassFilter) process(in float32) float32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

func (a *allpassFilter) reset() {
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.pos = 0
}
