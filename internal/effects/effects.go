package effects

// Effector processes one stereo frame at a time.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(effects ...Effector) {
	c.effects = append(c.effects, effects...)
}

// Bus is the master chain every instrument renders through, bundled with
// the handles live control needs: the input gain for master volume and the
// tone stage for band adjustment.
type Bus struct {
	*Chain
	gain *Gain
	tone *Tone
}

// NewOrchestraBus builds the shared master bus: input gain, an optional
// ensemble widener, early reflections, hall reverb, the tone stage, and a
// limiter so a full tutti cannot clip the output.
func NewOrchestraBus(sampleRate int, ensemble bool) *Bus {
	g := NewGain(1.0)
	t := NewTone(sampleRate)
	chain := NewChain(g)
	if ensemble {
		chain.Add(NewEnsemble(sampleRate, 0.5))
	}
	chain.Add(
		NewReflections(sampleRate, 0.3),
		NewHallReverb(sampleRate, 0.6, 0.5, 0.4, 0.25),
		t,
		NewLimiter(sampleRate, 0.95),
	)
	return &Bus{Chain: chain, gain: g, tone: t}
}

// SetMasterGain scales everything entering the bus. 1.0 is unity.
func (b *Bus) SetMasterGain(v float64) { b.gain.SetGain(float32(v)) }

func (b *Bus) MasterGain() float64 { return float64(b.gain.Gain()) }

// SetToneBand adjusts one of the five tone bands; safe to call without the
// render lock.
func (b *Bus) SetToneBand(band int, gain float32) { b.tone.SetBand(band, gain) }

func (b *Bus) ToneBand(band int) float32 { return b.tone.Band(band) }

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
