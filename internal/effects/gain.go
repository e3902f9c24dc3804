package effects

// Gain scales the signal. It sits at the head of the master bus so the whole
// mix, including the reverb send, follows the volume control.
type Gain struct {
	gain float32
}

func NewGain(g float32) *Gain {
	return &Gain{gain: clamp(g, 0, 4)}
}

func (g *Gain) SetGain(v float32) {
	g.gain = clamp(v, 0, 4)
}

func (g *Gain) Gain() float32 {
	return g.gain
}

func (g *Gain) Process(l, r float32) (float32, float32) {
	return l * g.gain, r * g.gain
}

func (g *Gain) Reset() {}
