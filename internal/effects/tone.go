package effects

import (
	"math"
	"sync/atomic"
)

// Tone band indexes, voiced for an orchestral mix.
const (
	ToneRumble   = iota // below 80Hz: hall rumble, percussion weight
	ToneWarmth          // 80-500Hz: celli, basses, horn body
	ToneBody            // 500-2kHz: the ensemble core
	TonePresence        // 2-6kHz: bow noise, articulation
	ToneAir             // above 6kHz: sheen
	toneBands
)

// Tone is the master tone control: five bands split by cascaded one-pole
// crossovers. Gains are stored as float32 bit patterns so the UI thread can
// adjust them without taking the render lock.
type Tone struct {
	gains  [toneBands]atomic.Uint32
	alphas [toneBands - 1]float32
	lpL    [toneBands - 1]float32
	lpR    [toneBands - 1]float32
}

var toneCrossovers = [toneBands - 1]float64{80, 500, 2000, 6000}

// NewTone creates the tone stage with every band at unity.
func NewTone(sampleRate int) *Tone {
	t := &Tone{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range toneCrossovers {
		rc := 1.0 / (2.0 * math.Pi * freq)
		t.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range t.gains {
		t.gains[i].Store(math.Float32bits(1.0))
	}
	return t
}

// SetBand sets a band's gain. 1.0 = unity, 0 = silence, 2.0 = +6dB.
func (t *Tone) SetBand(band int, gain float32) {
	if band >= 0 && band < toneBands {
		t.gains[band].Store(math.Float32bits(clamp(gain, 0, 4)))
	}
}

func (t *Tone) Band(band int) float32 {
	if band >= 0 && band < toneBands {
		return math.Float32frombits(t.gains[band].Load())
	}
	return 1.0
}

func (t *Tone) Process(l, r float32) (float32, float32) {
	// peel bands off bottom-up; what remains after the last crossover is air
	var bandL, bandR [toneBands]float32
	remL, remR := l, r
	for i := 0; i < toneBands-1; i++ {
		t.lpL[i] += t.alphas[i] * (remL - t.lpL[i])
		t.lpR[i] += t.alphas[i] * (remR - t.lpR[i])
		bandL[i] = t.lpL[i]
		bandR[i] = t.lpR[i]
		remL -= bandL[i]
		remR -= bandR[i]
	}
	bandL[toneBands-1] = remL
	bandR[toneBands-1] = remR

	var outL, outR float32
	for i := 0; i < toneBands; i++ {
		g := math.Float32frombits(t.gains[i].Load())
		outL += bandL[i] * g
		outR += bandR[i] * g
	}
	return outL, outR
}

func (t *Tone) Reset() {
	for i := range t.lpL {
		t.lpL[i] = 0
		t.lpR[i] = 0
	}
}
