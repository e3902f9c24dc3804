package instrument

import (
	"math"
	"strings"
	"time"

	"github.com/khiraoka/podium-go/internal/song"
)

const twoPi = math.Pi * 2

// Synth is the fallback voice: one fixed waveform per instrument family and
// one fixed envelope. It exists so a track whose samples never arrive still
// plays something.
type Synth struct {
	id         string
	sampleRate float64
	wave       synthWave
	voices     []synthVoice
	pan        float64
	gain       float64
	dcPrevIn   float64
	dcPrevOut  float64
}

type synthWave int

const (
	waveSaw synthWave = iota
	wavePulse
	waveTriangle
	waveNoise
)

// fixed envelope, all families
const (
	attackSec  = 0.012
	decaySec   = 0.08
	sustainLvl = 0.7
	releaseSec = 0.15
)

type synthEnvState int

const (
	envAttack synthEnvState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type synthVoice struct {
	active    bool
	age       int
	freq      float64
	phase     float64
	velocity  float64
	env       float64
	envState  synthEnvState
	gateLeft  int // frames until release begins
	noiseLFSR uint16
}

const synthVoiceCount = 8

// NewSynth builds the fallback for one instrument. pan is -1 (left) to 1
// (right), the track's seat on the stage.
func NewSynth(id string, sampleRate int, pan float64) *Synth {
	s := &Synth{
		id:         id,
		sampleRate: float64(sampleRate),
		wave:       waveForFamily(id),
		voices:     make([]synthVoice, synthVoiceCount),
		pan:        clamp(pan, -1, 1),
		gain:       0.22,
	}
	for i := range s.voices {
		s.voices[i].noiseLFSR = uint16(0xACE1 + i*97)
	}
	return s
}

// waveForFamily picks the oscillator by instrument name: winds a triangle,
// bowed strings a saw, brass a pulse, percussion noise. Winds go first so
// "bassoon" and "bass clarinet" do not match the string family's "bass".
func waveForFamily(id string) synthWave {
	n := strings.ToLower(id)
	switch {
	case containsAny(n, "flute", "piccolo", "clarinet", "oboe", "bassoon", "recorder", "sax", "whistle"):
		return waveTriangle
	case containsAny(n, "violin", "viola", "cello", "contrabass", "bass", "string", "harp"):
		return waveSaw
	case containsAny(n, "trumpet", "horn", "trombone", "tuba", "brass"):
		return wavePulse
	case containsAny(n, "timpani", "drum", "snare", "cymbal", "percussion", "tambourine"):
		return waveNoise
	default:
		return waveTriangle
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (s *Synth) ID() string { return s.id }

func (s *Synth) Kind() Kind { return KindSynth }

// Trigger never rejects a note; that is the point of the fallback.
func (s *Synth) Trigger(pitch song.Pitch, duration, at time.Duration, velocity float64) error {
	v := &s.voices[s.stealVoice()]
	v.active = true
	v.age = 0
	v.freq = pitch.Frequency()
	v.phase = 0
	v.velocity = clamp(velocity, 0, 1)
	v.env = 0
	v.envState = envAttack
	v.gateLeft = int(duration.Seconds() * s.sampleRate)
	if v.gateLeft < 1 {
		v.gateLeft = 1
	}
	if v.noiseLFSR == 0 {
		v.noiseLFSR = 0xACE1
	}
	logger.Debug("synth trigger", "instrument", s.id, "pitch", pitch.String(), "at", at, "duration", duration)
	return nil
}

func (s *Synth) stealVoice() int {
	for i := range s.voices {
		if !s.voices[i].active {
			return i
		}
	}
	// steal the oldest releasing voice, else the oldest outright
	oldestRelease, oldestReleaseAge := -1, -1
	oldest, oldestAge := 0, -1
	for i := range s.voices {
		v := &s.voices[i]
		if v.envState == envRelease && v.age > oldestReleaseAge {
			oldestRelease, oldestReleaseAge = i, v.age
		}
		if v.age > oldestAge {
			oldest, oldestAge = i, v.age
		}
	}
	if oldestRelease >= 0 {
		return oldestRelease
	}
	return oldest
}

func (s *Synth) RenderFrame() (float32, float32) {
	var out float64
	for i := range s.voices {
		v := &s.voices[i]
		if !v.active {
			continue
		}
		v.age++
		if v.gateLeft > 0 {
			v.gateLeft--
			if v.gateLeft == 0 && v.envState != envRelease {
				v.envState = envRelease
			}
		}
		env := s.advanceEnv(v)
		if !v.active {
			continue
		}
		out += s.renderWave(v) * env * (0.2 + 0.8*v.velocity)
	}
	out = s.dcBlock(out) * s.gain
	angle := (s.pan + 1) / 2 * (math.Pi / 2)
	l := out * math.Cos(angle)
	r := out * math.Sin(angle)
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

func (s *Synth) advanceEnv(v *synthVoice) float64 {
	switch v.envState {
	case envAttack:
		v.env += 1.0 / (attackSec * s.sampleRate)
		if v.env >= 1 {
			v.env = 1
			v.envState = envDecay
		}
	case envDecay:
		v.env -= (1 - sustainLvl) / (decaySec * s.sampleRate)
		if v.env <= sustainLvl {
			v.env = sustainLvl
			v.envState = envSustain
		}
	case envSustain:
	case envRelease:
		v.env -= sustainLvl / (releaseSec * s.sampleRate)
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

// polyBLEP reduces aliasing at waveform discontinuities. t is the phase in
// [0,1), dt the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

const pulseDuty = 0.30

func (s *Synth) renderWave(v *synthVoice) float64 {
	dt := v.freq / s.sampleRate
	v.phase += dt
	if v.phase >= 1 {
		v.phase -= 1
	}
	switch s.wave {
	case waveSaw:
		return 2*v.phase - 1 - polyBLEP(v.phase, dt)
	case wavePulse:
		out := -1.0
		if v.phase < pulseDuty {
			out = 1
		}
		out += polyBLEP(v.phase, dt)
		out -= polyBLEP(math.Mod(v.phase-pulseDuty+1, 1), dt)
		return out
	case waveTriangle:
		return 2*math.Abs(2*v.phase-1) - 1
	case waveNoise:
		if v.phase < dt {
			bit := (v.noiseLFSR ^ (v.noiseLFSR >> 1)) & 1
			v.noiseLFSR = (v.noiseLFSR >> 1) | (bit << 15)
		}
		if v.noiseLFSR&1 == 1 {
			return 1
		}
		return -1
	default:
		return 0
	}
}

func (s *Synth) dcBlock(x float64) float64 {
	const r = 0.995
	y := x - s.dcPrevIn + r*s.dcPrevOut
	s.dcPrevIn = x
	s.dcPrevOut = y
	return y
}

func (s *Synth) ActiveVoices() int {
	n := 0
	for i := range s.voices {
		if s.voices[i].active {
			n++
		}
	}
	return n
}

func (s *Synth) Silence() {
	for i := range s.voices {
		s.voices[i].active = false
		s.voices[i].env = 0
		s.voices[i].envState = envOff
	}
}
