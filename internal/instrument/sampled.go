package instrument

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/khiraoka/podium-go/internal/song"
)

// Sampled plays recorded notes from PCM buffers. A note with no exact sample
// borrows the nearest one, rate-shifted, up to maxSampleShift semitones away;
// beyond that the trigger is rejected.
type Sampled struct {
	id         string
	sampleRate float64
	notes      []sampleBuf // sorted by pitch
	voices     []sampleVoice
	pan        float64
	gain       float64
}

type sampleBuf struct {
	pitch song.Pitch
	data  []float32 // interleaved stereo at the engine rate
}

type sampleVoice struct {
	active   bool
	age      int
	buf      int // index into notes
	head     float64
	step     float64
	velocity float64
	gateLeft int
	fade     float64
	fading   bool
}

const (
	maxSampleShift   = 7
	sampledVoices    = 12
	sampleReleaseSec = 0.06
)

// NewSampled builds a sampled instrument from decoded note buffers. Buffers
// must be interleaved stereo at the engine sample rate.
func NewSampled(id string, sampleRate int, notes map[song.Pitch][]float32, pan float64) (*Sampled, error) {
	if len(notes) == 0 {
		return nil, fmt.Errorf("instrument %q: no decoded samples", id)
	}
	s := &Sampled{
		id:         id,
		sampleRate: float64(sampleRate),
		voices:     make([]sampleVoice, sampledVoices),
		pan:        clamp(pan, -1, 1),
		gain:       0.8,
	}
	for p, data := range notes {
		if len(data) < 2 {
			return nil, fmt.Errorf("instrument %q: empty sample for %s", id, p)
		}
		s.notes = append(s.notes, sampleBuf{pitch: p, data: data})
	}
	sort.Slice(s.notes, func(i, j int) bool { return s.notes[i].pitch < s.notes[j].pitch })
	return s, nil
}

func (s *Sampled) ID() string { return s.id }

func (s *Sampled) Kind() Kind { return KindSampled }

// nearest returns the sample index closest to pitch and the semitone
// distance from the sample to the requested note.
func (s *Sampled) nearest(pitch song.Pitch) (int, int) {
	i := sort.Search(len(s.notes), func(i int) bool { return s.notes[i].pitch >= pitch })
	best, bestDist := -1, 1<<30
	for _, cand := range []int{i - 1, i} {
		if cand < 0 || cand >= len(s.notes) {
			continue
		}
		d := int(pitch) - int(s.notes[cand].pitch)
		if abs(d) < abs(bestDist) {
			best, bestDist = cand, d
		}
	}
	return best, bestDist
}

func (s *Sampled) Trigger(pitch song.Pitch, duration, at time.Duration, velocity float64) error {
	buf, semis := s.nearest(pitch)
	if buf < 0 || abs(semis) > maxSampleShift {
		return fmt.Errorf("instrument %q: no sample within %d semitones of %s", s.id, maxSampleShift, pitch)
	}
	v := &s.voices[s.stealVoice()]
	v.active = true
	v.age = 0
	v.buf = buf
	v.head = 0
	v.step = math.Pow(2, float64(semis)/12.0)
	v.velocity = clamp(velocity, 0, 1)
	v.gateLeft = int(duration.Seconds() * s.sampleRate)
	if v.gateLeft < 1 {
		v.gateLeft = 1
	}
	v.fade = 1
	v.fading = false
	logger.Debug("sample trigger", "instrument", s.id, "pitch", pitch.String(), "shift", semis, "at", at)
	return nil
}

func (s *Sampled) stealVoice() int {
	for i := range s.voices {
		if !s.voices[i].active {
			return i
		}
	}
	oldestFading, oldestFadingAge := -1, -1
	oldest, oldestAge := 0, -1
	for i := range s.voices {
		v := &s.voices[i]
		if v.fading && v.age > oldestFadingAge {
			oldestFading, oldestFadingAge = i, v.age
		}
		if v.age > oldestAge {
			oldest, oldestAge = i, v.age
		}
	}
	if oldestFading >= 0 {
		return oldestFading
	}
	return oldest
}

func (s *Sampled) RenderFrame() (float32, float32) {
	var l, r float64
	fadeStep := 1.0 / (sampleReleaseSec * s.sampleRate)
	for i := range s.voices {
		v := &s.voices[i]
		if !v.active {
			continue
		}
		v.age++
		data := s.notes[v.buf].data
		frames := len(data) / 2
		i0 := int(v.head)
		if i0 >= frames-1 {
			v.active = false
			continue
		}
		frac := float32(v.head - float64(i0))
		sl := data[2*i0]*(1-frac) + data[2*i0+2]*frac
		sr := data[2*i0+1]*(1-frac) + data[2*i0+3]*frac
		if v.gateLeft > 0 {
			v.gateLeft--
			if v.gateLeft == 0 {
				v.fading = true
			}
		}
		if v.fading {
			v.fade -= fadeStep
			if v.fade <= 0 {
				v.active = false
				continue
			}
		}
		g := v.velocity * v.fade * s.gain
		l += float64(sl) * g
		r += float64(sr) * g
		v.head += v.step
	}
	// balance toward the track's seat
	angle := (s.pan + 1) / 2 * (math.Pi / 2)
	l *= math.Cos(angle) * math.Sqrt2
	r *= math.Sin(angle) * math.Sqrt2
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

func (s *Sampled) ActiveVoices() int {
	n := 0
	for i := range s.voices {
		if s.voices[i].active {
			n++
		}
	}
	return n
}

func (s *Sampled) Silence() {
	for i := range s.voices {
		s.voices[i].active = false
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
