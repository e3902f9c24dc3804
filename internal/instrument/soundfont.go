package instrument

import (
	"fmt"
	"io"
	"strings"
	"time"

	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/khiraoka/podium-go/internal/song"
)

// SoundFont drives one meltysynth synthesizer set to a single program. The
// synthesizer renders in blocks; RenderFrame serves frames out of the last
// block and refills as needed.
type SoundFont struct {
	id       string
	synth    *meltysynth.Synthesizer
	pending  []sfNote // notes waiting for their scheduled release
	left     []float32
	right    []float32
	pos      int
	tailLeft int // frames of release tail after the last note-off
	rate     int
}

type sfNote struct {
	key       int32
	framesOff int
}

const sfBlock = 64

// midi channel 0 throughout; each track owns its own synthesizer
const sfChannel = 0

// ParseSoundFont reads an sf2 file into a form synthesizers can share; one
// parse serves any number of NewSoundFont instruments.
func ParseSoundFont(sf io.ReadSeeker) (*meltysynth.SoundFont, error) {
	sfnt, err := meltysynth.NewSoundFont(sf)
	if err != nil {
		return nil, fmt.Errorf("parsing soundfont: %w", err)
	}
	return sfnt, nil
}

// NewSoundFont prepares a synthesizer on the given program. bank 128 selects
// percussion kits per the General MIDI convention.
func NewSoundFont(id string, sfnt *meltysynth.SoundFont, sampleRate, bank, program int) (*SoundFont, error) {
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	synth, err := meltysynth.NewSynthesizer(sfnt, settings)
	if err != nil {
		return nil, fmt.Errorf("instrument %q: creating synthesizer: %w", id, err)
	}
	if bank > 0 {
		synth.ProcessMidiMessage(sfChannel, 0xB0, 0x00, int32(bank)) // bank select MSB
	}
	synth.ProcessMidiMessage(sfChannel, 0xC0, int32(program), 0)
	return &SoundFont{
		id:    id,
		synth: synth,
		left:  make([]float32, sfBlock),
		right: make([]float32, sfBlock),
		pos:   sfBlock,
		rate:  sampleRate,
	}, nil
}

func (s *SoundFont) ID() string { return s.id }

func (s *SoundFont) Kind() Kind { return KindSoundFont }

func (s *SoundFont) Trigger(pitch song.Pitch, duration, at time.Duration, velocity float64) error {
	vel := int32(clamp(velocity, 0, 1) * 127)
	if vel < 1 {
		vel = 1
	}
	frames := int(duration.Seconds() * float64(s.rate))
	if frames < 1 {
		frames = 1
	}
	s.synth.NoteOn(sfChannel, int32(pitch), vel)
	s.pending = append(s.pending, sfNote{key: int32(pitch), framesOff: frames})
	logger.Debug("soundfont trigger", "instrument", s.id, "pitch", pitch.String(), "at", at)
	return nil
}

func (s *SoundFont) RenderFrame() (float32, float32) {
	s.advanceNoteOffs()
	if s.pos >= sfBlock {
		s.synth.Render(s.left, s.right)
		s.pos = 0
	}
	l, r := s.left[s.pos], s.right[s.pos]
	s.pos++
	return l, r
}

// advanceNoteOffs counts each pending note down one frame and releases the
// ones that reach zero.
func (s *SoundFont) advanceNoteOffs() {
	if len(s.pending) == 0 {
		if s.tailLeft > 0 {
			s.tailLeft--
		}
		return
	}
	kept := s.pending[:0]
	for _, n := range s.pending {
		n.framesOff--
		if n.framesOff <= 0 {
			s.synth.NoteOff(sfChannel, n.key)
			continue
		}
		kept = append(kept, n)
	}
	s.pending = kept
	if len(s.pending) == 0 {
		s.tailLeft = s.rate // allow one second for the release to ring out
	}
}

func (s *SoundFont) ActiveVoices() int {
	n := len(s.pending)
	if s.tailLeft > 0 {
		n++
	}
	return n
}

// Silence releases everything we know is sounding and drops the tail.
func (s *SoundFont) Silence() {
	for _, n := range s.pending {
		s.synth.NoteOff(sfChannel, n.key)
	}
	s.pending = s.pending[:0]
	s.tailLeft = 0
}

// GMProgram picks a General MIDI program for an instrument identifier, used
// when a shared fallback SoundFont serves tracks the bank does not name.
// First match wins, so "bass clarinet" lands on clarinet, not contrabass.
// Unrecognized names get the string ensemble.
func GMProgram(id string) int {
	n := strings.ToLower(id)
	for _, m := range gmPrograms {
		if strings.Contains(n, m.fragment) {
			return m.program
		}
	}
	return 48 // string ensemble
}

var gmPrograms = []struct {
	fragment string
	program  int
}{
	{"piccolo", 72},
	{"flute", 73},
	{"oboe", 68},
	{"english horn", 69},
	{"clarinet", 71},
	{"bassoon", 70},
	{"sax", 65},
	{"french horn", 60},
	{"trumpet", 56},
	{"trombone", 57},
	{"tuba", 58},
	{"horn", 60},
	{"timpani", 47},
	{"glockenspiel", 9},
	{"xylophone", 13},
	{"marimba", 12},
	{"vibraphone", 11},
	{"celesta", 8},
	{"harpsichord", 6},
	{"organ", 19},
	{"piano", 0},
	{"harp", 46},
	{"guitar", 24},
	{"violin", 40},
	{"viola", 41},
	{"cello", 42},
	{"contrabass", 43},
	{"double bass", 43},
	{"bass", 43},
	{"choir", 52},
	{"voice", 53},
	{"string", 48},
}
