package song

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pitch is a MIDI note number. It is the canonical pitch representation:
// spelled names are normalized to sharps at parse time and never re-guessed
// downstream.
type Pitch int

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// semitone offset of each natural letter from C
var letterSemis = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// ParsePitch normalizes a spelled note name ("C4", "db3", "F#2") into a
// canonical Pitch. Flats and lowercase are accepted on the way in; the stored
// value always renders back as an uppercase sharps-only name.
func ParsePitch(s string) (Pitch, error) {
	orig := s
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("note name %q too short", orig)
	}
	letter := s[0]
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	semi, ok := letterSemis[letter]
	if !ok {
		return 0, fmt.Errorf("note name %q: unknown letter %q", orig, string(s[0]))
	}
	rest := s[1:]
	i := 0
	for i < len(rest) {
		c := rest[i]
		if c == '#' || c == 's' || c == 'S' {
			semi++
		} else if c == 'b' {
			semi--
		} else {
			break
		}
		i++
	}
	oct, err := strconv.Atoi(rest[i:])
	if err != nil {
		return 0, fmt.Errorf("note name %q: bad octave %q", orig, rest[i:])
	}
	n := (oct+1)*12 + semi
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("note name %q: out of MIDI range", orig)
	}
	return Pitch(n), nil
}

// MustPitch is for tests and literals known to be valid.
func MustPitch(s string) Pitch {
	p, err := ParsePitch(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pitch) String() string {
	if p < 0 || p > 127 {
		return fmt.Sprintf("Pitch(%d)", int(p))
	}
	return fmt.Sprintf("%s%d", noteNames[p%12], int(p)/12-1)
}

// Frequency returns the equal-tempered frequency in Hz, A4 = 440.
func (p Pitch) Frequency() float64 {
	return 440.0 * math.Pow(2, (float64(p)-69.0)/12.0)
}

// Transpose shifts by semitones, clamped to the MIDI range.
func (p Pitch) Transpose(semis int) Pitch {
	n := int(p) + semis
	if n < 0 {
		n = 0
	}
	if n > 127 {
		n = 127
	}
	return Pitch(n)
}

// UnmarshalYAML accepts either a spelled name or a raw MIDI number.
func (p *Pitch) UnmarshalYAML(value *yaml.Node) error {
	if n, err := strconv.Atoi(value.Value); err == nil {
		if n < 0 || n > 127 {
			return fmt.Errorf("pitch %d out of MIDI range", n)
		}
		*p = Pitch(n)
		return nil
	}
	parsed, err := ParsePitch(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Pitch) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *Pitch) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParsePitch(s)
		if perr != nil {
			return perr
		}
		*p = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("pitch: want name or MIDI number, got %s", data)
	}
	if n < 0 || n > 127 {
		return fmt.Errorf("pitch %d out of MIDI range", n)
	}
	*p = Pitch(n)
	return nil
}

func (p Pitch) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}
