package song

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Position is a musical location: zero-based measure, beat within the
// measure, and sixteenth within the beat, the "m:b:s" convention of the
// song documents.
type Position struct {
	Measure   int
	Beat      int
	Sixteenth float64
}

// ParsePosition parses "measure:beat:sixteenth". Beat and sixteenth may be
// omitted ("4", "4:2"); the sixteenth field accepts fractions ("0:1:2.5").
func ParsePosition(s string) (Position, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return Position{}, fmt.Errorf("position %q: want measure:beat:sixteenth", s)
	}
	var p Position
	m, err := strconv.Atoi(parts[0])
	if err != nil || m < 0 {
		return Position{}, fmt.Errorf("position %q: bad measure", s)
	}
	p.Measure = m
	if len(parts) > 1 {
		b, err := strconv.Atoi(parts[1])
		if err != nil || b < 0 {
			return Position{}, fmt.Errorf("position %q: bad beat", s)
		}
		p.Beat = b
	}
	if len(parts) > 2 {
		x, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || x < 0 {
			return Position{}, fmt.Errorf("position %q: bad sixteenth", s)
		}
		p.Sixteenth = x
	}
	return p, nil
}

func (p Position) String() string {
	if p.Sixteenth == float64(int(p.Sixteenth)) {
		return fmt.Sprintf("%d:%d:%d", p.Measure, p.Beat, int(p.Sixteenth))
	}
	return fmt.Sprintf("%d:%d:%g", p.Measure, p.Beat, p.Sixteenth)
}

// Beats converts the position to absolute quarter-note beats from the song
// start. The beat field counts the signature's own beat unit; sixteenths are
// always sixteenth notes.
func (p Position) Beats(ts TimeSignature) float64 {
	beatLen := 4.0 / float64(ts.Unit)
	return float64(p.Measure)*ts.BeatsPerMeasure() + float64(p.Beat)*beatLen + p.Sixteenth*0.25
}

func (p *Position) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParsePosition(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Position) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("position: want \"m:b:s\" string, got %s", data)
	}
	parsed, err := ParsePosition(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// PositionAtBeat is the inverse of Beats, used for progress display.
func PositionAtBeat(beats float64, ts TimeSignature) Position {
	perMeasure := ts.BeatsPerMeasure()
	if perMeasure <= 0 {
		return Position{}
	}
	measure := int(beats / perMeasure)
	rem := beats - float64(measure)*perMeasure
	beatLen := 4.0 / float64(ts.Unit)
	beat := int(rem / beatLen)
	rem -= float64(beat) * beatLen
	return Position{Measure: measure, Beat: beat, Sixteenth: rem / 0.25}
}
