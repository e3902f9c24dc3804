package song

import (
	"fmt"
	"sort"
)

// Header carries the score-wide settings a transport needs before scheduling.
type Header struct {
	Title         string        `yaml:"title" json:"title"`
	BPM           float64       `yaml:"bpm" json:"bpm"`
	TimeSignature TimeSignature `yaml:"timeSignature" json:"timeSignature"`
}

type TimeSignature struct {
	Beats int `yaml:"beats" json:"beats"`
	Unit  int `yaml:"unit" json:"unit"`
}

// BeatsPerMeasure is expressed in quarter-note beats, the unit the clock
// advances in. 6/8 yields 3.0, 4/4 yields 4.0.
func (ts TimeSignature) BeatsPerMeasure() float64 {
	return float64(ts.Beats) * 4.0 / float64(ts.Unit)
}

type Note struct {
	Pitch    Pitch    `yaml:"pitch" json:"pitch"`                           // canonical, sharps-only
	Duration float64  `yaml:"duration" json:"duration"`                     // seconds, as authored at the header tempo
	Velocity float64  `yaml:"velocity,omitempty" json:"velocity,omitempty"` // 0..1, scales the live velocity
	Position Position `yaml:"at" json:"at"`
}

type Track struct {
	Instrument string `yaml:"instrument" json:"instrument"`
	Notes      []Note `yaml:"notes" json:"notes"`
}

// Zone names a subset of the song's instruments that sound together.
type Zone struct {
	Name        string   `yaml:"name" json:"name"`
	Instruments []string `yaml:"instruments" json:"instruments"`
}

// Song is immutable once loaded; the transport and loader only read it.
type Song struct {
	Header      Header  `yaml:"header" json:"header"`
	StartOffset float64 `yaml:"startOffset,omitempty" json:"startOffset,omitempty"` // beats
	Tracks      []Track `yaml:"tracks" json:"tracks"`
	Zones       []Zone  `yaml:"zones,omitempty" json:"zones,omitempty"`
}

// Instruments returns the distinct instrument identifiers in track order.
func (s *Song) Instruments() []string {
	seen := make(map[string]bool, len(s.Tracks))
	out := make([]string, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		if !seen[t.Instrument] {
			seen[t.Instrument] = true
			out = append(out, t.Instrument)
		}
	}
	return out
}

// TotalBeats returns the musical length of the song in quarter-note beats,
// rounded up to a whole measure.
func (s *Song) TotalBeats() float64 {
	bpm := s.Header.TimeSignature.BeatsPerMeasure()
	if bpm <= 0 {
		return 0
	}
	last := 0.0
	for _, t := range s.Tracks {
		for _, n := range t.Notes {
			end := n.Position.Beats(s.Header.TimeSignature)
			if end > last {
				last = end
			}
		}
	}
	measures := int(last/bpm) + 1
	return float64(measures) * bpm
}

// TotalMeasures returns the measure count used for progress reporting.
func (s *Song) TotalMeasures() int {
	bpm := s.Header.TimeSignature.BeatsPerMeasure()
	if bpm <= 0 {
		return 0
	}
	return int(s.TotalBeats()/bpm + 0.5)
}

// ZoneInstruments returns the instrument set for zone index i. Index 0 with
// no declared zones means "everyone plays". Out-of-range indexes return nil.
func (s *Song) ZoneInstruments(i int) []string {
	if len(s.Zones) == 0 {
		if i == 0 {
			return s.Instruments()
		}
		return nil
	}
	if i < 0 || i >= len(s.Zones) {
		return nil
	}
	return s.Zones[i].Instruments
}

// Validate checks the cross-references a loaded song must satisfy. It is the
// one place load problems surface as errors instead of being played around.
func (s *Song) Validate() error {
	if s.Header.BPM <= 0 {
		return fmt.Errorf("song %q: header bpm %v must be positive", s.Header.Title, s.Header.BPM)
	}
	ts := s.Header.TimeSignature
	if ts.Beats <= 0 || ts.Unit <= 0 {
		return fmt.Errorf("song %q: invalid time signature %d/%d", s.Header.Title, ts.Beats, ts.Unit)
	}
	if len(s.Tracks) == 0 {
		return fmt.Errorf("song %q: no tracks", s.Header.Title)
	}
	known := make(map[string]bool)
	for i, t := range s.Tracks {
		if t.Instrument == "" {
			return fmt.Errorf("song %q: track %d has no instrument", s.Header.Title, i)
		}
		known[t.Instrument] = true
		for j, n := range t.Notes {
			if n.Velocity < 0 || n.Velocity > 1 {
				return fmt.Errorf("track %q note %d: velocity %v out of range 0..1", t.Instrument, j, n.Velocity)
			}
			if n.Duration <= 0 {
				return fmt.Errorf("track %q note %d: duration %v must be positive", t.Instrument, j, n.Duration)
			}
		}
	}
	for _, z := range s.Zones {
		for _, name := range z.Instruments {
			if !known[name] {
				return fmt.Errorf("zone %q names unknown instrument %q", z.Name, name)
			}
		}
	}
	return nil
}

// sortNotes orders each track's notes by musical position. Loaders call it so
// schedulers can assume per-track cursors only move forward.
func (s *Song) sortNotes() {
	ts := s.Header.TimeSignature
	for i := range s.Tracks {
		notes := s.Tracks[i].Notes
		sort.SliceStable(notes, func(a, b int) bool {
			return notes[a].Position.Beats(ts) < notes[b].Position.Beats(ts)
		})
	}
}
