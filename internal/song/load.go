package song

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a song document. YAML is the native format; JSON documents
// parse through the same path since YAML is a superset.
func Parse(data []byte) (*Song, error) {
	var s Song
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing song: %w", err)
	}
	if err := s.Normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Normalize fills defaults, validates, and sorts notes into playback order.
// Parse calls it; programmatically built songs call it themselves before
// handing the song to a player.
func (s *Song) Normalize() error {
	normalize(s)
	if err := s.Validate(); err != nil {
		return err
	}
	s.sortNotes()
	return nil
}

// Load reads and parses a song document from disk.
func Load(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading song: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// normalize fills the defaults a hand-written document may omit.
func normalize(s *Song) {
	if s.Header.TimeSignature.Beats == 0 && s.Header.TimeSignature.Unit == 0 {
		s.Header.TimeSignature = TimeSignature{Beats: 4, Unit: 4}
	}
	for i := range s.Tracks {
		notes := s.Tracks[i].Notes
		for j := range notes {
			if notes[j].Velocity == 0 {
				notes[j].Velocity = 1
			}
		}
	}
}
