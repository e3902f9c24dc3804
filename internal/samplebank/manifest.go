package samplebank

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/khiraoka/podium-go/internal/song"
)

// Bank maps instrument names to playable sources: either a table of note
// sample files or a SoundFont program. Sample paths resolve against BasePath,
// which may be a directory or an http(s) URL.
type Bank struct {
	BasePath    string                `yaml:"basePath"`
	Instruments map[string]Instrument `yaml:"instruments"`
}

type Instrument struct {
	Samples   map[string]string `yaml:"samples,omitempty"` // note name -> relative file
	SoundFont *SoundFontRef     `yaml:"soundfont,omitempty"`
}

// SoundFontRef names a program inside a SoundFont file. The file path
// resolves against the bank's BasePath like sample files do.
type SoundFontRef struct {
	File    string `yaml:"file"`
	Bank    int    `yaml:"bank"`
	Program int    `yaml:"program"`
}

// NoteSource is one resolved sample: the canonical pitch and the location to
// fetch it from.
type NoteSource struct {
	Pitch    song.Pitch
	Location string
}

// Source is the resolved form handed to the instrument loader.
type Source struct {
	Instrument string
	Notes      []NoteSource // sorted by pitch; empty when SoundFont is set
	SoundFont  *SoundFontRef
}

// Parse decodes a bank manifest and canonicalizes its note names.
func Parse(data []byte) (*Bank, error) {
	var b Bank
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing sample bank: %w", err)
	}
	for name, inst := range b.Instruments {
		if inst.SoundFont == nil && len(inst.Samples) == 0 {
			return nil, fmt.Errorf("sample bank: instrument %q has neither samples nor a soundfont", name)
		}
		for note := range inst.Samples {
			if _, err := song.ParsePitch(note); err != nil {
				return nil, fmt.Errorf("sample bank: instrument %q: %w", name, err)
			}
		}
	}
	return &b, nil
}

// Load reads a bank manifest from disk. A relative BasePath is resolved
// against the manifest's own directory so banks can travel with their files.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sample bank: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if b.BasePath != "" && !isURL(b.BasePath) && !filepath.IsAbs(b.BasePath) {
		b.BasePath = filepath.Join(filepath.Dir(path), b.BasePath)
	} else if b.BasePath == "" {
		b.BasePath = filepath.Dir(path)
	}
	return b, nil
}

// Resolve returns the fetchable sources for one instrument, note names
// canonicalized and relative paths joined onto the base path.
func (b *Bank) Resolve(instrument string) (*Source, error) {
	inst, ok := b.Instruments[instrument]
	if !ok {
		return nil, fmt.Errorf("sample bank: no entry for instrument %q", instrument)
	}
	src := &Source{Instrument: instrument}
	if inst.SoundFont != nil {
		ref := *inst.SoundFont
		ref.File = b.join(ref.File)
		src.SoundFont = &ref
		return src, nil
	}
	for note, file := range inst.Samples {
		p, err := song.ParsePitch(note)
		if err != nil {
			return nil, fmt.Errorf("sample bank: instrument %q: %w", instrument, err)
		}
		src.Notes = append(src.Notes, NoteSource{Pitch: p, Location: b.join(file)})
	}
	sort.Slice(src.Notes, func(i, j int) bool { return src.Notes[i].Pitch < src.Notes[j].Pitch })
	return src, nil
}

// Has reports whether the bank knows the instrument at all.
func (b *Bank) Has(instrument string) bool {
	_, ok := b.Instruments[instrument]
	return ok
}

func (b *Bank) join(rel string) string {
	if isURL(rel) || b.BasePath == "" {
		return rel
	}
	if isURL(b.BasePath) {
		u, err := url.Parse(b.BasePath)
		if err != nil {
			return b.BasePath + "/" + rel
		}
		u.Path = path.Join(u.Path, rel)
		return u.String()
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(b.BasePath, rel)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
