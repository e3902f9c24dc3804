package podium

import (
	"path/filepath"
	"strings"

	intinst "github.com/khiraoka/podium-go/internal/instrument"
	intbank "github.com/khiraoka/podium-go/internal/samplebank"
	intsong "github.com/khiraoka/podium-go/internal/song"
	inttrans "github.com/khiraoka/podium-go/internal/transport"
)

// Song document types, re-exported so callers can build and inspect songs
// without reaching into internal packages.
type (
	Song          = intsong.Song
	Header        = intsong.Header
	TimeSignature = intsong.TimeSignature
	Track         = intsong.Track
	Note          = intsong.Note
	Zone          = intsong.Zone
	Position      = intsong.Position
	Pitch         = intsong.Pitch
)

// Bank maps instrument names to their sample or soundfont sources.
type Bank = intbank.Bank

// Limits bound what live control may do to tempo, duration, and velocity.
type Limits = inttrans.Limits

func DefaultLimits() Limits { return inttrans.DefaultLimits() }

// TransportState is the lifecycle state reported by State().
type TransportState = inttrans.State

const (
	StateIdle    = inttrans.StateIdle
	StatePlaying = inttrans.StatePlaying
	StatePaused  = inttrans.StatePaused
)

// LoadState tags one track's load outcome.
type LoadState = intinst.LoadState

const (
	LoadPending  = intinst.LoadPending
	LoadLoaded   = intinst.LoadLoaded
	LoadTimedOut = intinst.LoadTimedOut
)

// Instrument is the playable handle bound to each track.
type Instrument = intinst.Instrument

// ParsePitch converts a note name ("C4", "F#3", "Bb2") to its MIDI number.
func ParsePitch(s string) (Pitch, error) { return intsong.ParsePitch(s) }

// MustPitch is ParsePitch for literals; it panics on a malformed name.
func MustPitch(s string) Pitch { return intsong.MustPitch(s) }

// ParseSong decodes a YAML or JSON song document.
func ParseSong(data []byte) (*Song, error) { return intsong.Parse(data) }

// LoadSong reads a song from disk, picking the decoder by extension:
// .mid/.midi/.smf import as Standard MIDI Files, everything else parses as
// a YAML/JSON document.
func LoadSong(path string) (*Song, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi", ".smf":
		return intsong.LoadSMF(path)
	default:
		return intsong.Load(path)
	}
}

// LoadBank reads a sample-bank manifest from disk. Relative sample paths
// resolve against the manifest's directory unless the manifest sets its
// own base path.
func LoadBank(path string) (*Bank, error) { return intbank.Load(path) }
