package instrument

import (
	"log/slog"
	"time"

	"github.com/khiraoka/podium-go/internal/song"
)

var logger = slog.Default()

// SetLogger routes this package's diagnostics; the default is slog's
// process-wide logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Kind identifies the playable variant bound to a track.
type Kind int

const (
	KindSynth Kind = iota
	KindSampled
	KindSoundFont
)

func (k Kind) String() string {
	switch k {
	case KindSampled:
		return "sampled"
	case KindSoundFont:
		return "soundfont"
	default:
		return "synth"
	}
}

// Instrument is a playable handle owned by exactly one track. Trigger and
// RenderFrame are called from the render path and must not block.
type Instrument interface {
	// Trigger starts a note. duration is the sustain length before release,
	// at is the note's position on the song timeline (for diagnostics),
	// velocity is 0..1. A rejected note returns an error; the caller decides
	// whether that matters.
	Trigger(pitch song.Pitch, duration, at time.Duration, velocity float64) error
	// RenderFrame produces the next stereo frame.
	RenderFrame() (float32, float32)
	// ActiveVoices counts voices still sounding, release tails included.
	ActiveVoices() int
	// Silence cuts all voices immediately. Used on restart.
	Silence()
	Kind() Kind
	// ID is the instrument identifier the track declared.
	ID() string
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
