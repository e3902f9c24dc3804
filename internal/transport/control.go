package transport

import (
	"time"

	"github.com/khiraoka/podium-go/internal/song"
)

// Limits bound what the live controls may do to playback. Out-of-range
// inputs are clamped, never rejected.
type Limits struct {
	MaxBPM      float64
	MinBPM      float64 // floor for the duration-ratio denominator
	MinDuration time.Duration
	MaxDuration time.Duration
	MinVelocity float64
	MaxVelocity float64
}

func DefaultLimits() Limits {
	return Limits{
		MaxBPM:      240,
		MinBPM:      30,
		MinDuration: 50 * time.Millisecond,
		MaxDuration: 6 * time.Second,
		MinVelocity: 0.1,
		MaxVelocity: 1.0,
	}
}

// normalized fills zeroed fields with defaults so a partially specified
// Limits behaves sanely.
func (l Limits) normalized() Limits {
	d := DefaultLimits()
	if l.MaxBPM <= 0 {
		l.MaxBPM = d.MaxBPM
	}
	if l.MinBPM <= 0 {
		l.MinBPM = d.MinBPM
	}
	if l.MinDuration <= 0 {
		l.MinDuration = d.MinDuration
	}
	if l.MaxDuration <= 0 {
		l.MaxDuration = d.MaxDuration
	}
	if l.MinVelocity <= 0 {
		l.MinVelocity = d.MinVelocity
	}
	if l.MaxVelocity <= 0 {
		l.MaxVelocity = d.MaxVelocity
	}
	return l
}

// Control is the live playback state shared between the outside world and
// the sequencer: tempo, velocity, and the active instrument set. The
// conductor writes it, the sequencer reads it at every note fire. Not safe
// for concurrent use on its own; the owner serializes access.
type Control struct {
	clock    *Clock
	limits   Limits
	velocity float64
	active   map[string]bool
	all      bool // no zone selected yet, everyone plays
}

func NewControl(clock *Clock, limits Limits) *Control {
	return &Control{
		clock:    clock,
		limits:   limits.normalized(),
		velocity: 1.0,
		all:      true,
	}
}

func (c *Control) Limits() Limits { return c.limits }

// SetTempo clamps to [0, MaxBPM] and applies to the clock immediately. Zero
// halts note advancement without leaving the playing state.
func (c *Control) SetTempo(bpm float64) {
	if bpm < 0 {
		bpm = 0
	}
	if bpm > c.limits.MaxBPM {
		bpm = c.limits.MaxBPM
	}
	c.clock.SetBPM(bpm)
}

// SetVelocity stores the raw value. Clamping to the configured bounds
// happens at note-fire time, not here, so later limit reads see one
// consistent rule.
func (c *Control) SetVelocity(v float64) {
	c.velocity = v
}

// Velocity returns the raw stored value.
func (c *Control) Velocity() float64 { return c.velocity }

// FireVelocity is the value playback actually uses: the raw velocity
// clamped to the configured bounds.
func (c *Control) FireVelocity() float64 {
	v := c.velocity
	if v < c.limits.MinVelocity {
		v = c.limits.MinVelocity
	}
	if v > c.limits.MaxVelocity {
		v = c.limits.MaxVelocity
	}
	return v
}

// SetZone replaces the active instrument set wholesale from the song's zone
// table. An out-of-range index is ignored so a glitchy controller cannot
// silence the stage; a declared zone with no instruments does silence it.
func (c *Control) SetZone(s *song.Song, index int) {
	max := len(s.Zones)
	if max == 0 {
		max = 1 // zone 0 means everyone when no zones are declared
	}
	if index < 0 || index >= max {
		logger.Warn("ignoring unknown zone", "index", index, "zones", len(s.Zones))
		return
	}
	names := s.ZoneInstruments(index)
	c.active = make(map[string]bool, len(names))
	for _, n := range names {
		c.active[n] = true
	}
	c.all = false
	logger.Debug("zone selected", "index", index, "instruments", len(names))
}

// ActivateAll returns to the everyone-plays default.
func (c *Control) ActivateAll() {
	c.active = nil
	c.all = true
}

// Active reports whether the named instrument may sound right now.
func (c *Control) Active(instrument string) bool {
	if c.all {
		return true
	}
	return c.active[instrument]
}

// ActiveCount returns the size of the current set, -1 meaning everyone.
func (c *Control) ActiveCount() int {
	if c.all {
		return -1
	}
	return len(c.active)
}

// DurationRatio scales nominal note durations for the current tempo: slower
// conducting stretches sustain proportionally. The MinBPM floor keeps a
// near-zero tempo from producing runaway durations.
func (c *Control) DurationRatio() float64 {
	bpm := c.clock.BPM()
	if bpm < c.limits.MinBPM {
		bpm = c.limits.MinBPM
	}
	return c.clock.StartingBPM() / bpm
}

// FireDuration applies the tempo ratio to a nominal duration and clamps the
// result to the configured bounds.
func (c *Control) FireDuration(nominal time.Duration) time.Duration {
	d := time.Duration(float64(nominal) * c.DurationRatio())
	if d < c.limits.MinDuration {
		d = c.limits.MinDuration
	}
	if d > c.limits.MaxDuration {
		d = c.limits.MaxDuration
	}
	return d
}
