package transport

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

// State is the transport's lifecycle position. Idle means never started or
// freshly restarted; Paused retains the playback position.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// Clock is the shared musical timeline. It advances in beats at a rate set
// by the current tempo, one audio frame at a time. Not safe for concurrent
// use; the owner serializes access.
type Clock struct {
	sampleRate float64
	bpm        float64
	startBPM   float64
	timeSig    song.TimeSignature
	origin     float64 // beat position playback (re)starts from
	beat       float64 // current position in beats
	seconds    float64 // wall time spent playing since the last restart
	elapsed    float64 // beats advanced since the last restart
	state      State
}

// NewClock derives tempo and meter from the song header and parks the
// position at origin, the song's declared start offset in beats.
func NewClock(sampleRate int, header song.Header, origin float64) *Clock {
	return &Clock{
		sampleRate: float64(sampleRate),
		bpm:        header.BPM,
		startBPM:   header.BPM,
		timeSig:    header.TimeSignature,
		origin:     origin,
		beat:       origin,
	}
}

// Start begins or resumes advancement. Calling it while already playing
// changes nothing.
func (c *Clock) Start() {
	if c.state == StatePlaying {
		return
	}
	c.state = StatePlaying
}

// Stop halts advancement and keeps the position for a later Start.
func (c *Clock) Stop() {
	if c.state != StatePlaying {
		return
	}
	c.state = StatePaused
}

// Restart returns the transport to Idle: position back to the origin, tempo
// back to the song's starting tempo, elapsed counters cleared.
func (c *Clock) Restart() {
	c.state = StateIdle
	c.beat = c.origin
	c.bpm = c.startBPM
	c.seconds = 0
	c.elapsed = 0
}

// Advance moves the clock one frame forward and returns the new position.
// A non-playing clock stands still.
func (c *Clock) Advance() float64 {
	if c.state != StatePlaying {
		return c.beat
	}
	step := c.bpm / (60 * c.sampleRate)
	c.beat += step
	c.elapsed += step
	c.seconds += 1 / c.sampleRate
	return c.beat
}

// SetBPM changes the tempo in place. A zero tempo freezes the clock without
// leaving the Playing state.
func (c *Clock) SetBPM(bpm float64) {
	if bpm < 0 {
		bpm = 0
	}
	c.bpm = bpm
}

func (c *Clock) BPM() float64 { return c.bpm }

// StartingBPM is the song's original tempo, the reference for duration
// scaling.
func (c *Clock) StartingBPM() float64 { return c.startBPM }

func (c *Clock) State() State { return c.state }

// Position is the current song position in beats.
func (c *Clock) Position() float64 { return c.beat }

// ElapsedBeats counts beats advanced since the last restart. Unlike
// Position it is unaffected by the origin offset.
func (c *Clock) ElapsedBeats() float64 { return c.elapsed }

// Time is the playing time since the last restart; pauses do not count.
func (c *Clock) Time() time.Duration {
	return time.Duration(c.seconds * float64(time.Second))
}

// Measure is the zero-based measure index at the current position.
func (c *Clock) Measure() int {
	return c.MeasureAt(c.beat)
}

func (c *Clock) MeasureAt(beat float64) int {
	bpm := c.timeSig.BeatsPerMeasure()
	if bpm <= 0 {
		return 0
	}
	m := int(beat / bpm)
	if m < 0 {
		return 0
	}
	return m
}
