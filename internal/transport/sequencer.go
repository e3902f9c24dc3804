package transport

import (
	"time"

	"github.com/khiraoka/podium-go/internal/effects"
	"github.com/khiraoka/podium-go/internal/instrument"
	"github.com/khiraoka/podium-go/internal/song"
)

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	EventFinished EventKind = iota
	EventLooped
)

type Options struct {
	Loop bool
	// OnProgress reports playback position as a percentage of measures,
	// fired once per scheduled note.
	OnProgress func(percent float64, measure int)
	// OnTrigger mirrors every sounded note to the animation layer with the
	// values playback actually used.
	OnTrigger func(instrument string, duration time.Duration, velocity float64)
	OnEvent   func(EventKind)
	// ReleaseTailFrames pads the end of playback so release tails ring out
	// before EventFinished; 0 means half a second.
	ReleaseTailFrames int
}

// Sequencer drives every track's notes against the shared clock and renders
// the summed instrument output through the master effects bus. All methods
// run on the render path; the owner serializes access.
type Sequencer struct {
	song       *song.Song
	clock      *Clock
	ctrl       *Control
	bus        *effects.Chain
	tracks     []trackCursor
	opts       Options
	totalM     int
	tailLeft   int
	tailFrames int
	finished   bool
}

// trackCursor walks one track's notes in position order. beats holds each
// note's precomputed fire position so the render loop never re-derives it.
type trackCursor struct {
	instrument instrument.Instrument
	notes      []song.Note
	beats      []float64
	index      int
}

// New binds instruments to the song's tracks, one per track in order.
// Notes are assumed sorted by position, which song loading guarantees.
func New(s *song.Song, instruments []instrument.Instrument, clock *Clock, ctrl *Control, bus *effects.Chain, opts Options) *Sequencer {
	tail := opts.ReleaseTailFrames
	if tail <= 0 {
		tail = int(clock.sampleRate / 2)
	}
	seq := &Sequencer{
		song:       s,
		clock:      clock,
		ctrl:       ctrl,
		bus:        bus,
		opts:       opts,
		totalM:     s.TotalMeasures(),
		tailFrames: tail,
		tailLeft:   tail,
	}
	ts := s.Header.TimeSignature
	for i, tr := range s.Tracks {
		tc := trackCursor{instrument: instruments[i], notes: tr.Notes}
		tc.beats = make([]float64, len(tr.Notes))
		for j, n := range tr.Notes {
			tc.beats[j] = n.Position.Beats(ts)
		}
		seq.tracks = append(seq.tracks, tc)
	}
	seq.seekCursors(clock.Position())
	return seq
}

// seekCursors positions every track at the first note at or after beat.
func (s *Sequencer) seekCursors(beat float64) {
	for i := range s.tracks {
		tc := &s.tracks[i]
		tc.index = 0
		for tc.index < len(tc.beats) && tc.beats[tc.index] < beat {
			tc.index++
		}
	}
}

// Process renders one interleaved stereo buffer. When the clock is playing
// it advances one frame per output frame and fires any notes that became
// due; paused or idle, it still renders so in-flight voices ring out.
func (s *Sequencer) Process(dst []float32) {
	frames := len(dst) / 2
	for f := 0; f < frames; f++ {
		if s.clock.State() == StatePlaying {
			beat := s.clock.Advance()
			s.fireDue(beat)
			s.checkEnd()
		}
		var l, r float32
		for i := range s.tracks {
			tl, tr := s.tracks[i].instrument.RenderFrame()
			l += tl
			r += tr
		}
		l, r = s.bus.Process(l, r)
		dst[f*2] = l
		dst[f*2+1] = r
	}
}

func (s *Sequencer) fireDue(beat float64) {
	for i := range s.tracks {
		tc := &s.tracks[i]
		for tc.index < len(tc.beats) && tc.beats[tc.index] <= beat {
			note := tc.notes[tc.index]
			atBeat := tc.beats[tc.index]
			tc.index++
			s.fire(tc, note, atBeat)
		}
	}
}

// fire runs the per-note algorithm: report progress, gate on the active
// set, scale and clamp duration, clamp velocity, trigger, and mirror the
// trigger to the animation callback. A gated note skips both sound and
// animation; a rejected note is logged and still animates.
func (s *Sequencer) fire(tc *trackCursor, n song.Note, atBeat float64) {
	if s.opts.OnProgress != nil {
		measure := s.clock.MeasureAt(atBeat)
		percent := 0.0
		if s.totalM > 0 {
			percent = 100 * float64(measure) / float64(s.totalM)
		}
		s.opts.OnProgress(percent, measure)
	}

	id := tc.instrument.ID()
	if !s.ctrl.Active(id) {
		return
	}

	duration := s.ctrl.FireDuration(time.Duration(n.Duration * float64(time.Second)))
	velocity := s.ctrl.FireVelocity()
	if n.Velocity > 0 {
		velocity *= n.Velocity
	}

	if err := tc.instrument.Trigger(n.Pitch, duration, s.clock.Time(), velocity); err != nil {
		logger.Warn("note rejected, continuing",
			"instrument", id, "pitch", n.Pitch.String(), "error", err)
	}
	if s.opts.OnTrigger != nil {
		s.opts.OnTrigger(id, duration, velocity)
	}
}

// checkEnd watches for the score running out. Once every cursor is spent
// and every voice has gone quiet, a short tail elapses and the sequencer
// either loops or reports EventFinished exactly once.
func (s *Sequencer) checkEnd() {
	if s.finished || !s.exhausted() {
		return
	}
	if s.activeVoices() > 0 {
		s.tailLeft = s.tailFrames
		return
	}
	if s.tailLeft > 0 {
		s.tailLeft--
		return
	}
	if s.opts.Loop {
		s.rewind()
		if s.opts.OnEvent != nil {
			s.opts.OnEvent(EventLooped)
		}
		return
	}
	s.finished = true
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(EventFinished)
	}
}

func (s *Sequencer) exhausted() bool {
	for i := range s.tracks {
		if s.tracks[i].index < len(s.tracks[i].notes) {
			return false
		}
	}
	return true
}

func (s *Sequencer) activeVoices() int {
	n := 0
	for i := range s.tracks {
		n += s.tracks[i].instrument.ActiveVoices()
	}
	return n
}

// rewind returns to the song origin with the starting tempo, keeping the
// transport playing. Used for whole-song looping.
func (s *Sequencer) rewind() {
	s.clock.beat = s.clock.origin
	s.clock.bpm = s.clock.startBPM
	s.seekCursors(s.clock.origin)
	s.tailLeft = s.tailFrames
}

// Restart rewinds cursors and silences every voice; the clock itself is
// reset by the caller as part of the transport restart.
func (s *Sequencer) Restart() {
	s.seekCursors(s.clock.Position())
	s.tailLeft = s.tailFrames
	s.finished = false
	for i := range s.tracks {
		s.tracks[i].instrument.Silence()
	}
	s.bus.Reset()
}

// Finished reports whether the score has fully played out.
func (s *Sequencer) Finished() bool { return s.finished }

// ActiveVoices totals voices still sounding across all tracks.
func (s *Sequencer) ActiveVoices() int { return s.activeVoices() }

// Instruments exposes the bound instruments in track order.
func (s *Sequencer) Instruments() []instrument.Instrument {
	out := make([]instrument.Instrument, len(s.tracks))
	for i := range s.tracks {
		out[i] = s.tracks[i].instrument
	}
	return out
}
