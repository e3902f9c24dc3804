package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/khiraoka/podium-go/internal/effects"
	"github.com/khiraoka/podium-go/internal/instrument"
	"github.com/khiraoka/podium-go/internal/song"
)

type firedNote struct {
	pitch    song.Pitch
	duration time.Duration
	velocity float64
}

// countingInstrument records triggers without making sound.
type countingInstrument struct {
	id      string
	fired   []firedNote
	reject  bool
	voices  int
	silence int
}

func (c *countingInstrument) Trigger(p song.Pitch, d, at time.Duration, v float64) error {
	if c.reject {
		return errors.New("rejected")
	}
	c.fired = append(c.fired, firedNote{pitch: p, duration: d, velocity: v})
	return nil
}
func (c *countingInstrument) RenderFrame() (float32, float32) { return 0, 0 }
func (c *countingInstrument) ActiveVoices() int               { return c.voices }
func (c *countingInstrument) Silence()                        { c.silence++ }
func (c *countingInstrument) Kind() instrument.Kind           { return instrument.KindSynth }
func (c *countingInstrument) ID() string                      { return c.id }

func at(measure, beat int) song.Position {
	return song.Position{Measure: measure, Beat: beat}
}

func note(pitch string, duration float64, pos song.Position) song.Note {
	return song.Note{
		Pitch:    song.MustPitch(pitch),
		Duration: duration,
		Velocity: 1,
		Position: pos,
	}
}

// duet is a two-track song: violin on beats 0 and 2, cello on beat 1.
func duet() *song.Song {
	return &song.Song{
		Header: testHeader(120),
		Tracks: []song.Track{
			{Instrument: "violin", Notes: []song.Note{
				note("A4", 0.5, at(0, 0)),
				note("C5", 0.5, at(0, 2)),
			}},
			{Instrument: "cello", Notes: []song.Note{
				note("C3", 0.5, at(0, 1)),
			}},
		},
		Zones: []song.Zone{
			{Name: "strings", Instruments: []string{"violin", "cello"}},
			{Name: "violins-only", Instruments: []string{"violin"}},
		},
	}
}

type seqFixture struct {
	song  *song.Song
	clock *Clock
	ctrl  *Control
	seq   *Sequencer
	insts []*countingInstrument
}

func newFixture(t *testing.T, s *song.Song, limits Limits, opts Options) *seqFixture {
	t.Helper()
	clock := NewClock(clockRate, s.Header, s.StartOffset)
	ctrl := NewControl(clock, limits)
	insts := make([]*countingInstrument, len(s.Tracks))
	bound := make([]instrument.Instrument, len(s.Tracks))
	for i, tr := range s.Tracks {
		insts[i] = &countingInstrument{id: tr.Instrument}
		bound[i] = insts[i]
	}
	seq := New(s, bound, clock, ctrl, effects.NewChain(), opts)
	return &seqFixture{song: s, clock: clock, ctrl: ctrl, seq: seq, insts: insts}
}

// processBeats runs the render loop long enough for the given number of
// beats at the clock's current tempo.
func (f *seqFixture) processBeats(beats float64) {
	frames := int(beats * 60 / f.clock.BPM() * clockRate)
	buf := make([]float32, 2*256)
	for frames > 0 {
		n := 256
		if frames < n {
			n = frames
		}
		f.seq.Process(buf[:2*n])
		frames -= n
	}
}

func TestSequencerFiresNotesInPositionOrder(t *testing.T) {
	f := newFixture(t, duet(), Limits{}, Options{})
	f.clock.Start()
	f.processBeats(3)

	violin, cello := f.insts[0], f.insts[1]
	if len(violin.fired) != 2 {
		t.Fatalf("violin fired %d notes, want 2", len(violin.fired))
	}
	if len(cello.fired) != 1 {
		t.Fatalf("cello fired %d notes, want 1", len(cello.fired))
	}
	if violin.fired[0].pitch != song.MustPitch("A4") || violin.fired[1].pitch != song.MustPitch("C5") {
		t.Fatalf("violin notes out of order: %+v", violin.fired)
	}
}

func TestSequencerIdleClockFiresNothing(t *testing.T) {
	f := newFixture(t, duet(), Limits{}, Options{})
	buf := make([]float32, 2*clockRate)
	f.seq.Process(buf)
	for _, inst := range f.insts {
		if len(inst.fired) != 0 {
			t.Fatalf("%s fired %d notes while idle", inst.id, len(inst.fired))
		}
	}
}

func TestSequencerStopHaltsFiringAndKeepsPosition(t *testing.T) {
	f := newFixture(t, duet(), Limits{}, Options{})
	f.clock.Start()
	f.processBeats(0.5)
	f.clock.Stop()
	pos := f.clock.Position()
	fired := len(f.insts[0].fired) + len(f.insts[1].fired)

	f.processBeats(4)
	if got := len(f.insts[0].fired) + len(f.insts[1].fired); got != fired {
		t.Fatalf("paused sequencer fired notes: %d -> %d", fired, got)
	}
	if f.clock.Position() != pos {
		t.Fatalf("paused clock moved: %f -> %f", pos, f.clock.Position())
	}
}

func TestSequencerTempoScalesFiredDuration(t *testing.T) {
	// 120bpm song conducted at 60: ratio 2 stretches the nominal 0.5s to 1s
	f := newFixture(t, duet(), Limits{MinBPM: 60, MaxBPM: 240}, Options{})
	f.ctrl.SetTempo(60)
	f.clock.Start()
	f.processBeats(1.5)

	violin := f.insts[0]
	if len(violin.fired) == 0 {
		t.Fatal("no notes fired")
	}
	if got := violin.fired[0].duration; got != time.Second {
		t.Fatalf("fired duration = %v, want 1s", got)
	}
}

func TestSequencerVelocityClampedAtFireTime(t *testing.T) {
	f := newFixture(t, duet(), Limits{MinVelocity: 0.1, MaxVelocity: 0.9}, Options{})
	f.ctrl.SetVelocity(50)
	f.clock.Start()
	f.processBeats(1)

	violin := f.insts[0]
	if len(violin.fired) == 0 {
		t.Fatal("no notes fired")
	}
	if got := violin.fired[0].velocity; got != 0.9 {
		t.Fatalf("fired velocity = %f, want clamped 0.9", got)
	}
}

func TestSequencerZoneGateSkipsSoundAndAnimation(t *testing.T) {
	var animated []string
	opts := Options{
		OnTrigger: func(id string, d time.Duration, v float64) {
			animated = append(animated, id)
		},
	}
	f := newFixture(t, duet(), Limits{}, opts)
	f.ctrl.SetZone(f.song, 1) // violins only
	f.clock.Start()
	f.processBeats(3)

	if got := len(f.insts[1].fired); got != 0 {
		t.Fatalf("gated cello fired %d notes, want 0", got)
	}
	for _, id := range animated {
		if id == "cello" {
			t.Fatal("gated cello still produced an animation trigger")
		}
	}
	if len(animated) != 2 {
		t.Fatalf("animation triggers = %v, want the 2 violin notes", animated)
	}
}

func TestSequencerProgressReportedForGatedNotes(t *testing.T) {
	var reports int
	opts := Options{
		OnProgress: func(percent float64, measure int) { reports++ },
	}
	f := newFixture(t, duet(), Limits{}, opts)
	f.ctrl.SetZone(f.song, 1) // cello gated
	f.clock.Start()
	f.processBeats(3)
	if reports != 3 {
		t.Fatalf("progress reports = %d, want one per scheduled note including gated", reports)
	}
}

func TestSequencerRejectedNoteStillAnimates(t *testing.T) {
	var animated []string
	opts := Options{
		OnTrigger: func(id string, d time.Duration, v float64) {
			animated = append(animated, id)
		},
	}
	f := newFixture(t, duet(), Limits{}, opts)
	f.insts[0].reject = true
	f.clock.Start()
	f.processBeats(3)

	var violinAnimations int
	for _, id := range animated {
		if id == "violin" {
			violinAnimations++
		}
	}
	if violinAnimations != 2 {
		t.Fatalf("rejected violin notes animated %d times, want 2", violinAnimations)
	}
}

func TestSequencerFinishedFiresOnceAfterTail(t *testing.T) {
	var events []EventKind
	opts := Options{
		OnEvent:           func(k EventKind) { events = append(events, k) },
		ReleaseTailFrames: 16,
	}
	f := newFixture(t, duet(), Limits{}, opts)
	f.clock.Start()
	f.processBeats(8)

	if !f.seq.Finished() {
		t.Fatal("sequencer not finished after the whole song plus tail")
	}
	if len(events) != 1 || events[0] != EventFinished {
		t.Fatalf("events = %v, want exactly one EventFinished", events)
	}
}

func TestSequencerLoopRewindsAndKeepsPlaying(t *testing.T) {
	var events []EventKind
	opts := Options{
		Loop:              true,
		OnEvent:           func(k EventKind) { events = append(events, k) },
		ReleaseTailFrames: 16,
	}
	f := newFixture(t, duet(), Limits{}, opts)
	f.clock.Start()
	f.processBeats(12)

	if f.seq.Finished() {
		t.Fatal("looping sequencer reported finished")
	}
	if len(events) == 0 || events[0] != EventLooped {
		t.Fatalf("events = %v, want at least one EventLooped", events)
	}
	if got := len(f.insts[0].fired); got < 4 {
		t.Fatalf("violin fired %d notes over two loop passes, want at least 4", got)
	}
}

func TestSequencerHonorsStartOffset(t *testing.T) {
	s := duet()
	s.StartOffset = 2 // skip everything before beat 2
	f := newFixture(t, s, Limits{}, Options{})
	f.clock.Start()
	f.processBeats(3)

	if got := len(f.insts[0].fired); got != 1 {
		t.Fatalf("violin fired %d notes, want only the beat-2 note", got)
	}
	if f.insts[0].fired[0].pitch != song.MustPitch("C5") {
		t.Fatalf("violin fired %v, want the beat-2 C5", f.insts[0].fired[0].pitch)
	}
	if got := len(f.insts[1].fired); got != 0 {
		t.Fatalf("cello fired %d notes, want its beat-1 note skipped", got)
	}
}

func TestSequencerRestartSilencesAndReplaysFromTop(t *testing.T) {
	f := newFixture(t, duet(), Limits{}, Options{ReleaseTailFrames: 16})
	f.clock.Start()
	f.processBeats(8)
	first := len(f.insts[0].fired)

	f.clock.Restart()
	f.seq.Restart()
	if f.insts[0].silence == 0 {
		t.Fatal("restart did not silence the instruments")
	}
	f.clock.Start()
	f.processBeats(3)
	if got := len(f.insts[0].fired); got != first+2 {
		t.Fatalf("violin fired %d notes after restart, want %d", got, first+2)
	}
}
