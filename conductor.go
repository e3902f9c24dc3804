package podium

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	intaudio "github.com/khiraoka/podium-go/internal/audio"
	intfx "github.com/khiraoka/podium-go/internal/effects"
	intinst "github.com/khiraoka/podium-go/internal/instrument"
	intbank "github.com/khiraoka/podium-go/internal/samplebank"
	intsong "github.com/khiraoka/podium-go/internal/song"
	inttrans "github.com/khiraoka/podium-go/internal/transport"
)

// Event carries loading and playback notifications from Watch().
type Event struct {
	Kind       int
	Percent    float64        // EventLoading, EventProgress
	Measure    int            // EventProgress
	Instrument string         // EventTrigger
	Duration   time.Duration  // EventTrigger
	Velocity   float64        // EventTrigger
	State      inttrans.State // EventState
}

const (
	// EventLoading reports instrument load progress, Percent 0-100.
	EventLoading int = iota
	// EventProgress reports playback position as a percentage of measures.
	EventProgress
	// EventTrigger mirrors a sounded note for the animation layer.
	EventTrigger
	// EventState reports a transport lifecycle change, State set.
	EventState
	// EventLooped marks a whole-song loop boundary.
	EventLooped
	// EventFinished marks the end of non-looping playback.
	EventFinished
)

type Option func(*config)

type config struct {
	sampleRate     int
	bank           *intbank.Bank
	soundFont      string
	limits         inttrans.Limits
	loop           bool
	ensemble       bool
	volume         float64
	trackTimeout   time.Duration
	startupTimeout time.Duration
	onLoaded       func(percent float64)
	onProgress     func(percent float64, measure int)
	onTrigger      func(instrument string, duration time.Duration, velocity float64)
	logger         *slog.Logger
}

func defaultConfig() config {
	return config{
		sampleRate: 44100,
		limits:     inttrans.DefaultLimits(),
		volume:     1,
	}
}

// WithSampleRate sets the engine rate. Every Conductor in a process must
// agree on it; the audio backend allows one context.
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

// WithSampleBank provides the instrument sample sources. Without a bank
// every track gets the synthesized fallback.
func WithSampleBank(bank *intbank.Bank) Option {
	return func(c *config) { c.bank = bank }
}

// WithSoundFont names a fallback .sf2 file for tracks the sample bank does
// not cover (or all tracks, without a bank). Programs are chosen by
// instrument name per General MIDI.
func WithSoundFont(path string) Option {
	return func(c *config) { c.soundFont = path }
}

// WithLimits overrides the clamp bounds for tempo, duration, and velocity.
// Zero fields keep their defaults.
func WithLimits(limits inttrans.Limits) Option {
	return func(c *config) { c.limits = limits }
}

// WithLoop repeats the song from the top instead of finishing.
func WithLoop(enabled bool) Option {
	return func(c *config) { c.loop = enabled }
}

// WithEnsemble inserts the section widener into the master bus.
func WithEnsemble(enabled bool) Option {
	return func(c *config) { c.ensemble = enabled }
}

// WithMasterVolume sets the initial master volume. 1.0 is unity.
func WithMasterVolume(volume float64) Option {
	return func(c *config) { c.volume = volume }
}

// WithLoadTimeouts overrides the per-track and startup load deadlines.
func WithLoadTimeouts(track, startup time.Duration) Option {
	return func(c *config) {
		c.trackTimeout = track
		c.startupTimeout = startup
	}
}

// OnInstrumentsLoaded installs the load progress callback, percent 0-100.
// It runs on loader goroutines; keep work brief and non-blocking.
func OnInstrumentsLoaded(f func(percent float64)) Option {
	return func(c *config) { c.onLoaded = f }
}

// OnSongProgress installs the playback progress callback. It runs on the
// audio thread; keep work brief and non-blocking.
func OnSongProgress(f func(percent float64, measure int)) Option {
	return func(c *config) { c.onProgress = f }
}

// OnTriggerAnimation installs the animation callback, invoked for every
// note that passes the active-set gate with the duration and velocity
// playback used. It runs on the audio thread; keep work brief and
// non-blocking.
func OnTriggerAnimation(f func(instrument string, duration time.Duration, velocity float64)) Option {
	return func(c *config) { c.onTrigger = f }
}

// WithLogger routes diagnostics for the conductor and everything under it.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Conductor is the façade over loading, transport, live control, and audio
// output for one song session.
type Conductor struct {
	song *intsong.Song
	cfg  config

	mu     sync.Mutex
	bus    *intfx.Bus
	clock  *inttrans.Clock
	ctrl   *inttrans.Control
	seq    *inttrans.Sequencer
	audio  *intaudio.Player
	stream *intaudio.StreamReader
	states []intinst.LoadState
	loaded bool
	done   chan struct{}

	eventCh   chan Event
	eventChMu sync.Mutex
}

// NewConductor prepares a session for one song. The song is normalized in
// place (defaults filled, notes sorted); call LoadInstruments before Start.
func NewConductor(s *intsong.Song, opts ...Option) (*Conductor, error) {
	if s == nil {
		return nil, errors.New("nil song")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if err := s.Normalize(); err != nil {
		return nil, err
	}
	if cfg.logger != nil {
		intinst.SetLogger(cfg.logger)
		inttrans.SetLogger(cfg.logger)
	}
	return &Conductor{
		song: s,
		cfg:  cfg,
		done: make(chan struct{}),
	}, nil
}

// Song returns the session's song.
func (c *Conductor) Song() *intsong.Song { return c.song }

// LoadInstruments fetches and binds an instrument to every track, then
// builds the transport. It never fails on bad assets (those fall back to
// the synthesizer); the returned error is reserved for a canceled context.
func (c *Conductor) LoadInstruments(ctx context.Context) error {
	loader := intinst.NewLoader(c.song, c.cfg.bank, intinst.LoaderOptions{
		SampleRate:     c.cfg.sampleRate,
		SoundFont:      c.cfg.soundFont,
		TrackTimeout:   c.cfg.trackTimeout,
		StartupTimeout: c.cfg.startupTimeout,
		OnProgress: func(percent float64) {
			if c.cfg.onLoaded != nil {
				c.cfg.onLoaded(percent)
			}
			c.sendEvent(Event{Kind: EventLoading, Percent: percent})
		},
	})
	instruments, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	bus := intfx.NewOrchestraBus(c.cfg.sampleRate, c.cfg.ensemble)
	bus.SetMasterGain(c.cfg.volume)
	clock := inttrans.NewClock(c.cfg.sampleRate, c.song.Header, c.song.StartOffset)
	ctrl := inttrans.NewControl(clock, c.cfg.limits)
	seq := inttrans.New(c.song, instruments, clock, ctrl, bus.Chain, inttrans.Options{
		Loop:       c.cfg.loop,
		OnProgress: c.emitProgress,
		OnTrigger:  c.emitTrigger,
		OnEvent:    c.emitTransportEvent,
	})

	c.mu.Lock()
	c.bus = bus
	c.clock = clock
	c.ctrl = ctrl
	c.seq = seq
	c.states = loader.States()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (c *Conductor) emitProgress(percent float64, measure int) {
	if c.cfg.onProgress != nil {
		c.cfg.onProgress(percent, measure)
	}
	c.sendEvent(Event{Kind: EventProgress, Percent: percent, Measure: measure})
}

func (c *Conductor) emitTrigger(instrument string, duration time.Duration, velocity float64) {
	if c.cfg.onTrigger != nil {
		c.cfg.onTrigger(instrument, duration, velocity)
	}
	c.sendEvent(Event{Kind: EventTrigger, Instrument: instrument, Duration: duration, Velocity: velocity})
}

func (c *Conductor) emitTransportEvent(kind inttrans.EventKind) {
	switch kind {
	case inttrans.EventLooped:
		c.sendEvent(Event{Kind: EventLooped})
	case inttrans.EventFinished:
		c.sendEvent(Event{Kind: EventFinished})
		c.signalDone()
	}
}

// renderSource hides the sequencer's Finished method from the stream. The
// session outlives the score: after EventFinished the backend keeps
// pulling silence so Restart and Start still work, and teardown stays
// explicit via Close.
type renderSource struct {
	seq *inttrans.Sequencer
}

func (r renderSource) Process(dst []float32) { r.seq.Process(dst) }

// withRender runs f serialized against the audio pull. The facade lock is
// released first: the render path takes it inside event callbacks, so
// holding it here while waiting on the stream would deadlock. Returns
// false when LoadInstruments has not run.
func (c *Conductor) withRender(f func()) bool {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return false
	}
	stream := c.stream
	c.mu.Unlock()
	if stream != nil {
		stream.Do(f)
	} else {
		f()
	}
	return true
}

// Start begins or resumes playback. The first call opens the audio output;
// calling Start while already playing is a no-op.
func (c *Conductor) Start() error {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return errors.New("instruments not loaded")
	}
	if c.audio == nil {
		backend, err := intaudio.NewPlayer(c.cfg.sampleRate, renderSource{seq: c.seq})
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.audio = backend
		c.stream = backend.Reader()
		backend.Play()
	}
	c.mu.Unlock()
	var from, to inttrans.State
	c.withRender(func() {
		from = c.clock.State()
		c.clock.Start()
		to = c.clock.State()
	})
	if to != from {
		c.sendEvent(Event{Kind: EventState, State: to})
	}
	return nil
}

// Stop pauses the transport. In-flight notes ring out; the position is
// kept for the next Start.
func (c *Conductor) Stop() {
	var from, to inttrans.State
	c.withRender(func() {
		from = c.clock.State()
		c.clock.Stop()
		to = c.clock.State()
	})
	if to != from {
		c.sendEvent(Event{Kind: EventState, State: to})
	}
}

// Restart returns the session to the top of the song: position, tempo, and
// elapsed counters reset, all voices silenced. The transport is left idle;
// call Start to play again. A finished session is re-armed so Wait blocks
// for the new run.
func (c *Conductor) Restart() {
	c.mu.Lock()
	if c.loaded && c.done == nil {
		c.done = make(chan struct{})
	}
	c.mu.Unlock()
	var from, to inttrans.State
	c.withRender(func() {
		from = c.clock.State()
		c.clock.Restart()
		c.seq.Restart()
		to = c.clock.State()
	})
	if to != from {
		c.sendEvent(Event{Kind: EventState, State: to})
	}
}

// SetTempo clamps to [0, MaxBPM] and applies immediately; subsequent notes
// stretch or compress their duration by the tempo ratio.
func (c *Conductor) SetTempo(bpm float64) {
	c.withRender(func() { c.ctrl.SetTempo(bpm) })
}

// Tempo returns the current clock tempo.
func (c *Conductor) Tempo() float64 {
	var bpm float64
	c.withRender(func() { bpm = c.clock.BPM() })
	return bpm
}

// SetVelocity stores the live velocity; it is clamped to the configured
// bounds when each note fires, not here.
func (c *Conductor) SetVelocity(v float64) {
	c.withRender(func() { c.ctrl.SetVelocity(v) })
}

// Velocity returns the raw stored velocity.
func (c *Conductor) Velocity() float64 {
	var v float64
	c.withRender(func() { v = c.ctrl.Velocity() })
	return v
}

// SetZone replaces the active instrument set from the song's zone table.
// Gated tracks stay scheduled; their notes stop sounding and animating
// until their zone returns.
func (c *Conductor) SetZone(index int) {
	c.withRender(func() { c.ctrl.SetZone(c.song, index) })
}

// ActivateAll returns to the everyone-plays default.
func (c *Conductor) ActivateAll() {
	c.withRender(func() { c.ctrl.ActivateAll() })
}

// InstrumentActive reports whether the named instrument is in the current
// active set. True for everything before a zone is selected.
func (c *Conductor) InstrumentActive(id string) bool {
	active := true
	c.withRender(func() { active = c.ctrl.Active(id) })
	return active
}

// Limits returns the control bounds the conductor was built with.
func (c *Conductor) Limits() inttrans.Limits {
	l := c.cfg.limits
	c.withRender(func() { l = c.ctrl.Limits() })
	return l
}

// SetMasterVolume scales the bus input. 1.0 is unity.
func (c *Conductor) SetMasterVolume(volume float64) {
	c.withRender(func() { c.bus.SetMasterGain(volume) })
}

func (c *Conductor) MasterVolume() float64 {
	v := c.cfg.volume
	c.withRender(func() { v = c.bus.MasterGain() })
	return v
}

// SetToneBand sets the gain for a master tone band. 1.0 = unity.
// This takes effect immediately on the audio thread (lock-free).
func (c *Conductor) SetToneBand(band int, gain float32) {
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	if bus != nil {
		bus.SetToneBand(band, gain)
	}
}

// ToneBand returns the current gain for a master tone band.
func (c *Conductor) ToneBand(band int) float32 {
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	if bus == nil {
		return 1
	}
	return bus.ToneBand(band)
}

// State reports the transport lifecycle state.
func (c *Conductor) State() inttrans.State {
	s := inttrans.StateIdle
	c.withRender(func() { s = c.clock.State() })
	return s
}

// Position is the current song position in beats.
func (c *Conductor) Position() float64 {
	var b float64
	c.withRender(func() { b = c.clock.Position() })
	return b
}

// Measure is the zero-based measure index at the current position.
func (c *Conductor) Measure() int {
	var m int
	c.withRender(func() { m = c.clock.Measure() })
	return m
}

// ElapsedBeats counts beats advanced since the last restart.
func (c *Conductor) ElapsedBeats() float64 {
	var b float64
	c.withRender(func() { b = c.clock.ElapsedBeats() })
	return b
}

// PlaybackPosition returns the current output position of the audio
// driver, i.e. what the listener actually hears right now. Zero when no
// output is open.
func (c *Conductor) PlaybackPosition() time.Duration {
	c.mu.Lock()
	a := c.audio
	c.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.Position()
}

// LoadStates reports each track's load outcome in track order, valid after
// LoadInstruments.
func (c *Conductor) LoadStates() []intinst.LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]intinst.LoadState, len(c.states))
	copy(out, c.states)
	return out
}

// Instruments exposes the bound instruments in track order, valid after
// LoadInstruments.
func (c *Conductor) Instruments() []intinst.Instrument {
	c.mu.Lock()
	seq := c.seq
	c.mu.Unlock()
	if seq == nil {
		return nil
	}
	return seq.Instruments()
}

// Watch returns a channel that receives loading and playback events:
//   - EventLoading: instrument load progress (Percent set)
//   - EventProgress: a note fired (Percent, Measure set)
//   - EventTrigger: animation mirror of a gated-in note (Instrument, Duration, Velocity set)
//   - EventState: the transport changed lifecycle state (State set)
//   - EventLooped: a whole-song loop iteration finished (when looping)
//   - EventFinished: playback finished (when not looping)
//
// The channel is buffered (cap 16); receive in a goroutine to avoid losing
// events. Only the most recent Watch channel receives events; call Watch
// before LoadInstruments to see load progress.
func (c *Conductor) Watch() <-chan Event {
	ch := make(chan Event, 16)
	c.eventChMu.Lock()
	c.eventCh = ch
	c.eventChMu.Unlock()
	return ch
}

func (c *Conductor) sendEvent(ev Event) {
	c.eventChMu.Lock()
	ch := c.eventCh
	c.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (c *Conductor) signalDone() {
	c.mu.Lock()
	done := c.done
	c.done = nil
	c.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Wait blocks until non-looping playback finishes or the context ends.
// With looping enabled it blocks until the context ends. Returns
// immediately when playback already finished or was closed.
func (c *Conductor) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the audio output and releases waiters. The Conductor is
// not reusable after Close.
func (c *Conductor) Close() error {
	c.mu.Lock()
	a := c.audio
	c.audio = nil
	c.stream = nil
	c.mu.Unlock()
	c.signalDone()
	if a == nil {
		return nil
	}
	return a.Stop()
}
