package instrument

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/khiraoka/podium-go/internal/samplebank"
	"github.com/khiraoka/podium-go/internal/song"
)

// LoadState tags one track's load progress. A track moves out of
// LoadPending exactly once, to Loaded or TimedOut, whichever happens first;
// the late arrival is discarded.
type LoadState int

const (
	LoadPending LoadState = iota
	LoadLoaded
	LoadTimedOut
)

func (s LoadState) String() string {
	switch s {
	case LoadLoaded:
		return "loaded"
	case LoadTimedOut:
		return "timed-out"
	default:
		return "pending"
	}
}

type LoaderOptions struct {
	SampleRate     int
	SoundFont      string        // fallback .sf2 for tracks the bank does not cover
	TrackTimeout   time.Duration // per-track deadline before force-completion
	StartupTimeout time.Duration // global deadline when nothing has loaded
	OnProgress     func(percent float64)
}

const (
	DefaultTrackTimeout   = 10 * time.Second
	DefaultStartupTimeout = 6 * time.Second
)

// Loader binds an instrument to every track of a song. Sample construction
// failures fall back to a synthesized voice and timeouts force-complete, so
// Load always delivers a full set.
type Loader struct {
	song *song.Song
	bank *samplebank.Bank
	opts LoaderOptions

	sfOnce sync.Once
	sfFont *meltysynth.SoundFont
	sfErr  error

	mu     sync.Mutex
	states []LoadState
	bound  []Instrument
	loaded int
	done   chan struct{}
}

func NewLoader(s *song.Song, bank *samplebank.Bank, opts LoaderOptions) *Loader {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.TrackTimeout <= 0 {
		opts.TrackTimeout = DefaultTrackTimeout
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	return &Loader{
		song:   s,
		bank:   bank,
		opts:   opts,
		states: make([]LoadState, len(s.Tracks)),
		bound:  make([]Instrument, len(s.Tracks)),
		done:   make(chan struct{}),
	}
}

// Load fetches, decodes, and binds every track, reporting progress as
// percent of tracks completed. It returns the instruments in track order
// and never fails outright; the error is reserved for a canceled context.
func (ld *Loader) Load(ctx context.Context) ([]Instrument, error) {
	total := len(ld.song.Tracks)
	if total == 0 {
		close(ld.done)
		return nil, nil
	}

	timers := make([]*time.Timer, total)
	for i := range ld.song.Tracks {
		i := i
		go func() {
			inst, err := ld.build(ctx, i)
			if err != nil {
				logger.Warn("instrument load failed, using synth fallback",
					"instrument", ld.song.Tracks[i].Instrument, "error", err)
				inst = ld.fallback(i)
			}
			ld.complete(i, inst, LoadLoaded)
		}()
		timers[i] = time.AfterFunc(ld.opts.TrackTimeout, func() {
			ld.complete(i, ld.fallback(i), LoadTimedOut)
		})
	}
	global := time.AfterFunc(ld.opts.StartupTimeout, ld.forceAll)
	defer global.Stop()
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	select {
	case <-ld.done:
		return ld.instruments(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete moves track i out of LoadPending exactly once. The loser of the
// race between real completion and a timeout is dropped on the floor.
func (ld *Loader) complete(i int, inst Instrument, state LoadState) {
	ld.mu.Lock()
	if ld.states[i] != LoadPending {
		ld.mu.Unlock()
		return
	}
	ld.states[i] = state
	ld.bound[i] = inst
	ld.loaded++
	percent := 100 * float64(ld.loaded) / float64(len(ld.states))
	finished := ld.loaded == len(ld.states)
	ld.mu.Unlock()

	if state == LoadTimedOut {
		logger.Warn("track load timed out, bound synth fallback",
			"instrument", ld.song.Tracks[i].Instrument)
	}
	if ld.opts.OnProgress != nil {
		ld.opts.OnProgress(percent)
	}
	if finished {
		close(ld.done)
	}
}

// forceAll fires on the startup deadline: if not a single track has loaded
// by then the assets are presumed unreachable and every pending track is
// force-completed so the caller is never stuck at zero.
func (ld *Loader) forceAll() {
	ld.mu.Lock()
	if ld.loaded > 0 {
		ld.mu.Unlock()
		return
	}
	pending := make([]int, 0, len(ld.states))
	for i, s := range ld.states {
		if s == LoadPending {
			pending = append(pending, i)
		}
	}
	ld.mu.Unlock()

	logger.Warn("no instruments loaded before startup deadline, forcing all to synth")
	for _, i := range pending {
		ld.complete(i, ld.fallback(i), LoadTimedOut)
	}
}

// States reports the per-track outcome, valid once Load has returned.
func (ld *Loader) States() []LoadState {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	out := make([]LoadState, len(ld.states))
	copy(out, ld.states)
	return out
}

func (ld *Loader) instruments() []Instrument {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	out := make([]Instrument, len(ld.bound))
	copy(out, ld.bound)
	return out
}

// seat spreads tracks across the stage left to right.
func (ld *Loader) seat(i int) float64 {
	n := len(ld.song.Tracks)
	if n <= 1 {
		return 0
	}
	return -0.8 + 1.6*float64(i)/float64(n-1)
}

func (ld *Loader) fallback(i int) Instrument {
	return NewSynth(ld.song.Tracks[i].Instrument, ld.opts.SampleRate, ld.seat(i))
}

// build constructs the real instrument for track i: a bank entry when the
// bank names it, else the shared fallback SoundFont when one is configured.
func (ld *Loader) build(ctx context.Context, i int) (Instrument, error) {
	name := ld.song.Tracks[i].Instrument
	if ld.bank != nil && ld.bank.Has(name) {
		return ld.buildFromBank(ctx, i, name)
	}
	if ld.opts.SoundFont != "" {
		sfnt, err := ld.defaultFont(ctx)
		if err != nil {
			return nil, err
		}
		return NewSoundFont(name, sfnt, ld.opts.SampleRate, 0, GMProgram(name))
	}
	if ld.bank == nil {
		return nil, fmt.Errorf("no sample bank configured")
	}
	return nil, fmt.Errorf("no source for instrument %q", name)
}

func (ld *Loader) buildFromBank(ctx context.Context, i int, name string) (Instrument, error) {
	src, err := ld.bank.Resolve(name)
	if err != nil {
		return nil, err
	}
	if src.SoundFont != nil {
		data, err := fetch(ctx, src.SoundFont.File)
		if err != nil {
			return nil, err
		}
		sfnt, err := ParseSoundFont(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("instrument %q: %w", name, err)
		}
		return NewSoundFont(name, sfnt, ld.opts.SampleRate, src.SoundFont.Bank, src.SoundFont.Program)
	}

	notes := make(map[song.Pitch][]float32, len(src.Notes))
	for _, ns := range src.Notes {
		data, err := fetch(ctx, ns.Location)
		if err != nil {
			logger.Warn("skipping sample", "instrument", name, "pitch", ns.Pitch.String(), "error", err)
			continue
		}
		pcm, err := decodeWAV(data, ld.opts.SampleRate)
		if err != nil {
			logger.Warn("skipping undecodable sample", "instrument", name, "pitch", ns.Pitch.String(), "error", err)
			continue
		}
		notes[ns.Pitch] = pcm
	}
	return NewSampled(name, ld.opts.SampleRate, notes, ld.seat(i))
}

// defaultFont fetches and parses the fallback SoundFont once; every track
// shares the parse, each with its own synthesizer.
func (ld *Loader) defaultFont(ctx context.Context) (*meltysynth.SoundFont, error) {
	ld.sfOnce.Do(func() {
		data, err := fetch(ctx, ld.opts.SoundFont)
		if err != nil {
			ld.sfErr = err
			return
		}
		ld.sfFont, ld.sfErr = ParseSoundFont(bytes.NewReader(data))
	})
	return ld.sfFont, ld.sfErr
}

// fetch reads a sample source: http(s) URLs over the network, anything else
// from disk.
func fetch(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching %s: %s", location, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(location)
}

// decodeWAV resamples to the engine rate and converts ebiten's 16-bit
// little-endian stereo output to interleaved float32.
func decodeWAV(data []byte, sampleRate int) ([]float32, error) {
	stream, err := wav.DecodeWithSampleRate(sampleRate, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("sample too short")
	}
	out := make([]float32, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		v := int16(raw[i]) | int16(raw[i+1])<<8
		out = append(out, float32(v)/32768)
	}
	return out, nil
}
