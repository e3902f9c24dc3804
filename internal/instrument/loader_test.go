package instrument

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/khiraoka/podium-go/internal/samplebank"
	"github.com/khiraoka/podium-go/internal/song"
)

// wavBytes builds a playable 16-bit stereo PCM file holding a short sine.
func wavBytes(t *testing.T, rate, frames int) []byte {
	t.Helper()
	var pcm bytes.Buffer
	for i := 0; i < frames; i++ {
		v := int16(math.Sin(2*math.Pi*220*float64(i)/float64(rate)) * 12000)
		binary.Write(&pcm, binary.LittleEndian, v)
		binary.Write(&pcm, binary.LittleEndian, v)
	}
	data := pcm.Bytes()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*4))
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

func loaderSong(instruments ...string) *song.Song {
	s := &song.Song{
		Header: song.Header{
			Title:         "test",
			BPM:           120,
			TimeSignature: song.TimeSignature{Beats: 4, Unit: 4},
		},
	}
	for _, name := range instruments {
		s.Tracks = append(s.Tracks, song.Track{Instrument: name})
	}
	return s
}

type progressLog struct {
	mu sync.Mutex
	v  []float64
}

func (p *progressLog) add(x float64) {
	p.mu.Lock()
	p.v = append(p.v, x)
	p.mu.Unlock()
}

func (p *progressLog) values() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.v...)
}

// await polls until n reports arrived. Load returns once the last track
// completes; callbacks from the other tracks may still be in flight.
func (p *progressLog) await(n int) []float64 {
	deadline := time.Now().Add(time.Second)
	for {
		got := p.values()
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoaderBindsSampledFromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "c4.wav"), wavBytes(t, testRate, 256), 0o644); err != nil {
		t.Fatal(err)
	}
	bank := &samplebank.Bank{
		BasePath: dir,
		Instruments: map[string]samplebank.Instrument{
			"violin": {Samples: map[string]string{"C4": "c4.wav"}},
		},
	}
	var progress progressLog
	ld := NewLoader(loaderSong("violin"), bank, LoaderOptions{
		SampleRate: testRate,
		OnProgress: progress.add,
	})
	insts, err := ld.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(insts) != 1 {
		t.Fatalf("Load() returned %d instruments, want 1", len(insts))
	}
	if insts[0].Kind() != KindSampled {
		t.Fatalf("instrument kind = %v, want %v", insts[0].Kind(), KindSampled)
	}
	if states := ld.States(); states[0] != LoadLoaded {
		t.Fatalf("track state = %v, want %v", states[0], LoadLoaded)
	}
	got := progress.values()
	if len(got) == 0 || got[len(got)-1] != 100 {
		t.Fatalf("progress = %v, want final value 100", got)
	}
}

func TestLoaderFallsBackToSynthOnMissingFile(t *testing.T) {
	bank := &samplebank.Bank{
		BasePath: t.TempDir(),
		Instruments: map[string]samplebank.Instrument{
			"violin": {Samples: map[string]string{"C4": "nope.wav"}},
		},
	}
	ld := NewLoader(loaderSong("violin"), bank, LoaderOptions{SampleRate: testRate})
	insts, err := ld.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if insts[0].Kind() != KindSynth {
		t.Fatalf("instrument kind = %v, want synth fallback", insts[0].Kind())
	}
	if states := ld.States(); states[0] != LoadLoaded {
		t.Fatalf("track state = %v, want %v (fallback still counts as loaded)", states[0], LoadLoaded)
	}
}

func TestLoaderUnknownInstrumentFallsBack(t *testing.T) {
	bank := &samplebank.Bank{Instruments: map[string]samplebank.Instrument{}}
	ld := NewLoader(loaderSong("theremin"), bank, LoaderOptions{SampleRate: testRate})
	insts, err := ld.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if insts[0].Kind() != KindSynth {
		t.Fatalf("instrument kind = %v, want synth fallback", insts[0].Kind())
	}
}

func TestLoaderBadSoundFontFallsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.sf2"), []byte("not a soundfont"), 0o644); err != nil {
		t.Fatal(err)
	}
	bank := &samplebank.Bank{
		BasePath: dir,
		Instruments: map[string]samplebank.Instrument{
			"piano": {SoundFont: &samplebank.SoundFontRef{File: "broken.sf2", Program: 0}},
		},
	}
	ld := NewLoader(loaderSong("piano"), bank, LoaderOptions{SampleRate: testRate})
	insts, err := ld.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if insts[0].Kind() != KindSynth {
		t.Fatalf("instrument kind = %v, want synth fallback", insts[0].Kind())
	}
}

func TestLoaderTrackTimeoutForcesSynth(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()
	defer close(release)

	bank := &samplebank.Bank{
		BasePath: ts.URL,
		Instruments: map[string]samplebank.Instrument{
			"violin": {Samples: map[string]string{"C4": "c4.wav"}},
		},
	}
	var progress progressLog
	ld := NewLoader(loaderSong("violin"), bank, LoaderOptions{
		SampleRate:     testRate,
		TrackTimeout:   40 * time.Millisecond,
		StartupTimeout: 5 * time.Second,
		OnProgress:     progress.add,
	})
	insts, err := ld.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if insts[0].Kind() != KindSynth {
		t.Fatalf("instrument kind = %v, want synth after timeout", insts[0].Kind())
	}
	if states := ld.States(); states[0] != LoadTimedOut {
		t.Fatalf("track state = %v, want %v", states[0], LoadTimedOut)
	}
}

func TestLoaderTimedOutTrackCompletesOnce(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	bank := &samplebank.Bank{
		BasePath: ts.URL,
		Instruments: map[string]samplebank.Instrument{
			"violin": {Samples: map[string]string{"C4": "c4.wav"}},
		},
	}
	var progress progressLog
	ld := NewLoader(loaderSong("violin"), bank, LoaderOptions{
		SampleRate:     testRate,
		TrackTimeout:   30 * time.Millisecond,
		StartupTimeout: 5 * time.Second,
		OnProgress:     progress.add,
	})
	if _, err := ld.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// let the stalled fetch finish after the timeout already won
	close(release)
	time.Sleep(100 * time.Millisecond)

	if got := progress.values(); len(got) != 1 || got[0] != 100 {
		t.Fatalf("progress = %v, want exactly one report of 100", got)
	}
	if states := ld.States(); states[0] != LoadTimedOut {
		t.Fatalf("track state = %v, want %v after late completion", states[0], LoadTimedOut)
	}
}

func TestLoaderStartupDeadlineForcesAll(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()
	defer close(release)

	bank := &samplebank.Bank{
		BasePath: ts.URL,
		Instruments: map[string]samplebank.Instrument{
			"violin": {Samples: map[string]string{"C4": "c4.wav"}},
			"cello":  {Samples: map[string]string{"C3": "c3.wav"}},
		},
	}
	var progress progressLog
	ld := NewLoader(loaderSong("violin", "cello"), bank, LoaderOptions{
		SampleRate:     testRate,
		TrackTimeout:   5 * time.Second,
		StartupTimeout: 50 * time.Millisecond,
		OnProgress:     progress.add,
	})
	start := time.Now()
	insts, err := ld.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Load() took %v, want return at the startup deadline", elapsed)
	}
	for i, inst := range insts {
		if inst.Kind() != KindSynth {
			t.Fatalf("track %d kind = %v, want synth", i, inst.Kind())
		}
	}
	for i, s := range ld.States() {
		if s != LoadTimedOut {
			t.Fatalf("track %d state = %v, want %v", i, s, LoadTimedOut)
		}
	}
	got := progress.await(2)
	sort.Float64s(got)
	if len(got) != 2 || got[1] != 100 {
		t.Fatalf("progress = %v, want both tracks reported with final 100", got)
	}
}

func TestLoaderProgressPercents(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "c4.wav"), wavBytes(t, testRate, 256), 0o644); err != nil {
		t.Fatal(err)
	}
	bank := &samplebank.Bank{
		BasePath: dir,
		Instruments: map[string]samplebank.Instrument{
			"violin": {Samples: map[string]string{"C4": "c4.wav"}},
		},
	}
	var progress progressLog
	ld := NewLoader(loaderSong("violin", "kazoo"), bank, LoaderOptions{
		SampleRate: testRate,
		OnProgress: progress.add,
	})
	if _, err := ld.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := progress.await(2)
	sort.Float64s(got)
	if len(got) != 2 || got[0] != 50 || got[1] != 100 {
		t.Fatalf("progress = %v, want [50 100]", got)
	}
}

func TestLoaderSeatsSpreadAcrossStage(t *testing.T) {
	ld := NewLoader(loaderSong("a", "b", "c"), nil, LoaderOptions{SampleRate: testRate})
	left, mid, right := ld.seat(0), ld.seat(1), ld.seat(2)
	if !(left < mid && mid < right) {
		t.Fatalf("seats not ordered: %f %f %f", left, mid, right)
	}
	if mid != 0 {
		t.Fatalf("middle seat = %f, want center", mid)
	}
}
