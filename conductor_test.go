package podium

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	intinst "github.com/khiraoka/podium-go/internal/instrument"
	intsong "github.com/khiraoka/podium-go/internal/song"
	inttrans "github.com/khiraoka/podium-go/internal/transport"
)

func testSong() *intsong.Song {
	return &intsong.Song{
		Header: intsong.Header{Title: "test", BPM: 120},
		Tracks: []intsong.Track{
			{Instrument: "violin", Notes: []intsong.Note{
				{Pitch: intsong.MustPitch("A4"), Duration: 0.5},
				{Pitch: intsong.MustPitch("C5"), Duration: 0.5, Position: intsong.Position{Beat: 2}},
			}},
			{Instrument: "cello", Notes: []intsong.Note{
				{Pitch: intsong.MustPitch("A2"), Duration: 1, Position: intsong.Position{Beat: 1}},
			}},
		},
		Zones: []intsong.Zone{
			{Name: "strings", Instruments: []string{"violin", "cello"}},
			{Name: "solo", Instruments: []string{"violin"}},
		},
	}
}

func loadedConductor(t *testing.T, opts ...Option) *Conductor {
	t.Helper()
	c, err := NewConductor(testSong(), opts...)
	if err != nil {
		t.Fatalf("new conductor: %v", err)
	}
	if err := c.LoadInstruments(context.Background()); err != nil {
		t.Fatalf("load instruments: %v", err)
	}
	return c
}

func TestConductorRejectsInvalidSong(t *testing.T) {
	if _, err := NewConductor(nil); err == nil {
		t.Fatal("nil song accepted")
	}
	bad := &intsong.Song{
		Header: intsong.Header{Title: "no tempo"},
		Tracks: []intsong.Track{{Instrument: "violin"}},
	}
	if _, err := NewConductor(bad); err == nil {
		t.Fatal("song without tempo accepted")
	}
}

func TestConductorRequiresLoadBeforeStart(t *testing.T) {
	c, err := NewConductor(testSong())
	if err != nil {
		t.Fatalf("new conductor: %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatal("start before load should fail")
	}
	// Control calls before load are safe no-ops.
	c.SetTempo(90)
	c.Stop()
	c.Restart()
	if got := c.State(); got != inttrans.StateIdle {
		t.Fatalf("state before load = %v, want idle", got)
	}
	if got := c.Tempo(); got != 0 {
		t.Fatalf("tempo before load = %v, want 0", got)
	}
}

func TestConductorLoadBindsEveryTrack(t *testing.T) {
	c := loadedConductor(t)
	states := c.LoadStates()
	if len(states) != 2 {
		t.Fatalf("load states = %d, want 2", len(states))
	}
	for i, st := range states {
		if st != intinst.LoadLoaded {
			t.Fatalf("track %d state = %v, want %v", i, st, intinst.LoadLoaded)
		}
	}
	insts := c.Instruments()
	if len(insts) != 2 {
		t.Fatalf("instruments = %d, want 2", len(insts))
	}
	if insts[0].ID() != "violin" || insts[1].ID() != "cello" {
		t.Fatalf("instrument ids = %q, %q", insts[0].ID(), insts[1].ID())
	}
}

func TestConductorTempoClampAndDefaults(t *testing.T) {
	c := loadedConductor(t)
	if got := c.Tempo(); got != 120 {
		t.Fatalf("initial tempo = %v, want 120", got)
	}
	c.SetTempo(90)
	if got := c.Tempo(); got != 90 {
		t.Fatalf("tempo = %v, want 90", got)
	}
	c.SetTempo(10000)
	if got := c.Tempo(); got != inttrans.DefaultLimits().MaxBPM {
		t.Fatalf("tempo = %v, want clamp to %v", got, inttrans.DefaultLimits().MaxBPM)
	}
	c.SetTempo(-5)
	if got := c.Tempo(); got != 0 {
		t.Fatalf("tempo = %v, want clamp to 0", got)
	}
}

func TestConductorVelocityStoredRaw(t *testing.T) {
	c := loadedConductor(t)
	if got := c.Velocity(); got != 1 {
		t.Fatalf("default velocity = %v, want 1", got)
	}
	c.SetVelocity(2.5)
	if got := c.Velocity(); got != 2.5 {
		t.Fatalf("velocity = %v, want raw 2.5", got)
	}
	c.SetVelocity(-1)
	if got := c.Velocity(); got != -1 {
		t.Fatalf("velocity = %v, want raw -1", got)
	}
}

func TestConductorMasterVolumeRuntimeAPI(t *testing.T) {
	c := loadedConductor(t)
	if got := c.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	c.SetMasterVolume(0.25)
	if got := c.MasterVolume(); got != 0.25 {
		t.Fatalf("master volume = %v, want 0.25", got)
	}
	c.SetMasterVolume(-2)
	if got := c.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
}

func TestConductorToneBandRuntimeAPI(t *testing.T) {
	c := loadedConductor(t)
	if got := c.ToneBand(2); got != 1 {
		t.Fatalf("default tone band = %v, want 1", got)
	}
	c.SetToneBand(2, 1.5)
	if got := c.ToneBand(2); got != 1.5 {
		t.Fatalf("tone band = %v, want 1.5", got)
	}
}

func TestConductorLoadEventsReachWatch(t *testing.T) {
	c, err := NewConductor(testSong())
	if err != nil {
		t.Fatalf("new conductor: %v", err)
	}
	events := c.Watch()
	if err := c.LoadInstruments(context.Background()); err != nil {
		t.Fatalf("load instruments: %v", err)
	}
	var percents []float64
	deadline := time.After(time.Second)
	for len(percents) < 2 {
		select {
		case ev := <-events:
			if ev.Kind == EventLoading {
				percents = append(percents, ev.Percent)
			}
		case <-deadline:
			t.Fatalf("loading events = %v, want two before the deadline", percents)
		}
	}
	sort.Float64s(percents)
	if percents[0] != 50 || percents[1] != 100 {
		t.Fatalf("loading percents = %v, want [50 100]", percents)
	}
}

func TestConductorLoadCallback(t *testing.T) {
	var mu sync.Mutex
	var got []float64
	c, err := NewConductor(testSong(), OnInstrumentsLoaded(func(p float64) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("new conductor: %v", err)
	}
	if err := c.LoadInstruments(context.Background()); err != nil {
		t.Fatalf("load instruments: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	sort.Float64s(got)
	if len(got) != 2 || got[0] != 50 || got[1] != 100 {
		t.Fatalf("progress callbacks = %v, want [50 100]", got)
	}
}

func TestConductorCloseReleasesWait(t *testing.T) {
	c := loadedConductor(t)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("wait after close: %v", err)
	}
}

func TestConductorWaitHonorsContext(t *testing.T) {
	c := loadedConductor(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); err == nil {
		t.Fatal("wait should fail when the context ends first")
	}
}
