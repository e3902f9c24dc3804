package instrument

import (
	"math"
	"testing"
	"time"

	"github.com/khiraoka/podium-go/internal/song"
)

const testRate = 8000

func TestSynthTriggerProducesSound(t *testing.T) {
	s := NewSynth("violin", testRate, 0)
	if err := s.Trigger(song.MustPitch("A4"), 200*time.Millisecond, 0, 0.9); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if got := s.ActiveVoices(); got != 1 {
		t.Fatalf("ActiveVoices() = %d, want 1", got)
	}
	var peak float64
	for i := 0; i < testRate/4; i++ {
		l, r := s.RenderFrame()
		if v := math.Abs(float64(l)) + math.Abs(float64(r)); v > peak {
			peak = v
		}
	}
	if peak == 0 {
		t.Fatal("rendered silence for an active voice")
	}
}

func TestSynthVoiceReleasesAfterGate(t *testing.T) {
	s := NewSynth("flute", testRate, 0)
	if err := s.Trigger(song.MustPitch("C5"), 50*time.Millisecond, 0, 1); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	// gate 50ms plus 150ms release, with slack
	for i := 0; i < testRate/2; i++ {
		s.RenderFrame()
	}
	if got := s.ActiveVoices(); got != 0 {
		t.Fatalf("ActiveVoices() after gate+release = %d, want 0", got)
	}
}

func TestSynthVoiceStealingCapsPolyphony(t *testing.T) {
	s := NewSynth("cello", testRate, 0)
	for i := 0; i < synthVoiceCount*2; i++ {
		if err := s.Trigger(song.Pitch(40+i), time.Second, 0, 0.8); err != nil {
			t.Fatalf("Trigger(%d) error = %v", i, err)
		}
		s.RenderFrame()
	}
	if got := s.ActiveVoices(); got > synthVoiceCount {
		t.Fatalf("ActiveVoices() = %d, want at most %d", got, synthVoiceCount)
	}
}

func TestSynthSilenceStopsAllVoices(t *testing.T) {
	s := NewSynth("trumpet", testRate, 0)
	for i := 0; i < 3; i++ {
		s.Trigger(song.Pitch(60+i), time.Second, 0, 1)
	}
	s.Silence()
	if got := s.ActiveVoices(); got != 0 {
		t.Fatalf("ActiveVoices() after Silence() = %d, want 0", got)
	}
}

func TestSynthPanSeatsLeft(t *testing.T) {
	s := NewSynth("violin", testRate, -1)
	s.Trigger(song.MustPitch("A4"), 500*time.Millisecond, 0, 1)
	var sumL, sumR float64
	for i := 0; i < testRate/8; i++ {
		l, r := s.RenderFrame()
		sumL += math.Abs(float64(l))
		sumR += math.Abs(float64(r))
	}
	if sumL == 0 {
		t.Fatal("hard-left voice rendered no left signal")
	}
	if sumR > sumL/100 {
		t.Fatalf("hard-left voice leaked right: L=%f R=%f", sumL, sumR)
	}
}

func TestWaveForFamily(t *testing.T) {
	tests := []struct {
		id   string
		want synthWave
	}{
		{"violin", waveSaw},
		{"contrabass", waveSaw},
		{"trumpet", wavePulse},
		{"french-horn", wavePulse},
		{"timpani", waveNoise},
		{"flute", waveTriangle},
		{"oboe", waveTriangle},
		{"bassoon", waveTriangle},
		{"bass clarinet", waveTriangle},
	}
	for _, tt := range tests {
		if got := waveForFamily(tt.id); got != tt.want {
			t.Errorf("waveForFamily(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
