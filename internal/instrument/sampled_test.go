package instrument

import (
	"math"
	"testing"
	"time"

	"github.com/khiraoka/podium-go/internal/song"
)

// constantBuf builds an interleaved stereo buffer holding a constant value,
// enough to spot in the mix without caring about waveform shape.
func constantBuf(frames int, value float32) []float32 {
	buf := make([]float32, 2*frames)
	for i := range buf {
		buf[i] = value
	}
	return buf
}

func TestSampledPlaysExactNote(t *testing.T) {
	s, err := NewSampled("violin", testRate, map[song.Pitch][]float32{
		song.MustPitch("C4"): constantBuf(testRate, 0.5),
	}, 0)
	if err != nil {
		t.Fatalf("NewSampled() error = %v", err)
	}
	if err := s.Trigger(song.MustPitch("C4"), 100*time.Millisecond, 0, 1); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	l, r := s.RenderFrame()
	if l == 0 || r == 0 {
		t.Fatalf("RenderFrame() = (%f, %f), want nonzero on both channels", l, r)
	}
}

func TestSampledBorrowsNearestSample(t *testing.T) {
	s, err := NewSampled("cello", testRate, map[song.Pitch][]float32{
		song.MustPitch("C4"): constantBuf(testRate, 0.5),
		song.MustPitch("E4"): constantBuf(testRate, 0.5),
	}, 0)
	if err != nil {
		t.Fatalf("NewSampled() error = %v", err)
	}
	if err := s.Trigger(song.MustPitch("D4"), 100*time.Millisecond, 0, 1); err != nil {
		t.Fatalf("Trigger(D4) with C4/E4 samples error = %v", err)
	}
	if got := s.ActiveVoices(); got != 1 {
		t.Fatalf("ActiveVoices() = %d, want 1", got)
	}
}

func TestSampledRejectsDistantNote(t *testing.T) {
	s, err := NewSampled("violin", testRate, map[song.Pitch][]float32{
		song.MustPitch("C4"): constantBuf(100, 0.5),
	}, 0)
	if err != nil {
		t.Fatalf("NewSampled() error = %v", err)
	}
	if err := s.Trigger(song.MustPitch("G5"), 100*time.Millisecond, 0, 1); err == nil {
		t.Fatal("Trigger() far beyond the sampled range did not error")
	}
	if got := s.ActiveVoices(); got != 0 {
		t.Fatalf("ActiveVoices() after rejected trigger = %d, want 0", got)
	}
}

func TestSampledRequiresAtLeastOneSample(t *testing.T) {
	if _, err := NewSampled("empty", testRate, nil, 0); err == nil {
		t.Fatal("NewSampled() with no samples did not error")
	}
}

func TestSampledVoiceFadesOutAfterGate(t *testing.T) {
	s, err := NewSampled("violin", testRate, map[song.Pitch][]float32{
		song.MustPitch("C4"): constantBuf(testRate, 0.5),
	}, 0)
	if err != nil {
		t.Fatalf("NewSampled() error = %v", err)
	}
	if err := s.Trigger(song.MustPitch("C4"), 10*time.Millisecond, 0, 1); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	// 10ms gate plus 60ms fade, with slack
	for i := 0; i < testRate/4; i++ {
		s.RenderFrame()
	}
	if got := s.ActiveVoices(); got != 0 {
		t.Fatalf("ActiveVoices() after gate+fade = %d, want 0", got)
	}
	l, r := s.RenderFrame()
	if l != 0 || r != 0 {
		t.Fatalf("RenderFrame() after fade = (%f, %f), want silence", l, r)
	}
}

func TestSampledVoiceEndsAtBufferEnd(t *testing.T) {
	const frames = 64
	s, err := NewSampled("violin", testRate, map[song.Pitch][]float32{
		song.MustPitch("C4"): constantBuf(frames, 0.5),
	}, 0)
	if err != nil {
		t.Fatalf("NewSampled() error = %v", err)
	}
	if err := s.Trigger(song.MustPitch("C4"), time.Second, 0, 1); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	for i := 0; i < frames*2; i++ {
		s.RenderFrame()
	}
	if got := s.ActiveVoices(); got != 0 {
		t.Fatalf("ActiveVoices() past buffer end = %d, want 0", got)
	}
}

func TestSampledPanBalance(t *testing.T) {
	s, err := NewSampled("violin", testRate, map[song.Pitch][]float32{
		song.MustPitch("C4"): constantBuf(testRate, 0.5),
	}, 0.9)
	if err != nil {
		t.Fatalf("NewSampled() error = %v", err)
	}
	s.Trigger(song.MustPitch("C4"), 100*time.Millisecond, 0, 1)
	var sumL, sumR float64
	for i := 0; i < 200; i++ {
		l, r := s.RenderFrame()
		sumL += math.Abs(float64(l))
		sumR += math.Abs(float64(r))
	}
	if sumR <= sumL {
		t.Fatalf("right-seated track not louder on the right: L=%f R=%f", sumL, sumR)
	}
}
