package song

import (
	"math"
	"path/filepath"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func writeTestSMF(t *testing.T) string {
	t.Helper()
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(960)

	var track0 smf.Track
	track0.Add(0, smf.MetaMeter(3, 4))
	track0.Add(0, smf.MetaTempo(90))
	track0.Close(0)
	if err := sm.Add(track0); err != nil {
		t.Fatal(err)
	}

	var track1 smf.Track
	track1.Add(0, smf.MetaTrackSequenceName("violin"))
	track1.Add(0, midi.NoteOn(0, 60, 100))
	track1.Add(960, midi.NoteOff(0, 60))
	track1.Add(0, midi.NoteOn(0, 64, 80))
	track1.Add(480, midi.NoteOff(0, 64))
	track1.Close(0)
	if err := sm.Add(track1); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "test.mid")
	if err := sm.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSMF(t *testing.T) {
	s, err := LoadSMF(writeTestSMF(t))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if s.Header.BPM != 90 {
		t.Errorf("bpm = %v, want 90", s.Header.BPM)
	}
	if s.Header.TimeSignature != (TimeSignature{Beats: 3, Unit: 4}) {
		t.Errorf("time signature = %+v, want 3/4", s.Header.TimeSignature)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("expected 1 note track, got %d", len(s.Tracks))
	}
	tr := s.Tracks[0]
	if tr.Instrument != "violin" {
		t.Errorf("instrument = %q, want violin", tr.Instrument)
	}
	if len(tr.Notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(tr.Notes))
	}
	first := tr.Notes[0]
	if first.Pitch.String() != "C4" {
		t.Errorf("first pitch = %s, want C4", first.Pitch)
	}
	// one quarter note at 90 bpm lasts 2/3 of a second
	if math.Abs(first.Duration-60.0/90.0) > 1e-9 {
		t.Errorf("first duration = %v, want %v", first.Duration, 60.0/90.0)
	}
	second := tr.Notes[1]
	if second.Pitch.String() != "E4" {
		t.Errorf("second pitch = %s, want E4", second.Pitch)
	}
	if second.Position.Beats(s.Header.TimeSignature) != 1.0 {
		t.Errorf("second note at %v beats, want 1", second.Position.Beats(s.Header.TimeSignature))
	}
}

func TestLoadSMFMissingFile(t *testing.T) {
	if _, err := LoadSMF(filepath.Join(t.TempDir(), "nope.mid")); err == nil {
		t.Fatal("missing file should fail")
	}
}
