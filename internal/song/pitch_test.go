package song

import "testing"

func TestParsePitchCanonicalizesFlats(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"C4", "C4"},
		{"c4", "C4"},
		{"Db4", "C#4"},
		{"db4", "C#4"},
		{"Eb3", "D#3"},
		{"Bb2", "A#2"},
		{"Cb4", "B3"},
		{"E#4", "F4"},
		{"F#2", "F#2"},
		{"Gs5", "G#5"},
		{"A0", "A0"},
	}
	for _, c := range cases {
		p, err := ParsePitch(c.in)
		if err != nil {
			t.Fatalf("ParsePitch(%q) failed: %v", c.in, err)
		}
		if p.String() != c.want {
			t.Errorf("ParsePitch(%q) = %s, want %s", c.in, p, c.want)
		}
	}
}

func TestParsePitchRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "C", "H4", "C#", "C##x", "C99", "4C"} {
		if _, err := ParsePitch(in); err == nil {
			t.Errorf("ParsePitch(%q) should have failed", in)
		}
	}
}

func TestPitchMidiNumbers(t *testing.T) {
	if p := MustPitch("C4"); int(p) != 60 {
		t.Fatalf("C4 = %d, want 60", int(p))
	}
	if p := MustPitch("A4"); int(p) != 69 {
		t.Fatalf("A4 = %d, want 69", int(p))
	}
	if p := MustPitch("C-1"); int(p) != 0 {
		t.Fatalf("C-1 = %d, want 0", int(p))
	}
}

func TestPitchFrequency(t *testing.T) {
	f := MustPitch("A4").Frequency()
	if f < 439.99 || f > 440.01 {
		t.Fatalf("A4 frequency = %v, want 440", f)
	}
	f = MustPitch("A3").Frequency()
	if f < 219.99 || f > 220.01 {
		t.Fatalf("A3 frequency = %v, want 220", f)
	}
}

func TestPitchTransposeClamps(t *testing.T) {
	if p := MustPitch("C4").Transpose(12); p.String() != "C5" {
		t.Errorf("C4 +12 = %s, want C5", p)
	}
	if p := Pitch(126).Transpose(12); int(p) != 127 {
		t.Errorf("126 +12 = %d, want clamp to 127", int(p))
	}
	if p := Pitch(1).Transpose(-12); int(p) != 0 {
		t.Errorf("1 -12 = %d, want clamp to 0", int(p))
	}
}
