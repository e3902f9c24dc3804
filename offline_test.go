package podium

import (
	"context"
	"encoding/binary"
	"testing"
)

func TestRenderSongProducesNormalizedAudio(t *testing.T) {
	out, err := RenderSong(context.Background(), testSong(), WithSampleRate(8000))
	if err != nil {
		t.Fatalf("RenderSong() error = %v", err)
	}
	if len(out) == 0 || len(out)%2 != 0 {
		t.Fatalf("render length = %d, want nonzero stereo frames", len(out))
	}
	var peak float32
	for _, s := range out {
		if s > peak {
			peak = s
		}
		if -s > peak {
			peak = -s
		}
	}
	if peak < 0.9 || peak > 0.96 {
		t.Fatalf("peak = %v, want normalized close to 0.95", peak)
	}
}

func TestRenderSongHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RenderSong(ctx, testSong(), WithSampleRate(8000)); err == nil {
		t.Fatal("canceled context should abort the render")
	}
}

func TestEncodeWAVFloat32Header(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1}
	data := EncodeWAVFloat32LE(samples, 8000, 2)
	if len(data) != 44+len(samples)*4 {
		t.Fatalf("encoded length = %d, want %d", len(data), 44+len(samples)*4)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE tags")
	}
	if format := binary.LittleEndian.Uint16(data[20:]); format != 3 {
		t.Fatalf("format code = %d, want 3 (IEEE float)", format)
	}
	if bits := binary.LittleEndian.Uint16(data[34:]); bits != 32 {
		t.Fatalf("bits per sample = %d, want 32", bits)
	}
	if size := binary.LittleEndian.Uint32(data[40:]); size != uint32(len(samples)*4) {
		t.Fatalf("data size = %d, want %d", size, len(samples)*4)
	}
}

func TestEncodeWAV16Header(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 2}
	data := EncodeWAV16LE(samples, 8000, 2)
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("encoded length = %d, want %d", len(data), 44+len(samples)*2)
	}
	if format := binary.LittleEndian.Uint16(data[20:]); format != 1 {
		t.Fatalf("format code = %d, want 1 (PCM)", format)
	}
	if bits := binary.LittleEndian.Uint16(data[34:]); bits != 16 {
		t.Fatalf("bits per sample = %d, want 16", bits)
	}
	// Overdriven input clips to full scale instead of wrapping.
	last := int16(binary.LittleEndian.Uint16(data[44+3*2:]))
	if last != 32767 {
		t.Fatalf("clipped sample = %d, want 32767", last)
	}
}
