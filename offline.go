package podium

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/viterin/vek/vek32"

	intfx "github.com/khiraoka/podium-go/internal/effects"
	intinst "github.com/khiraoka/podium-go/internal/instrument"
	intsong "github.com/khiraoka/podium-go/internal/song"
	inttrans "github.com/khiraoka/podium-go/internal/transport"
)

// offlineChunkFrames is the render granularity; small enough that the
// progress callbacks land close to their notes.
const offlineChunkFrames = 2048

// RenderSong plays the whole song through the engine faster than real time
// and returns interleaved stereo float32 frames, peak-normalized to leave
// a little headroom. Looping is ignored: the render covers exactly one
// pass. Options are the same as NewConductor's; progress and trigger
// callbacks fire as the render passes each note.
func RenderSong(ctx context.Context, s *intsong.Song, opts ...Option) ([]float32, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.loop = false
	if err := s.Normalize(); err != nil {
		return nil, err
	}

	loader := intinst.NewLoader(s, cfg.bank, intinst.LoaderOptions{
		SampleRate:     cfg.sampleRate,
		SoundFont:      cfg.soundFont,
		TrackTimeout:   cfg.trackTimeout,
		StartupTimeout: cfg.startupTimeout,
		OnProgress:     cfg.onLoaded,
	})
	instruments, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	bus := intfx.NewOrchestraBus(cfg.sampleRate, cfg.ensemble)
	bus.SetMasterGain(cfg.volume)
	clock := inttrans.NewClock(cfg.sampleRate, s.Header, s.StartOffset)
	ctrl := inttrans.NewControl(clock, cfg.limits)
	seq := inttrans.New(s, instruments, clock, ctrl, bus.Chain, inttrans.Options{
		OnProgress: cfg.onProgress,
		OnTrigger:  cfg.onTrigger,
	})
	clock.Start()

	// Hard cap: one nominal pass plus generous room for held notes and the
	// reverb tail, in case an instrument never reports its voices idle.
	maxFrames := int(float64(cfg.sampleRate) * (60*s.TotalBeats()/s.Header.BPM + 30))
	out := make([]float32, 0, offlineChunkFrames*2*8)
	chunk := make([]float32, offlineChunkFrames*2)
	for frames := 0; !seq.Finished() && frames < maxFrames; frames += offlineChunkFrames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq.Process(chunk)
		out = append(out, chunk...)
	}

	normalize(out, 0.95)
	return out, nil
}

// normalize scales the buffer so its peak hits target. Quiet renders come
// up, hot ones come down; silence is left alone.
func normalize(samples []float32, target float32) {
	if len(samples) == 0 {
		return
	}
	scratch := make([]float32, len(samples))
	copy(scratch, samples)
	vek32.Abs_Inplace(scratch)
	peak := vek32.Max(scratch)
	if peak <= 0 {
		return
	}
	vek32.MulNumber_Inplace(samples, target/peak)
}

// EncodeWAVFloat32LE wraps interleaved float32 samples in a WAVE container
// (format 3, IEEE float).
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}

// EncodeWAV16LE wraps interleaved float32 samples in a 16-bit PCM WAVE
// container, the format most editors and browsers expect.
func EncodeWAV16LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		v := s
		if v > 1 {
			v = 1
		}
		if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(int16(v*32767)))
	}
	return out
}
