package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/khiraoka/podium-go"
	"github.com/khiraoka/podium-go/internal/midictl"
)

// defaultSong keeps the binary playable with no arguments: a short canon
// over two string parts and a flute answer.
const defaultSong = `
header:
  title: Demo Canon
  bpm: 96
tracks:
  - instrument: violin
    notes:
      - { pitch: C4, duration: 0.4, at: "0:0" }
      - { pitch: E4, duration: 0.4, at: "0:1" }
      - { pitch: G4, duration: 0.4, at: "0:2" }
      - { pitch: C5, duration: 0.8, at: "0:3" }
      - { pitch: B4, duration: 0.4, at: "1:1" }
      - { pitch: G4, duration: 0.8, at: "1:2" }
  - instrument: cello
    notes:
      - { pitch: C3, duration: 0.8, at: "0:0" }
      - { pitch: G2, duration: 0.8, at: "0:2" }
      - { pitch: A2, duration: 0.8, at: "1:0" }
      - { pitch: G2, duration: 1.2, at: "1:2" }
  - instrument: flute
    notes:
      - { pitch: E5, duration: 0.3, at: "1:0", velocity: 0.7 }
      - { pitch: D5, duration: 0.3, at: "1:1", velocity: 0.7 }
      - { pitch: C5, duration: 0.9, at: "1:2" }
zones:
  - { name: tutti, instruments: [violin, cello, flute] }
  - { name: strings, instruments: [violin, cello] }
  - { name: solo, instruments: [flute] }
`

var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	var (
		songPath   = flag.String("song", "", "song document (.yaml/.json) or standard MIDI file (.mid)")
		bankPath   = flag.String("bank", "", "sample bank manifest; without it every part is synthesized")
		fontPath   = flag.String("soundfont", "", "fallback .sf2 for parts the bank does not cover")
		sampleRate = flag.Int("sample-rate", 44100, "engine sample rate")
		loop       = flag.Bool("loop", false, "loop playback; use with -loops to count then stop")
		loops      = flag.Int("loops", 3, "when -loop, stop after N loops (0 = loop forever)")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		ensemble   = flag.Bool("ensemble", false, "widen sections through the ensemble stage")
		tempo      = flag.Float64("tempo", 0, "override the starting tempo (0 = as authored)")
		outPath    = flag.String("out", "", "render to a WAV file instead of playing")
		floatWAV   = flag.Bool("float32", false, "with -out, write 32-bit float samples instead of 16-bit PCM")
		midiIn     = flag.Bool("midi", false, "take tempo/velocity/zone control from a MIDI device")
		midiPort   = flag.String("midi-port", "", "substring of the MIDI input port name (first port when empty)")
		debug      = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()
	initLogger(*debug)

	s, err := resolveSong(*songPath)
	if err != nil {
		log.Fatal(err)
	}

	opts := []podium.Option{
		podium.WithSampleRate(*sampleRate),
		podium.WithLoop(*loop),
		podium.WithMasterVolume(*volume),
		podium.WithEnsemble(*ensemble),
		podium.WithLogger(logger),
	}
	if *bankPath != "" {
		bank, err := podium.LoadBank(*bankPath)
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, podium.WithSampleBank(bank))
	}
	if *fontPath != "" {
		opts = append(opts, podium.WithSoundFont(*fontPath))
	}

	if *outPath != "" {
		if err := export(s, *outPath, *sampleRate, *floatWAV, opts); err != nil {
			log.Fatal(err)
		}
		return
	}

	c, err := podium.NewConductor(s, opts...)
	if err != nil {
		log.Fatal(err)
	}
	ch := c.Watch()
	ctx := context.Background()
	if err := c.LoadInstruments(ctx); err != nil {
		log.Fatal(err)
	}
	if *tempo > 0 {
		c.SetTempo(*tempo)
	}
	if *midiIn {
		adapter := midictl.New(c, podium.DefaultLimits().MaxBPM)
		if !adapter.Available() {
			logger.Warn("MIDI control requested but no driver is available")
		} else if err := adapter.Attach(*midiPort); err != nil {
			logger.Warn("MIDI control disabled", "error", err)
		} else {
			defer adapter.Close()
		}
	}

	fmt.Printf("%s: %d measures at %.0f BPM\n", s.Header.Title, s.TotalMeasures(), s.Header.BPM)
	if err := c.Start(); err != nil {
		log.Fatal(err)
	}

	loopCount := 0
	lastMeasure := -1
events:
	for event := range ch {
		switch event.Kind {
		case podium.EventLoading:
			fmt.Printf("loading %3.0f%%\n", event.Percent)
		case podium.EventState:
			fmt.Printf("transport %s\n", event.State)
		case podium.EventFinished:
			fmt.Println("playback complete")
			break events
		case podium.EventLooped:
			loopCount++
			fmt.Printf("loop %d complete\n", loopCount)
			if *loops > 0 && loopCount >= *loops {
				break events
			}
		case podium.EventProgress:
			if event.Measure != lastMeasure {
				lastMeasure = event.Measure
				fmt.Printf("measure %d (%.0f%%)\n", event.Measure+1, event.Percent)
			}
		case podium.EventTrigger:
			fmt.Printf("  %s %.2fs v%.2f\n", event.Instrument, event.Duration.Seconds(), event.Velocity)
		}
	}
	if err := c.Close(); err != nil {
		log.Fatal(err)
	}
}

// resolveSong loads the named song, falling back to the built-in demo.
func resolveSong(path string) (*podium.Song, error) {
	if path == "" {
		return podium.ParseSong([]byte(defaultSong))
	}
	return podium.LoadSong(path)
}

// export renders the song offline and writes a WAV file.
func export(s *podium.Song, path string, sampleRate int, floatWAV bool, opts []podium.Option) error {
	samples, err := podium.RenderSong(context.Background(), s, opts...)
	if err != nil {
		return err
	}
	var data []byte
	if floatWAV {
		data = podium.EncodeWAVFloat32LE(samples, sampleRate, 2)
	} else {
		data = podium.EncodeWAV16LE(samples, sampleRate, 2)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	seconds := float64(len(samples)/2) / float64(sampleRate)
	fmt.Printf("wrote %s (%.1fs at %d Hz)\n", path, seconds, sampleRate)
	return nil
}
