package song

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/smf"
)

// LoadSMF imports a Standard MIDI File as a Song. The first tempo change
// becomes the header tempo and the first meter event the time signature;
// every SMF track carrying note events becomes one song track. Durations
// come from on/off pairing, converted to seconds at the header tempo the
// same way authored documents are read.
func LoadSMF(path string) (*Song, error) {
	rd, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading midi file: %w", err)
	}
	mt, ok := rd.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%s: SMPTE time format not supported", path)
	}
	tpq := float64(mt)
	if tpq <= 0 {
		return nil, fmt.Errorf("%s: zero ticks-per-quarter", path)
	}

	s := &Song{Header: Header{BPM: 120, TimeSignature: firstMeter(rd)}}
	if tc := rd.TempoChanges(); len(tc) > 0 && tc[0].BPM > 0 {
		s.Header.BPM = tc[0].BPM
	}

	for i, tr := range rd.Tracks {
		trk, name := importTrack(tr, tpq, s.Header.BPM, s.Header.TimeSignature)
		if name != "" && s.Header.Title == "" && len(trk.Notes) == 0 {
			s.Header.Title = name
		}
		if len(trk.Notes) == 0 {
			continue
		}
		if trk.Instrument == "" {
			trk.Instrument = fmt.Sprintf("track-%d", i)
		}
		s.Tracks = append(s.Tracks, trk)
	}
	if len(s.Tracks) == 0 {
		return nil, fmt.Errorf("%s: no note events", path)
	}
	s.sortNotes()
	return s, nil
}

// firstMeter scans for the first time-signature meta event; 4/4 when absent.
func firstMeter(rd *smf.SMF) TimeSignature {
	for _, tr := range rd.Tracks {
		for _, ev := range tr {
			var num, denom uint8
			if ev.Message.GetMetaMeter(&num, &denom) && num > 0 && denom > 0 {
				return TimeSignature{Beats: int(num), Unit: int(denom)}
			}
		}
	}
	return TimeSignature{Beats: 4, Unit: 4}
}

type openNote struct {
	tick     float64
	velocity uint8
}

type noteKey struct {
	channel, key uint8
}

// importTrack walks one SMF track, pairing note-ons with their offs. A
// note-on at velocity zero is an off, per the MIDI convention.
func importTrack(tr smf.Track, tpq, bpm float64, ts TimeSignature) (Track, string) {
	var (
		out     Track
		name    string
		tick    float64
		pending = make(map[noteKey]openNote)
	)
	percussion := false

	closeNote := func(k noteKey, open openNote, endTick float64) {
		durBeats := (endTick - open.tick) / tpq
		if durBeats <= 0 {
			durBeats = 0.25
		}
		out.Notes = append(out.Notes, Note{
			Pitch:    Pitch(k.key),
			Duration: durBeats * 60.0 / bpm,
			Velocity: float64(open.velocity) / 127.0,
			Position: PositionAtBeat(open.tick/tpq, ts),
		})
	}

	for _, ev := range tr {
		tick += float64(ev.Delta)
		msg := ev.Message
		var ch, key, vel uint8
		switch {
		case msg.GetNoteOn(&ch, &key, &vel) && vel > 0:
			k := noteKey{ch, key}
			if open, ok := pending[k]; ok {
				closeNote(k, open, tick)
			}
			pending[k] = openNote{tick: tick, velocity: vel}
			if ch == 9 {
				percussion = true
			}
		case msg.GetNoteOff(&ch, &key, &vel) || msg.GetNoteOn(&ch, &key, &vel):
			k := noteKey{ch, key}
			if open, ok := pending[k]; ok {
				closeNote(k, open, tick)
				delete(pending, k)
			}
		default:
			var text string
			if msg.GetMetaTrackName(&text) && text != "" {
				name = text
			}
		}
	}
	// notes left hanging at end of track get a sixteenth
	for k, open := range pending {
		closeNote(k, open, open.tick+tpq/4)
	}
	out.Instrument = name
	if out.Instrument == "" && percussion {
		out.Instrument = "percussion"
	}
	return out, name
}
