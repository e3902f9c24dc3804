package midictl

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Controls is the slice of the conductor a MIDI device may drive.
type Controls interface {
	SetTempo(bpm float64)
	SetVelocity(v float64)
	SetZone(index int)
}

const (
	ccModWheel   = 1
	ccExpression = 11
)

// Adapter owns the MIDI driver and one open input port, translating
// incoming messages into conductor control calls.
type Adapter struct {
	ctrl   Controls
	maxBPM float64
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()
}

// New opens the RTMIDI driver. A machine without one gets a disabled
// adapter rather than an error; Available reports which.
func New(ctrl Controls, maxBPM float64) *Adapter {
	a := &Adapter{ctrl: ctrl, maxBPM: maxBPM}
	// there's not much we can do if this fails, so a nil driver just means
	// MIDI control is unavailable on this machine
	a.driver, _ = rtmididrv.New()
	return a
}

// Available reports whether a MIDI driver could be opened at all.
func (a *Adapter) Available() bool { return a.driver != nil }

// Attach opens the first input port whose name contains port (any port when
// empty) and starts listening.
func (a *Adapter) Attach(port string) error {
	if a.driver == nil {
		return fmt.Errorf("no MIDI driver available")
	}
	ins, err := a.driver.Ins()
	if err != nil {
		return err
	}
	for _, in := range ins {
		if port != "" && !strings.Contains(strings.ToLower(in.String()), strings.ToLower(port)) {
			continue
		}
		if err := in.Open(); err != nil {
			return err
		}
		stop, err := midi.ListenTo(in, a.handle)
		if err != nil {
			in.Close()
			return err
		}
		a.in = in
		a.stop = stop
		return nil
	}
	return fmt.Errorf("no MIDI input matching %q", port)
}

func (a *Adapter) handle(msg midi.Message, timestampms int32) {
	Apply(a.ctrl, msg, a.maxBPM)
}

// Apply maps one message onto the controls: mod wheel (CC1) sweeps tempo
// across [0, maxBPM], expression (CC11) sweeps velocity across [0, 1], and
// program change selects the zone. Reports whether the message was used.
func Apply(ctrl Controls, msg midi.Message, maxBPM float64) bool {
	var ch, cc, val uint8
	if msg.GetControlChange(&ch, &cc, &val) {
		switch cc {
		case ccModWheel:
			ctrl.SetTempo(float64(val) / 127 * maxBPM)
			return true
		case ccExpression:
			ctrl.SetVelocity(float64(val) / 127)
			return true
		}
		return false
	}
	var prog uint8
	if msg.GetProgramChange(&ch, &prog) {
		ctrl.SetZone(int(prog))
		return true
	}
	return false
}

// Close stops listening and releases the driver.
func (a *Adapter) Close() {
	if a.stop != nil {
		a.stop()
	}
	if a.in != nil && a.in.IsOpen() {
		a.in.Close()
	}
	if a.driver != nil {
		a.driver.Close()
	}
}
