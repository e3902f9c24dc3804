package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/khiraoka/podium-go"
	"github.com/khiraoka/podium-go/internal/midictl"
)

const (
	windowW      = 1080
	windowH      = 720
	minWindowW   = 920
	minWindowH   = 620
	uiSampleRate = 48000

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale
)

var (
	bgColor     = color.RGBA{58, 54, 66, 255}
	panelColor  = color.RGBA{192, 192, 192, 255}
	borderColor = color.RGBA{128, 128, 128, 255}
	buttonColor = color.RGBA{192, 192, 192, 255}

	// 3D bevel colors for old-school embossed chrome.
	bevelLight  = color.RGBA{255, 255, 255, 255}
	bevelDarker = color.RGBA{64, 64, 64, 255}

	// Sunken panel interiors; the stage itself is darker still.
	sunkenBgColor = color.RGBA{24, 24, 32, 255}
	stageBgColor  = color.RGBA{17, 15, 23, 255}

	sliderFillColor = color.RGBA{0, 0, 128, 255}
	loadFillColor   = color.RGBA{148, 104, 16, 255}
)

// defaultSong keeps the stage populated with no arguments: a short quartet
// passage with enough parts for two seating rows and three zones.
const defaultSong = `
header:
  title: Quartet Sketch
  bpm: 88
tracks:
  - instrument: first violin
    notes:
      - { pitch: E5, duration: 0.5, at: "0:0" }
      - { pitch: D5, duration: 0.5, at: "0:1" }
      - { pitch: C5, duration: 0.5, at: "0:2" }
      - { pitch: D5, duration: 0.5, at: "0:3" }
      - { pitch: E5, duration: 0.9, at: "1:0" }
      - { pitch: G5, duration: 1.4, at: "1:2", velocity: 0.8 }
  - instrument: second violin
    notes:
      - { pitch: G4, duration: 0.9, at: "0:0", velocity: 0.7 }
      - { pitch: A4, duration: 0.9, at: "0:2", velocity: 0.7 }
      - { pitch: G4, duration: 0.9, at: "1:0", velocity: 0.7 }
      - { pitch: B4, duration: 1.4, at: "1:2", velocity: 0.7 }
  - instrument: viola
    notes:
      - { pitch: E4, duration: 0.9, at: "0:0", velocity: 0.6 }
      - { pitch: F4, duration: 0.9, at: "0:2", velocity: 0.6 }
      - { pitch: E4, duration: 0.9, at: "1:0", velocity: 0.6 }
      - { pitch: D4, duration: 1.4, at: "1:2", velocity: 0.6 }
  - instrument: cello
    notes:
      - { pitch: C3, duration: 0.9, at: "0:0" }
      - { pitch: F2, duration: 0.9, at: "0:2" }
      - { pitch: C3, duration: 0.9, at: "1:0" }
      - { pitch: G2, duration: 1.4, at: "1:2" }
zones:
  - name: tutti
    instruments: ["first violin", "second violin", "viola", "cello"]
  - name: firsts
    instruments: ["first violin"]
  - name: low strings
    instruments: ["viola", "cello"]
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

var toneLabels = [5]string{"Rum", "Wrm", "Bdy", "Prs", "Air"}

type loadResult struct {
	cond *podium.Conductor
	err  error
}

// conductorControls forwards MIDI control messages to whichever conductor
// is current; a hot reload swaps the target under the lock.
type conductorControls struct {
	mu   sync.Mutex
	cond *podium.Conductor
}

func (cc *conductorControls) current() *podium.Conductor {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.cond
}

func (cc *conductorControls) swap(c *podium.Conductor) {
	cc.mu.Lock()
	cc.cond = c
	cc.mu.Unlock()
}

func (cc *conductorControls) SetTempo(bpm float64)  { cc.current().SetTempo(bpm) }
func (cc *conductorControls) SetVelocity(v float64) { cc.current().SetVelocity(v) }
func (cc *conductorControls) SetZone(index int)     { cc.current().SetZone(index) }

type game struct {
	song      *podium.Song
	songPath  string
	bank      *podium.Bank
	soundFont string

	cond     *podium.Conductor
	events   <-chan podium.Event
	controls *conductorControls
	midi     *midictl.Adapter

	stage   *stage
	watcher *songWatcher

	sampleRate int
	loop       bool
	ensemble   bool

	loading     bool
	loadPct     float64
	loadDone    chan loadResult
	pendingPlay bool
	reloadAt    int // frameTick to apply a deferred reload, 0 = none
	reloadPath  string

	state     podium.TransportState
	tempo     float64
	dynamics  float64
	volume    float64
	maxBPM    float64
	zoneIdx   int // -1 = everyone plays
	toneGains [5]float64

	progressPct float64
	measure     int
	measures    int
	loops       int

	dragging     int // 0=none, 1=tempo, 2=dynamics, 3=volume
	draggingTone int // -1=none, 0-4=band index

	status    string
	statusErr bool

	frameTick int
	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
	stageRect image.Rectangle
}

func newGame(s *podium.Song, songPath string, bank *podium.Bank, soundFont string, sampleRate int, loop, ensemble bool, volume float64) (*game, error) {
	g := &game{
		song:         s,
		songPath:     songPath,
		bank:         bank,
		soundFont:    soundFont,
		sampleRate:   sampleRate,
		loop:         loop,
		ensemble:     ensemble,
		volume:       clamp(volume, 0, 1),
		dynamics:     1.0,
		zoneIdx:      -1,
		controls:     &conductorControls{},
		loadDone:     make(chan loadResult, 1),
		draggingTone: -1,
		status:       "Tuning up",
		textCache:    make(map[string]*ebiten.Image, 1024),
		viewW:        windowW,
		viewH:        windowH,
	}
	for i := range g.toneGains {
		g.toneGains[i] = 1
	}
	g.stage = newStage(s)
	if err := g.buildConductor(); err != nil {
		return nil, err
	}
	if songPath != "" {
		w, err := newSongWatcher(songPath)
		if err != nil {
			logger.Warn("song watch unavailable", "error", err)
		} else {
			g.watcher = w
		}
	}
	return g, nil
}

// buildConductor creates a fresh conductor for the current song and starts
// loading its instruments in the background. Also the reload path: the
// caller closes the old conductor first.
func (g *game) buildConductor() error {
	opts := []podium.Option{
		podium.WithSampleRate(g.sampleRate),
		podium.WithLoop(g.loop),
		podium.WithEnsemble(g.ensemble),
		podium.WithMasterVolume(g.volume),
		podium.WithLogger(logger),
	}
	if g.bank != nil {
		opts = append(opts, podium.WithSampleBank(g.bank))
	}
	if g.soundFont != "" {
		opts = append(opts, podium.WithSoundFont(g.soundFont))
	}
	c, err := podium.NewConductor(g.song, opts...)
	if err != nil {
		return err
	}
	g.cond = c
	g.controls.swap(c)
	g.events = c.Watch()
	g.maxBPM = c.Limits().MaxBPM
	g.tempo = g.song.Header.BPM
	g.loading = true
	g.loadPct = 0
	g.measures = g.song.TotalMeasures()
	g.measure = 0
	g.progressPct = 0
	g.loops = 0
	go func(c *podium.Conductor) {
		g.loadDone <- loadResult{cond: c, err: c.LoadInstruments(context.Background())}
	}(c)
	return nil
}

func (g *game) attachMIDI(port string) {
	a := midictl.New(g.controls, g.maxBPM)
	if !a.Available() {
		logger.Warn("midi control requested but no driver is available")
		return
	}
	if err := a.Attach(port); err != nil {
		logger.Warn("midi attach failed", "error", err)
		a.Close()
		return
	}
	g.midi = a
	g.setStatus("MIDI control attached")
}

func (g *game) Update() error {
	g.frameTick++
	g.pollEvents()
	g.pollWatcher()
	g.syncMirrors()
	g.handleKeys()
	g.handleMouse()
	if g.reloadAt > 0 && g.frameTick >= g.reloadAt {
		g.reloadAt = 0
		g.reloadSong(g.reloadPath)
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)

	l := g.layoutRects()
	if !l.stage.Eq(g.stageRect) {
		g.stageRect = l.stage
		g.stage.arrange(l.stage)
	}

	g.drawStagePanel(screen, l.stage)
	g.stage.draw(screen, g.frameTick, g.beatPulse())
	g.drawStageHeading(screen, l.stage)

	g.drawProgress(screen, l.progress)
	g.drawTone(screen, l.tone)
	g.drawButton(screen, l.play, g.playButtonLabel(), buttonColor)
	g.drawButton(screen, l.restart, "Restart", buttonColor)
	g.drawButton(screen, l.zone, g.zoneLabel(), buttonColor)
	g.drawHSlider(screen, l.tempo, fmt.Sprintf("Tempo %3.0f", g.tempo), g.tempo/g.maxBPM)
	g.drawHSlider(screen, l.dynamics, fmt.Sprintf("Dyn %3.0f%%", g.dynamics*100), g.dynamics)
	g.drawHSlider(screen, l.volume, fmt.Sprintf("Vol %3.0f%%", g.volume*100), g.volume)
	g.drawSunkenPanel(screen, l.status)
	g.drawStatus(screen, l.status)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	if outsideW < minWindowW {
		outsideW = minWindowW
	}
	if outsideH < minWindowH {
		outsideH = minWindowH
	}
	g.viewW = outsideW
	g.viewH = outsideH
	return outsideW, outsideH
}

func (g *game) Close() {
	if g.watcher != nil {
		_ = g.watcher.Close()
	}
	if g.midi != nil {
		g.midi.Close()
	}
	_ = g.cond.Close()
}

func (g *game) pollEvents() {
	for {
		select {
		case ev, ok := <-g.events:
			if !ok {
				return
			}
			g.handleEvent(ev)
		case res := <-g.loadDone:
			// A result from a conductor we already replaced is stale.
			if res.cond == g.cond {
				g.finishLoad(res.err)
			}
		default:
			return
		}
	}
}

func (g *game) handleEvent(ev podium.Event) {
	switch ev.Kind {
	case podium.EventLoading:
		g.loadPct = ev.Percent
	case podium.EventProgress:
		g.progressPct = ev.Percent
		g.measure = ev.Measure
	case podium.EventTrigger:
		g.stage.trigger(ev.Instrument, ev.Duration, ev.Velocity, g.frameTick)
	case podium.EventLooped:
		g.loops++
		g.setStatus(fmt.Sprintf("Loop %d", g.loops))
	case podium.EventFinished:
		g.stage.settle()
		g.cond.Restart()
		g.setStatus("Performance complete")
	}
}

func (g *game) finishLoad(err error) {
	g.loading = false
	if err != nil {
		g.setError("load: " + err.Error())
		return
	}
	g.loadPct = 100
	g.tempo = g.cond.Tempo()
	g.cond.SetVelocity(g.dynamics)
	for i, v := range g.toneGains {
		g.cond.SetToneBand(i, float32(v))
	}

	states := g.cond.LoadStates()
	timedOut := 0
	for _, st := range states {
		if st == podium.LoadTimedOut {
			timedOut++
		}
	}
	if timedOut > 0 {
		g.setStatus(fmt.Sprintf("Ready, %d of %d parts timed out", timedOut, len(states)))
	} else {
		g.setStatus("Ready")
	}
	if g.pendingPlay {
		g.pendingPlay = false
		g.startPlayback()
	}
}

// pollWatcher defers the reload a few ticks so an editor's save burst has
// finished writing before the file is read back.
func (g *game) pollWatcher() {
	if g.watcher == nil {
		return
	}
	for {
		select {
		case path := <-g.watcher.Events:
			g.reloadPath = path
			g.reloadAt = g.frameTick + 20
		case err := <-g.watcher.Errors:
			g.setError("watch: " + err.Error())
		default:
			return
		}
	}
}

func (g *game) reloadSong(path string) {
	s, err := podium.LoadSong(path)
	if err != nil {
		g.setError("reload: " + err.Error())
		return
	}
	wasPlaying := g.state == podium.StatePlaying
	_ = g.cond.Close()
	g.song = s
	g.zoneIdx = -1
	g.stage = newStage(s)
	g.stage.arrange(g.stageRect)
	if err := g.buildConductor(); err != nil {
		g.setError(err.Error())
		return
	}
	g.pendingPlay = wasPlaying
	g.setStatus("Reloaded " + filepath.Base(path))
}

// syncMirrors pulls the conductor's live values into the widget state, so
// MIDI control and the on-screen controls stay in agreement. A slider being
// dragged wins over the mirror for that frame.
func (g *game) syncMirrors() {
	if g.loading {
		return
	}
	g.state = g.cond.State()
	if g.dragging != 1 {
		g.tempo = g.cond.Tempo()
	}
	if g.dragging != 2 {
		g.dynamics = g.cond.Velocity()
	}
	if g.dragging != 3 {
		g.volume = g.cond.MasterVolume()
	}
	for _, p := range g.stage.performers {
		p.benched = !g.cond.InstrumentActive(p.id)
	}
}

func (g *game) handleKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.togglePlayPause()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.restartPerformance()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyZ) {
		g.cycleZone()
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		switch {
		case pointInRect(mx, my, l.play):
			g.togglePlayPause()
			return
		case pointInRect(mx, my, l.restart):
			g.restartPerformance()
			return
		case pointInRect(mx, my, l.zone):
			g.cycleZone()
			return
		case pointInRect(mx, my, l.tempo):
			g.dragging = 1
			g.updateTempoFromMouse(mx, l.tempo)
			return
		case pointInRect(mx, my, l.dynamics):
			g.dragging = 2
			g.updateDynamicsFromMouse(mx, l.dynamics)
			return
		case pointInRect(mx, my, l.volume):
			g.dragging = 3
			g.updateVolumeFromMouse(mx, l.volume)
			return
		case pointInRect(mx, my, l.tone):
			g.clickTone(mx, my, l.tone)
			return
		}
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.dragging = 0
		g.draggingTone = -1
	}
	switch g.dragging {
	case 1:
		g.updateTempoFromMouse(mx, l.tempo)
	case 2:
		g.updateDynamicsFromMouse(mx, l.dynamics)
	case 3:
		g.updateVolumeFromMouse(mx, l.volume)
	}
	if g.draggingTone >= 0 {
		g.dragTone(my, l.tone)
	}
}

func (g *game) togglePlayPause() {
	if g.loading {
		return
	}
	if g.state == podium.StatePlaying {
		g.cond.Stop()
		g.setStatus("Paused")
		return
	}
	g.startPlayback()
}

func (g *game) startPlayback() {
	if err := g.cond.Start(); err != nil {
		g.setError(err.Error())
		return
	}
	g.setStatus("Playing")
}

func (g *game) restartPerformance() {
	if g.loading {
		return
	}
	wasPlaying := g.state == podium.StatePlaying
	g.cond.Restart()
	g.stage.settle()
	g.progressPct = 0
	g.measure = 0
	g.loops = 0
	if wasPlaying {
		g.startPlayback()
		return
	}
	g.setStatus("Back to the top")
}

func (g *game) cycleZone() {
	if g.loading || len(g.song.Zones) == 0 {
		return
	}
	g.zoneIdx++
	if g.zoneIdx >= len(g.song.Zones) {
		g.zoneIdx = -1
	}
	if g.zoneIdx < 0 {
		g.cond.ActivateAll()
	} else {
		g.cond.SetZone(g.zoneIdx)
	}
	g.setStatus(g.zoneLabel())
}

func (g *game) zoneLabel() string {
	if g.zoneIdx < 0 || g.zoneIdx >= len(g.song.Zones) {
		return "Zone: tutti"
	}
	return "Zone: " + g.song.Zones[g.zoneIdx].Name
}

func (g *game) playButtonLabel() string {
	switch {
	case g.loading:
		return "Loading"
	case g.state == podium.StatePlaying:
		return "Pause"
	case g.state == podium.StatePaused:
		return "Resume"
	default:
		return "Play"
	}
}

// beatPulse decays from 1 at each beat onset so the rostrum flashes with
// the conducting pattern.
func (g *game) beatPulse() float64 {
	if g.loading || g.state != podium.StatePlaying {
		return 0
	}
	beat := g.cond.Position()
	frac := beat - math.Floor(beat)
	return (1 - frac) * (1 - frac)
}

type uiLayout struct {
	stage, progress, tone   image.Rectangle
	play, restart, zone     image.Rectangle
	tempo, dynamics, volume image.Rectangle
	status                  image.Rectangle
}

func (g *game) layoutRects() uiLayout {
	w := g.viewW
	h := g.viewH
	if w < minWindowW {
		w = minWindowW
	}
	if h < minWindowH {
		h = minWindowH
	}

	pad := 20
	rowH := 44
	statusH := 40
	progressH := 30

	// Bottom up: status, two control rows beside the tone panel, progress,
	// and the stage takes the rest.
	statusTop := h - pad - statusH
	controlsBottom := statusTop - 8
	controlsTop := controlsBottom - (rowH*2 + 8)

	toneW := 280
	toneRect := image.Rect(pad, controlsTop, pad+toneW, controlsBottom)

	bx := pad + toneW + 12
	row1 := controlsTop
	row2 := controlsTop + rowH + 8
	playRect := image.Rect(bx, row1, bx+120, row1+rowH)
	restartRect := image.Rect(bx+132, row1, bx+252, row1+rowH)
	zoneRight := bx + 264 + 230
	if zoneRight > w-pad {
		zoneRight = w - pad
	}
	zoneRect := image.Rect(bx+264, row1, zoneRight, row1+rowH)

	availW := w - pad - bx
	sliderW := (availW - 24) / 3
	tempoRect := image.Rect(bx, row2, bx+sliderW, row2+rowH)
	dynRect := image.Rect(bx+sliderW+12, row2, bx+sliderW*2+12, row2+rowH)
	volRect := image.Rect(bx+sliderW*2+24, row2, bx+sliderW*3+24, row2+rowH)

	progressTop := controlsTop - 12 - progressH
	progressRect := image.Rect(pad, progressTop, w-pad, progressTop+progressH)
	stageRect := image.Rect(pad, pad, w-pad, progressTop-12)
	statusRect := image.Rect(pad, statusTop, w-pad, statusTop+statusH)

	return uiLayout{
		stage: stageRect, progress: progressRect, tone: toneRect,
		play: playRect, restart: restartRect, zone: zoneRect,
		tempo: tempoRect, dynamics: dynRect, volume: volRect,
		status: statusRect,
	}
}

func (g *game) drawStageHeading(screen *ebiten.Image, rect image.Rectangle) {
	title := g.song.Header.Title
	if title == "" {
		title = "Untitled"
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(title, maxChars), rect.Min.X+10, rect.Min.Y+8)
	if g.midi != nil {
		g.drawText(screen, "MIDI", rect.Max.X-10-4*charW, rect.Min.Y+8)
	}
}

// drawProgress doubles as the loading bar: amber while parts load, blue
// for song position once the orchestra is seated.
func (g *game) drawProgress(screen *ebiten.Image, rect image.Rectangle) {
	g.drawSunkenPanel(screen, rect)
	inner := image.Rect(rect.Min.X+3, rect.Min.Y+3, rect.Max.X-3, rect.Max.Y-3)

	frac := g.progressPct / 100
	fill := sliderFillColor
	m := g.measure + 1
	if g.measures > 0 && m > g.measures {
		m = g.measures
	}
	label := fmt.Sprintf("measure %d/%d", m, g.measures)
	if g.loops > 0 {
		label += fmt.Sprintf("  loop %d", g.loops)
	}
	if g.loading {
		frac = g.loadPct / 100
		fill = loadFillColor
		label = fmt.Sprintf("loading %3.0f%%", g.loadPct)
	}

	fillW := int(float64(inner.Dx()) * clamp(frac, 0, 1))
	if fillW > 0 {
		ebitenutil.DrawRect(screen, float64(inner.Min.X), float64(inner.Min.Y), float64(fillW), float64(inner.Dy()), fill)
	}
	g.drawText(screen, label, rect.Min.X+8, rect.Min.Y+(rect.Dy()-lineH)/2+2)
}

func (g *game) drawTone(screen *ebiten.Image, rect image.Rectangle) {
	g.drawPanel(screen, rect)
	numBands := len(g.toneGains)
	pad := 8
	topPad := 6
	innerX := rect.Min.X + pad
	innerW := rect.Dx() - pad*2
	innerY := rect.Min.Y + topPad
	innerH := rect.Dy() - topPad - lineH - 8

	bandW := innerW / numBands
	if bandW < 10 || innerH < 16 {
		return
	}

	for i := 0; i < numBands; i++ {
		bx := innerX + i*bandW
		by := innerY
		bw := bandW - 4
		bh := innerH

		// Sunken track groove with the unity line across its middle.
		ebitenutil.DrawRect(screen, float64(bx+bw/2-2), float64(by), 4, float64(bh), bevelDarker)
		centerY := by + bh/2
		ebitenutil.DrawRect(screen, float64(bx), float64(centerY), float64(bw), 1, borderColor)

		// Knob: gain 0..2 maps bottom..top.
		fracV := clamp(g.toneGains[i]/2.0, 0, 1)
		knobY := by + bh - int(fracV*float64(bh)) - 4
		knobRect := image.Rect(bx+2, knobY, bx+bw-2, knobY+8)
		ebitenutil.DrawRect(screen, float64(knobRect.Min.X), float64(knobRect.Min.Y), float64(knobRect.Dx()), float64(knobRect.Dy()), panelColor)
		drawBorder(screen, knobRect)

		g.drawText(screen, toneLabels[i], bx+2, rect.Max.Y-lineH-2)
	}
}

func (g *game) clickTone(mx, my int, rect image.Rectangle) {
	band := g.toneBandFromMouse(mx, rect)
	if band < 0 {
		return
	}
	g.draggingTone = band
	g.dragTone(my, rect)
}

func (g *game) dragTone(my int, rect image.Rectangle) {
	band := g.draggingTone
	if band < 0 || band >= len(g.toneGains) {
		return
	}
	topPad := 6
	innerY := rect.Min.Y + topPad
	innerH := rect.Dy() - topPad - lineH - 8
	if innerH <= 0 {
		return
	}
	// Map y position to gain: top = 2.0, bottom = 0.0.
	frac := 1.0 - clamp(float64(my-innerY)/float64(innerH), 0, 1)
	gain := frac * 2.0
	g.toneGains[band] = gain
	g.cond.SetToneBand(band, float32(gain))
	g.setStatus(fmt.Sprintf("Tone %s: %.1f", toneLabels[band], gain))
}

func (g *game) toneBandFromMouse(mx int, rect image.Rectangle) int {
	pad := 8
	innerX := rect.Min.X + pad
	innerW := rect.Dx() - pad*2
	numBands := len(g.toneGains)
	bandW := innerW / numBands
	if bandW <= 0 {
		return -1
	}
	idx := (mx - innerX) / bandW
	if idx < 0 || idx >= numBands {
		return -1
	}
	return idx
}

const sliderLabelW = 104

func (g *game) drawHSlider(screen *ebiten.Image, rect image.Rectangle, label string, frac float64) {
	g.drawPanel(screen, rect)
	g.drawText(screen, label, rect.Min.X+8, rect.Min.Y+8)

	trackX := rect.Min.X + sliderLabelW
	trackW := rect.Dx() - sliderLabelW - 16
	trackY := rect.Min.Y + rect.Dy()/2 - 4
	if trackW < 20 {
		return
	}
	// Sunken track groove.
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW), 8, bevelDarker)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW-1), 1, borderColor)
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), 1, 7, borderColor)
	// Fill.
	fillW := int(float64(trackW) * clamp(frac, 0, 1))
	if fillW > 2 {
		ebitenutil.DrawRect(screen, float64(trackX+1), float64(trackY+1), float64(fillW-1), 6, sliderFillColor)
	}
	// Raised knob.
	knobX := trackX + fillW - 5
	if knobX < trackX-5 {
		knobX = trackX - 5
	}
	if knobX > trackX+trackW-5 {
		knobX = trackX + trackW - 5
	}
	knobRect := image.Rect(knobX, trackY-4, knobX+10, trackY+12)
	ebitenutil.DrawRect(screen, float64(knobRect.Min.X), float64(knobRect.Min.Y), float64(knobRect.Dx()), float64(knobRect.Dy()), panelColor)
	drawBorder(screen, knobRect)
}

func sliderFrac(mx int, rect image.Rectangle) float64 {
	trackX := rect.Min.X + sliderLabelW
	trackW := rect.Dx() - sliderLabelW - 16
	if trackW <= 0 {
		return 0
	}
	return clamp(float64(mx-trackX)/float64(trackW), 0, 1)
}

func (g *game) updateTempoFromMouse(mx int, rect image.Rectangle) {
	if g.loading {
		return
	}
	bpm := sliderFrac(mx, rect) * g.maxBPM
	g.tempo = bpm
	g.cond.SetTempo(bpm)
	g.setStatus(fmt.Sprintf("Tempo %.0f", bpm))
}

func (g *game) updateDynamicsFromMouse(mx int, rect image.Rectangle) {
	if g.loading {
		return
	}
	v := sliderFrac(mx, rect)
	g.dynamics = v
	g.cond.SetVelocity(v)
	g.setStatus(fmt.Sprintf("Dynamics %d%%", int(v*100+0.5)))
}

func (g *game) updateVolumeFromMouse(mx int, rect image.Rectangle) {
	if g.loading {
		return
	}
	v := sliderFrac(mx, rect)
	g.volume = v
	g.cond.SetMasterVolume(v)
	g.setStatus(fmt.Sprintf("Volume %d%%", int(v*100+0.5)))
}

func (g *game) drawStatus(screen *ebiten.Image, rect image.Rectangle) {
	msg := "Status: " + g.status
	if g.statusErr {
		msg = "Status: ERROR - " + g.status
	}
	maxChars := max(8, (rect.Dx()-16)/charW)
	g.drawText(screen, shortenEnd(msg, maxChars), rect.Min.X+8, rect.Min.Y+6)
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func (g *game) drawPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawStagePanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), stageBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string, fill color.Color) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), fill)
	drawBorder(screen, rect)
	labelW := len([]rune(label)) * charW
	x := rect.Min.X + (rect.Dx()-labelW)/2
	y := rect.Min.Y + (rect.Dy()-lineH)/2
	g.drawText(screen, label, x, y)
}

// drawBorder draws a raised 3D bevel (highlight top/left, shadow bottom/right).
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	// Outer highlight: top and left.
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	// Outer shadow: bottom and right.
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	// Inner shadow: bottom and right.
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

// drawSunkenBorder draws a sunken 3D bevel (shadow top/left, highlight bottom/right).
func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	// Outer shadow: top and left.
	ebitenutil.DrawRect(screen, x, y, w-1, 1, borderColor)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, borderColor)
	// Outer highlight: bottom and right.
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
	// Inner shadow: top and left.
	ebitenutil.DrawRect(screen, x+1, y+1, w-3, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+2, 1, h-4, bevelDarker)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		w := max(1, len([]rune(msg))*7)
		img = ebiten.NewImage(w, 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 3000 {
			g.textCache = make(map[string]*ebiten.Image, 1024)
		}
		g.textCache[msg] = img
	}
	// Embossed shadow (dark offset behind text).
	opS := &ebiten.DrawImageOptions{}
	opS.GeoM.Scale(textScale, textScale)
	opS.GeoM.Translate(float64(x+2), float64(y+2))
	opS.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, opS)
	// Main text (white).
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:max(0, maxChars)])
	}
	return string(r[:maxChars-3]) + "..."
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}

func main() {
	var (
		songPath   = flag.String("song", "", "song document (.yaml/.json) or standard MIDI file (.mid); empty seats the built-in quartet")
		bankPath   = flag.String("bank", "", "sample bank manifest; without it every part is synthesized")
		fontPath   = flag.String("soundfont", "", "fallback .sf2 for parts the bank does not cover")
		sampleRate = flag.Int("sample-rate", uiSampleRate, "engine sample rate")
		loop       = flag.Bool("loop", false, "loop playback")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		ensemble   = flag.Bool("ensemble", false, "widen sections through the ensemble stage")
		midiIn     = flag.Bool("midi", false, "take tempo/velocity/zone control from a MIDI device")
		midiPort   = flag.String("midi-port", "", "substring of the MIDI input port name (first port when empty)")
		debug      = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()
	initLogger(*debug)

	s, path, err := resolveSong(*songPath)
	if err != nil {
		log.Fatal(err)
	}
	var bank *podium.Bank
	if *bankPath != "" {
		bank, err = podium.LoadBank(*bankPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	g, err := newGame(s, path, bank, *fontPath, *sampleRate, *loop, *ensemble, *volume)
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()
	if *midiIn {
		g.attachMIDI(*midiPort)
	}

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("podium stage")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}

// resolveSong loads the named song, or the built-in quartet with no path.
// The returned path is empty for the built-in so no watcher is placed.
func resolveSong(path string) (*podium.Song, string, error) {
	if path == "" {
		s, err := podium.ParseSong([]byte(defaultSong))
		return s, "", err
	}
	s, err := podium.LoadSong(path)
	if err != nil {
		return nil, "", err
	}
	return s, path, nil
}
