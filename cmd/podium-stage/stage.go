package main

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"github.com/khiraoka/podium-go"
)

// Stroke animation bounds in ticks (60/s). Very short notes still read on
// screen; very long ones settle before they look stuck.
const (
	minStrokeTicks = 18
	maxStrokeTicks = 180
	strokeAttack   = 0.2
)

var (
	floorLineColor = color.RGBA{44, 40, 52, 255}
	apronColor     = color.RGBA{70, 60, 48, 255}
	spotlightColor = color.RGBA{255, 214, 120, 255}
	beatRingColor  = color.RGBA{235, 220, 180, 255}
)

// fade scales c to alpha a in ebiten's premultiplied color model.
func fade(c color.RGBA, a float64) color.RGBA {
	a = clamp(a, 0, 1)
	return color.RGBA{
		R: uint8(float64(c.R) * a),
		G: uint8(float64(c.G) * a),
		B: uint8(float64(c.B) * a),
		A: uint8(255 * a),
	}
}

type performer struct {
	id     string
	fam    string
	sprite *ebiten.Image
	x, y   float64 // sprite center within the stage rect
	depth  float64 // base scale, back row slightly smaller

	strokeFrom  int // tick of the last trigger, -1 when idle
	strokeTicks int
	strokeAmp   float64
	benched     bool // outside the active zone, drawn dimmed and still
}

// stroke returns the animation phase and eased envelope at tick. Phase runs
// 0..1 over the stroke; the envelope rises over the attack portion and
// decays quadratically, scaled by the trigger's velocity.
func (p *performer) stroke(tick int) (phase, env float64) {
	if p.strokeFrom < 0 || p.strokeTicks <= 0 {
		return 0, 0
	}
	phase = float64(tick-p.strokeFrom) / float64(p.strokeTicks)
	if phase < 0 || phase >= 1 {
		return 0, 0
	}
	if phase < strokeAttack {
		t := phase / strokeAttack
		env = t * t * (3 - 2*t)
	} else {
		t := (phase - strokeAttack) / (1 - strokeAttack)
		env = (1 - t) * (1 - t)
	}
	return phase, env * p.strokeAmp
}

// stage owns the performer sprites and their seating. It is pure
// presentation: triggers arrive from playback events, nothing here feeds
// back into the transport.
type stage struct {
	performers []*performer
	bow        *ebiten.Image
	rostrum    *ebiten.Image
	rect       image.Rectangle
	rostrumX   float64
	rostrumY   float64
}

func newStage(s *podium.Song) *stage {
	st := &stage{
		bow:     rasterizeBow(),
		rostrum: rasterizePodium(),
	}
	for _, id := range s.Instruments() {
		st.performers = append(st.performers, &performer{
			id:         id,
			fam:        family(id),
			sprite:     rasterizePerformer(id),
			depth:      1,
			strokeFrom: -1,
		})
	}
	return st
}

// arrange seats the performers on one or two arcs facing the rostrum. Track
// order runs front to back, so the first tracks sit closest.
func (st *stage) arrange(rect image.Rectangle) {
	st.rect = rect
	st.rostrumX = float64(rect.Min.X+rect.Max.X) / 2
	st.rostrumY = float64(rect.Max.Y) - 52
	n := len(st.performers)
	if n == 0 {
		return
	}

	rows := [][]*performer{st.performers}
	if n > 5 {
		half := (n + 1) / 2
		rows = [][]*performer{st.performers[:half], st.performers[half:]}
	}

	maxR := math.Min(float64(rect.Dx())/2-66, float64(rect.Dy())-140)
	for ri, row := range rows {
		r := math.Min(maxR, 168+96*float64(ri))
		depth := 1.0 - 0.15*float64(ri)
		for k, p := range row {
			pos := 0.5
			if len(row) > 1 {
				pos = float64(k) / float64(len(row)-1)
			}
			a := (200 + 140*pos) * math.Pi / 180
			p.x = st.rostrumX + r*math.Cos(a)
			p.y = st.rostrumY + r*math.Sin(a)*0.72
			p.depth = depth
		}
	}
}

// trigger starts a stroke on the named performer. Duration and velocity
// arrive already clamped by the transport.
func (st *stage) trigger(id string, d time.Duration, velocity float64, tick int) {
	ticks := int(d.Seconds() * 60)
	if ticks < minStrokeTicks {
		ticks = minStrokeTicks
	}
	if ticks > maxStrokeTicks {
		ticks = maxStrokeTicks
	}
	amp := 0.3 + 0.7*clamp(velocity, 0, 1)
	for _, p := range st.performers {
		if p.id != id {
			continue
		}
		p.strokeFrom = tick
		p.strokeTicks = ticks
		p.strokeAmp = amp
	}
}

// settle clears all running strokes, e.g. on restart or reload.
func (st *stage) settle() {
	for _, p := range st.performers {
		p.strokeFrom = -1
	}
}

func (st *stage) draw(screen *ebiten.Image, tick int, beatPulse float64) {
	st.drawFloor(screen)
	for _, p := range st.performers {
		st.drawPerformer(screen, p, tick)
	}
	st.drawRostrum(screen, beatPulse)
}

func (st *stage) drawFloor(screen *ebiten.Image) {
	r := st.rect
	for i := 1; i <= 4; i++ {
		y := r.Min.Y + r.Dy()*i/5
		ebitenutil.DrawRect(screen, float64(r.Min.X+8), float64(y), float64(r.Dx()-16), 1, floorLineColor)
	}
	ebitenutil.DrawRect(screen, float64(r.Min.X+8), float64(r.Max.Y-14), float64(r.Dx()-16), 2, apronColor)
}

func (st *stage) drawPerformer(screen *ebiten.Image, p *performer, tick int) {
	phase, env := p.stroke(tick)
	if p.benched {
		phase, env = 0, 0
	}

	if env > 0.02 {
		c := fade(spotlightColor, 0.06+0.22*env)
		ebitenutil.DrawCircle(screen, p.x, p.y+float64(spriteH)/2*p.depth-8, 30+26*env, c)
	}

	s := p.depth * (1 + 0.1*env)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(-float64(spriteW)/2, -float64(spriteH)/2)
	op.GeoM.Scale(s, s)
	op.GeoM.Translate(p.x, p.y)
	if p.benched {
		op.ColorScale.Scale(0.42, 0.42, 0.50, 0.85)
	}
	screen.DrawImage(p.sprite, op)

	if p.fam == "violin" || p.fam == "cello" {
		st.drawBow(screen, p, phase, env, s)
	}
}

// drawBow sweeps the bow diagonally across the strings over the stroke
// phase: down-bow from frog to tip on every note.
func (st *stage) drawBow(screen *ebiten.Image, p *performer, phase, env, s float64) {
	if env <= 0.02 {
		return
	}
	sweep := (phase*2 - 1) * 13 * s
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(-36, -5)
	op.GeoM.Rotate(-0.62)
	op.GeoM.Scale(s, s)
	op.GeoM.Translate(p.x+sweep, p.y-6*s+sweep*0.4)
	screen.DrawImage(st.bow, op)
}

func (st *stage) drawRostrum(screen *ebiten.Image, beatPulse float64) {
	if beatPulse > 0 {
		c := fade(beatRingColor, 0.07+0.25*beatPulse)
		ebitenutil.DrawCircle(screen, st.rostrumX, st.rostrumY+10, 26+14*beatPulse, c)
	}
	b := st.rostrum.Bounds()
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(st.rostrumX-float64(b.Dx())/2, st.rostrumY-float64(b.Dy())/2)
	screen.DrawImage(st.rostrum, op)
}
