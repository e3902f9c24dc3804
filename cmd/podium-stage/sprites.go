package main

import (
	"log"
	"math"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Sprite geometry. The figure fills the upper area, the nameplate the
// bottom strip.
const (
	spriteW = 96
	spriteH = 120
	plateH  = 22
)

type shade struct{ r, g, b float64 }

func darker(s shade) shade {
	const d = 0.72
	return shade{s.r * d, s.g * d, s.b * d}
}

func setShade(dc *gg.Context, s shade) {
	dc.SetRGB(s.r, s.g, s.b)
}

var (
	woodShade   = shade{0.55, 0.33, 0.16}
	silverShade = shade{0.76, 0.78, 0.82}
	brassShade  = shade{0.82, 0.64, 0.22}
	copperShade = shade{0.72, 0.45, 0.26}
	stringShade = shade{0.92, 0.90, 0.82}
)

var (
	labelFaceOnce sync.Once
	labelFace     font.Face
)

func loadLabelFace() font.Face {
	labelFaceOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			log.Fatal(err)
		}
		labelFace = truetype.NewFace(f, &truetype.Options{Size: 13})
	})
	return labelFace
}

// family classifies an instrument id into the figure drawn for it. Ids are
// free-form, so this matches on common name fragments and falls back to a
// generic synth module.
func family(id string) string {
	n := strings.ToLower(id)
	switch {
	case containsAny(n, "violin", "viola", "fiddle"):
		return "violin"
	case containsAny(n, "flute", "piccolo", "clarinet", "oboe", "bassoon", "recorder", "sax", "whistle"):
		return "wind"
	case containsAny(n, "trumpet", "trombone", "horn", "tuba", "brass"):
		return "brass"
	case containsAny(n, "timpani", "drum", "snare", "perc", "cymbal", "marimba"):
		return "timpani"
	case containsAny(n, "cello", "bass"):
		return "cello"
	case containsAny(n, "piano", "keys", "organ", "harpsichord", "celesta"):
		return "keyboard"
	case containsAny(n, "harp"):
		return "harp"
	default:
		return "module"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// rasterizePerformer draws the figure for an instrument id into a fresh
// sprite. Called once per performer at stage build, never per frame.
func rasterizePerformer(id string) *ebiten.Image {
	dc := gg.NewContext(spriteW, spriteH)
	switch family(id) {
	case "violin":
		drawStringFigure(dc, 1.0)
	case "cello":
		drawStringFigure(dc, 1.3)
	case "wind":
		drawWindFigure(dc)
	case "brass":
		drawBrassFigure(dc)
	case "timpani":
		drawTimpaniFigure(dc)
	case "keyboard":
		drawKeyboardFigure(dc)
	case "harp":
		drawHarpFigure(dc)
	default:
		drawModuleFigure(dc)
	}
	drawNameplate(dc, id)
	return ebiten.NewImageFromImage(dc.Image())
}

// drawStringFigure draws a bowed string body. grow scales the bouts so a
// cello reads bigger than a violin inside the same sprite.
func drawStringFigure(dc *gg.Context, grow float64) {
	cx := float64(spriteW) / 2
	cy := 56.0
	bw := 16.0 * grow

	// neck and scroll
	setShade(dc, darker(woodShade))
	dc.DrawRectangle(cx-2.5, cy-48, 5, 34)
	dc.Fill()
	dc.DrawCircle(cx, cy-50, 4)
	dc.Fill()

	// bouts: smaller upper, bigger lower, the waist falls between them
	setShade(dc, woodShade)
	dc.DrawEllipse(cx, cy-9*grow, bw*0.72, 10*grow)
	dc.Fill()
	dc.DrawEllipse(cx, cy+7*grow, bw, 13*grow)
	dc.Fill()
	dc.SetRGBA(0, 0, 0, 0.5)
	dc.SetLineWidth(1)
	dc.DrawEllipse(cx, cy+7*grow, bw, 13*grow)
	dc.Stroke()

	// f-holes
	dc.SetRGBA(0.1, 0.05, 0.02, 1)
	dc.SetLineWidth(1.6)
	dc.DrawLine(cx-bw*0.5, cy+2*grow, cx-bw*0.38, cy+11*grow)
	dc.Stroke()
	dc.DrawLine(cx+bw*0.5, cy+2*grow, cx+bw*0.38, cy+11*grow)
	dc.Stroke()

	// strings
	setShade(dc, stringShade)
	dc.SetLineWidth(0.8)
	for i := -1; i <= 1; i++ {
		x := cx + float64(i)*2.2
		dc.DrawLine(x, cy-46, x, cy+14*grow)
		dc.Stroke()
	}

	if grow > 1.2 {
		// endpin
		dc.SetRGB(0.2, 0.2, 0.22)
		dc.SetLineWidth(2)
		dc.DrawLine(cx, cy+19*grow, cx, cy+19*grow+8)
		dc.Stroke()
	}
}

func drawWindFigure(dc *gg.Context) {
	cx := float64(spriteW) / 2

	setShade(dc, silverShade)
	dc.DrawRoundedRectangle(cx-5, 14, 10, 68, 5)
	dc.Fill()

	// flared bell
	dc.DrawEllipse(cx, 84, 10, 6)
	dc.Fill()
	dc.SetRGBA(0, 0, 0, 0.35)
	dc.SetLineWidth(1)
	dc.DrawEllipse(cx, 84, 10, 6)
	dc.Stroke()

	// keywork
	setShade(dc, darker(silverShade))
	for i := 0; i < 5; i++ {
		dc.DrawCircle(cx, 28+float64(i)*11, 3.2)
		dc.Fill()
	}

	// mouthpiece
	dc.SetRGB(0.14, 0.14, 0.18)
	dc.DrawEllipse(cx, 12, 4, 5)
	dc.Fill()
}

func drawBrassFigure(dc *gg.Context) {
	// leadpipe into the coil, coil into the bell
	setShade(dc, brassShade)
	dc.SetLineWidth(6)
	dc.DrawLine(22, 24, 52, 54)
	dc.Stroke()
	dc.SetLineWidth(4)
	dc.DrawCircle(42, 44, 11)
	dc.Stroke()

	dc.DrawCircle(62, 64, 14)
	dc.Fill()
	dc.SetRGBA(0, 0, 0, 0.4)
	dc.SetLineWidth(1.2)
	dc.DrawCircle(62, 64, 14)
	dc.Stroke()
	setShade(dc, darker(brassShade))
	dc.DrawCircle(62, 64, 8)
	dc.Fill()

	// valve caps
	for i := 0; i < 3; i++ {
		dc.DrawRectangle(30+float64(i)*7, 14, 3.5, 10)
		dc.Fill()
	}
}

func drawTimpaniFigure(dc *gg.Context) {
	cx := float64(spriteW) / 2

	// kettle
	setShade(dc, copperShade)
	dc.MoveTo(cx-26, 48)
	dc.LineTo(cx+26, 48)
	dc.QuadraticTo(cx+22, 84, cx, 88)
	dc.QuadraticTo(cx-22, 84, cx-26, 48)
	dc.ClosePath()
	dc.Fill()

	// head
	dc.SetRGB(0.92, 0.89, 0.80)
	dc.DrawEllipse(cx, 48, 27, 7)
	dc.Fill()
	dc.SetRGBA(0, 0, 0, 0.45)
	dc.SetLineWidth(1.2)
	dc.DrawEllipse(cx, 48, 27, 7)
	dc.Stroke()

	// crossed mallets
	dc.SetRGB(0.74, 0.66, 0.52)
	dc.SetLineWidth(2)
	dc.DrawLine(cx-20, 38, cx+9, 14)
	dc.Stroke()
	dc.DrawLine(cx+20, 38, cx-9, 14)
	dc.Stroke()
	dc.SetRGB(0.9, 0.9, 0.92)
	dc.DrawCircle(cx+9, 14, 4.5)
	dc.Fill()
	dc.DrawCircle(cx-9, 14, 4.5)
	dc.Fill()
}

func drawKeyboardFigure(dc *gg.Context) {
	// case
	dc.SetRGB(0.12, 0.10, 0.14)
	dc.DrawRoundedRectangle(10, 24, 76, 50, 4)
	dc.Fill()

	// one octave of keys
	keyW := 10.0
	for i := 0; i < 7; i++ {
		x := 13 + float64(i)*keyW
		dc.SetRGB(0.96, 0.95, 0.90)
		dc.DrawRectangle(x, 48, keyW-1, 22)
		dc.Fill()
	}
	for i, black := range []bool{true, true, false, true, true, true} {
		if !black {
			continue
		}
		x := 13 + float64(i+1)*keyW - 3.5
		dc.SetRGB(0.08, 0.08, 0.10)
		dc.DrawRectangle(x, 48, 6, 13)
		dc.Fill()
	}

	// fallboard edge
	dc.SetRGB(0.3, 0.24, 0.3)
	dc.DrawRectangle(13, 44, 70, 3)
	dc.Fill()
}

func drawHarpFigure(dc *gg.Context) {
	// pillar, neck curve, soundboard
	setShade(dc, brassShade)
	dc.SetLineWidth(4.5)
	dc.MoveTo(32, 86)
	dc.LineTo(32, 18)
	dc.QuadraticTo(52, 6, 66, 26)
	dc.LineTo(32, 86)
	dc.ClosePath()
	dc.Stroke()

	// strings run from the neck to the soundboard
	setShade(dc, stringShade)
	dc.SetLineWidth(0.8)
	for i := 1; i <= 6; i++ {
		x := 32 + float64(i)*4.8
		topY := 14 + float64(i)*1.6
		botY := 86 - (x-32)*(60.0/34.0)
		dc.DrawLine(x, topY, x, botY)
		dc.Stroke()
	}
}

func drawModuleFigure(dc *gg.Context) {
	dc.SetRGB(0.16, 0.17, 0.22)
	dc.DrawRoundedRectangle(16, 24, 64, 48, 5)
	dc.Fill()

	for i := 0; i < 3; i++ {
		dc.SetRGB(0.62, 0.64, 0.70)
		dc.DrawCircle(28+float64(i)*20, 38, 5)
		dc.Fill()
	}

	// oscilloscope window
	dc.SetRGB(0.04, 0.22, 0.15)
	dc.DrawRectangle(23, 52, 50, 14)
	dc.Fill()
	dc.SetRGB(0.3, 0.95, 0.6)
	dc.SetLineWidth(1.2)
	dc.MoveTo(25, 59)
	for i := 1; i <= 46; i++ {
		dc.LineTo(25+float64(i), 59-4*math.Sin(float64(i)*0.42))
	}
	dc.Stroke()
}

func drawNameplate(dc *gg.Context, name string) {
	y := float64(spriteH - plateH)
	dc.SetRGBA(0, 0, 0, 0.62)
	dc.DrawRoundedRectangle(4, y, spriteW-8, plateH-4, 4)
	dc.Fill()
	if len(name) > 13 {
		name = name[:12] + "~"
	}
	dc.SetFontFace(loadLabelFace())
	dc.SetRGB(0.95, 0.94, 0.88)
	dc.DrawStringAnchored(name, float64(spriteW)/2, y+float64(plateH-4)/2, 0.5, 0.5)
}

// rasterizeBow draws the bow horizontally; the stage rotates it at draw
// time.
func rasterizeBow() *ebiten.Image {
	const bw, bh = 72, 10
	dc := gg.NewContext(bw, bh)

	// hair
	setShade(dc, stringShade)
	dc.SetLineWidth(1.2)
	dc.DrawLine(8, 3, bw-4, 3)
	dc.Stroke()
	// stick
	dc.SetRGB(0.42, 0.26, 0.12)
	dc.SetLineWidth(2.2)
	dc.DrawLine(4, 6.5, bw-2, 5)
	dc.Stroke()
	// frog
	dc.SetRGB(0.10, 0.10, 0.12)
	dc.DrawRectangle(2, 4, 7, 6)
	dc.Fill()

	return ebiten.NewImageFromImage(dc.Image())
}

func rasterizePodium() *ebiten.Image {
	const pw, ph = 90, 64
	dc := gg.NewContext(pw, ph)

	// rostrum
	dc.SetRGB(0.32, 0.20, 0.12)
	dc.DrawRectangle(15, 42, 60, 18)
	dc.Fill()
	dc.SetRGB(0.40, 0.26, 0.16)
	dc.DrawRectangle(10, 38, 70, 6)
	dc.Fill()

	// music stand
	dc.SetRGB(0.20, 0.20, 0.24)
	dc.SetLineWidth(2)
	dc.DrawLine(45, 38, 45, 18)
	dc.Stroke()
	dc.SetRGB(0.26, 0.26, 0.31)
	dc.DrawRectangle(33, 6, 24, 14)
	dc.Fill()
	dc.SetRGB(0.90, 0.88, 0.80)
	dc.DrawRectangle(35, 8, 20, 10)
	dc.Fill()

	return ebiten.NewImageFromImage(dc.Image())
}
