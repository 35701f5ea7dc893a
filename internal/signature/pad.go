package signature

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

const (
	DefaultPadWidth  = 500
	DefaultPadHeight = 200
	MaxPadWidth      = 2000
	MaxPadHeight     = 1000
	MaxStrokePoints  = 20000
	strokeWidth      = 2.0
)

var ErrTooManyPoints = errors.New("signature has too many points")

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pad collects pen strokes. A pen-down starts a new stroke; moves extend it.
// Points past MaxStrokePoints are dropped.
type Pad struct {
	width, height int
	strokes       [][]Point
	points        int
	drawing       bool
}

// NewPad sizes the canvas. Unset dimensions fall back to the default pad and
// oversized ones are clamped to MaxPadWidth x MaxPadHeight.
func NewPad(width, height int) *Pad {
	if width <= 0 || height <= 0 {
		width, height = DefaultPadWidth, DefaultPadHeight
	}
	width = min(width, MaxPadWidth)
	height = min(height, MaxPadHeight)
	return &Pad{width: width, height: height}
}

// Size is the canvas size in pixels.
func (p *Pad) Size() (int, int) { return p.width, p.height }

func (p *Pad) Begin(x, y float64) {
	if p.points >= MaxStrokePoints {
		return
	}
	p.strokes = append(p.strokes, []Point{{X: x, Y: y}})
	p.points++
	p.drawing = true
}

func (p *Pad) LineTo(x, y float64) {
	if !p.drawing || len(p.strokes) == 0 || p.points >= MaxStrokePoints {
		return
	}
	last := len(p.strokes) - 1
	p.strokes[last] = append(p.strokes[last], Point{X: x, Y: y})
	p.points++
}

func (p *Pad) End() { p.drawing = false }

func (p *Pad) Clear() {
	p.strokes = nil
	p.points = 0
	p.drawing = false
}

// AddStroke appends a complete stroke, as sent by a client.
func (p *Pad) AddStroke(points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if p.points+len(points) > MaxStrokePoints {
		return ErrTooManyPoints
	}
	p.strokes = append(p.strokes, append([]Point(nil), points...))
	p.points += len(points)
	return nil
}

// Raster draws the strokes in black on a transparent canvas.
func (p *Pad) Raster() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	if len(p.strokes) == 0 {
		return dst
	}

	z := vector.NewRasterizer(p.width, p.height)
	z.DrawOp = draw.Over
	for _, stroke := range p.strokes {
		if len(stroke) == 1 {
			dot(z, stroke[0])
			continue
		}
		for i := 1; i < len(stroke); i++ {
			segment(z, stroke[i-1], stroke[i])
		}
	}
	z.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{})
	return dst
}

// Image returns the pad as a PNG data URL. ok is false when nothing visible
// has been drawn, in which case no image is produced.
func (p *Pad) Image() (dataURL string, ok bool, err error) {
	img := p.Raster()
	if !HasInk(img) {
		return "", false, nil
	}
	dataURL, err = EncodePNG(img)
	if err != nil {
		return "", false, err
	}
	return dataURL, true, nil
}

// HasInk reports whether any pixel is visible and not near-white.
func HasInk(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A > 0 && (c.R < 250 || c.G < 250 || c.B < 250) {
				return true
			}
		}
	}
	return false
}

func segment(z *vector.Rasterizer, a, b Point) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		dot(z, a)
		return
	}
	// half-width normal, plus a half-width extension along the segment
	nx, ny := -dy/length*strokeWidth/2, dx/length*strokeWidth/2
	ex, ey := dx/length*strokeWidth/2, dy/length*strokeWidth/2

	z.MoveTo(f32(a.X-ex+nx), f32(a.Y-ey+ny))
	z.LineTo(f32(b.X+ex+nx), f32(b.Y+ey+ny))
	z.LineTo(f32(b.X+ex-nx), f32(b.Y+ey-ny))
	z.LineTo(f32(a.X-ex-nx), f32(a.Y-ey-ny))
	z.ClosePath()
}

func dot(z *vector.Rasterizer, p Point) {
	h := strokeWidth / 2
	// same winding as segment so overlapping paths do not cancel
	z.MoveTo(f32(p.X-h), f32(p.Y+h))
	z.LineTo(f32(p.X+h), f32(p.Y+h))
	z.LineTo(f32(p.X+h), f32(p.Y-h))
	z.LineTo(f32(p.X-h), f32(p.Y-h))
	z.ClosePath()
}

func f32(v float64) float32 { return float32(v) }
