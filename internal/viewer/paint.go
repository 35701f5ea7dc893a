package viewer

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/Essu-man/Minuty/internal/signature"
)

var namedColors = map[string]color.RGBA{
	"yellow": {R: 255, G: 235, B: 59, A: 255},
	"blue":   {R: 33, G: 150, B: 243, A: 255},
	"red":    {R: 244, G: 67, B: 54, A: 255},
	"green":  {R: 76, G: 175, B: 80, A: 255},
	"orange": {R: 255, G: 152, B: 0, A: 255},
	"pink":   {R: 233, G: 30, B: 99, A: 255},
	"purple": {R: 156, G: 39, B: 176, A: 255},
	"black":  {R: 0, G: 0, B: 0, A: 255},
}

var commentFill = color.RGBA{R: 254, G: 249, B: 195, A: 255}

// ParseColor accepts a named color or #rrggbb; unknown values fall back.
func ParseColor(s string, fallback color.RGBA) color.RGBA {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c
	}
	if len(s) == 7 && s[0] == '#' {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
		}
	}
	return fallback
}

// Paint composites the overlay layer onto the page surface. Comment text is
// not typeset; comments are drawn as their box.
func Paint(dst draw.Image, layer Layer) {
	for _, el := range layer.Elements {
		r := pixelRect(el.Bounds).Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}
		switch el.Kind {
		case ElementSignature:
			img, err := signature.DecodeDataURL(el.ImageData)
			if err != nil {
				continue
			}
			xdraw.CatmullRom.Scale(dst, pixelRect(el.Bounds), img, img.Bounds(), xdraw.Over, nil)
		case ElementComment:
			draw.Draw(dst, r, image.NewUniform(commentFill), image.Point{}, draw.Over)
		default:
			c := ParseColor(el.Color, namedColors["black"])
			fill(dst, r, c, el.Opacity)
		}
	}
}

// White paints the whole surface white, for pages drawn without content.
func White(dst draw.Image) {
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
}

func fill(dst draw.Image, r image.Rectangle, c color.RGBA, opacity float64) {
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
}

func pixelRect(b Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.Width)),
		int(math.Ceil(b.Y+b.Height)),
	)
}
