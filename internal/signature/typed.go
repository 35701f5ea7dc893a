package signature

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"unicode/utf8"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	TypedWidth      = 600
	TypedHeight     = 200
	DefaultFontSize = 64
	MinFontSize     = 24
	MaxFontSize     = 120
	MaxNameLength   = 100
	typedMargin     = 20
)

var (
	ErrEmptyName       = errors.New("full name is required")
	ErrNameTooLong     = errors.New("full name is too long")
	ErrConsentRequired = errors.New("consent to sign electronically is required")
)

// Typed is a signature rendered from a typed full name.
type Typed struct {
	Name     string
	FontSize int
}

// Render draws the trimmed name centred on a 600x200 canvas. The bitmap face
// is drawn at its native size and then scaled to FontSize.
func (t Typed) Render() (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	size := t.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}
	if size < MinFontSize {
		size = MinFontSize
	}
	if size > MaxFontSize {
		size = MaxFontSize
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Face: face, Src: image.NewUniform(color.Black)}
	textW := d.MeasureString(name).Ceil()
	metrics := face.Metrics()
	textH := (metrics.Ascent + metrics.Descent).Ceil()

	glyphs := image.NewRGBA(image.Rect(0, 0, textW, textH))
	d.Dst = glyphs
	d.Dot = fixed.Point26_6{X: 0, Y: metrics.Ascent}
	d.DrawString(name)

	scale := float64(size) / float64(textH)
	outW, outH := float64(textW)*scale, float64(textH)*scale
	if maxW := float64(TypedWidth - 2*typedMargin); outW > maxW {
		outH *= maxW / outW
		outW = maxW
	}

	canvas := image.NewRGBA(image.Rect(0, 0, TypedWidth, TypedHeight))
	x0 := (TypedWidth - int(outW)) / 2
	y0 := (TypedHeight - int(outH)) / 2
	target := image.Rect(x0, y0, x0+int(outW), y0+int(outH))
	xdraw.CatmullRom.Scale(canvas, target, glyphs, glyphs.Bounds(), xdraw.Over, nil)

	return EncodePNG(canvas)
}

// Mode selects how a capture request produces its image.
type Mode string

const (
	ModeDraw Mode = "draw"
	ModeType Mode = "type"
)

// Request is a signature capture as submitted by a client.
type Request struct {
	Mode     Mode      `json:"mode"`
	Consent  bool      `json:"consent"`
	Name     string    `json:"name,omitempty"`
	FontSize int       `json:"fontSize,omitempty"`
	Strokes  [][]Point `json:"strokes,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
}

// Render produces the captured image. ok is false when a drawn pad has no
// ink; that is not an error.
func (r Request) Render() (dataURL string, ok bool, err error) {
	if !r.Consent {
		return "", false, ErrConsentRequired
	}
	if r.Mode == ModeType {
		dataURL, err = Typed{Name: r.Name, FontSize: r.FontSize}.Render()
		if err != nil {
			return "", false, err
		}
		return dataURL, true, nil
	}

	pad := NewPad(r.Width, r.Height)
	for _, s := range r.Strokes {
		if err := pad.AddStroke(s); err != nil {
			return "", false, err
		}
	}
	return pad.Image()
}
