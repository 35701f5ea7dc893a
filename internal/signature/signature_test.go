package signature

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlankPadYieldsNoImage(t *testing.T) {
	pad := NewPad(100, 50)
	img, ok, err := pad.Image()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, img)
}

func TestClearedPadYieldsNoImage(t *testing.T) {
	pad := NewPad(100, 50)
	pad.Begin(10, 10)
	pad.LineTo(80, 40)
	pad.End()
	pad.Clear()

	_, ok, err := pad.Image()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDrawnPadRoundTrip(t *testing.T) {
	pad := NewPad(100, 50)
	pad.Begin(10, 10)
	pad.LineTo(80, 40)
	pad.End()

	dataURL, ok, err := pad.Image()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, dataURL, "data:image/png;base64,")

	img, err := DecodeDataURL(dataURL)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), img.Bounds())
	assert.True(t, HasInk(img))
}

func TestLineToWithoutBeginIsIgnored(t *testing.T) {
	pad := NewPad(100, 50)
	pad.LineTo(5, 5)
	assert.False(t, HasInk(pad.Raster()))
}

func TestHasInkIgnoresWhite(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 252, G: 252, B: 252, A: 255})
		}
	}
	assert.False(t, HasInk(img))
	img.Set(2, 2, color.RGBA{R: 10, G: 10, B: 10, A: 255})
	assert.True(t, HasInk(img))
}

func TestTypedRender(t *testing.T) {
	dataURL, err := Typed{Name: "  John Appleseed  ", FontSize: 64}.Render()
	require.NoError(t, err)

	img, err := DecodeDataURL(dataURL)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, TypedWidth, TypedHeight), img.Bounds())
	assert.True(t, HasInk(img))
}

func TestTypedRequiresName(t *testing.T) {
	_, err := Typed{Name: "   "}.Render()
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRequestRequiresConsent(t *testing.T) {
	_, _, err := Request{Mode: ModeType, Name: "Ada"}.Render()
	assert.ErrorIs(t, err, ErrConsentRequired)
}

func TestRequestDrawWithoutStrokes(t *testing.T) {
	_, ok, err := Request{Mode: ModeDraw, Consent: true}.Render()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDataURLBytes(t *testing.T) {
	raw, mediaType, err := DataURLBytes("data:image/png;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, []byte("hi"), raw)

	_, _, err = DataURLBytes("http://example.com/x.png")
	assert.ErrorIs(t, err, ErrInvalidDataURL)
}

func TestPadClampsSize(t *testing.T) {
	w, h := NewPad(1<<20, 1<<20).Size()
	assert.Equal(t, MaxPadWidth, w)
	assert.Equal(t, MaxPadHeight, h)

	w, h = NewPad(0, 300).Size()
	assert.Equal(t, DefaultPadWidth, w)
	assert.Equal(t, DefaultPadHeight, h)

	assert.Equal(t, image.Rect(0, 0, MaxPadWidth, 10), NewPad(5000, 10).Raster().Bounds())
}

func TestPadLimitsPoints(t *testing.T) {
	pad := NewPad(100, 50)
	require.NoError(t, pad.AddStroke(make([]Point, MaxStrokePoints-1)))
	assert.ErrorIs(t, pad.AddStroke(make([]Point, 2)), ErrTooManyPoints)

	pad.Begin(1, 1)
	pad.LineTo(2, 2)
	assert.Equal(t, MaxStrokePoints, pad.points)
}

func TestRequestRejectsOversizedInput(t *testing.T) {
	_, _, err := Request{Mode: ModeType, Consent: true, Name: strings.Repeat("a", MaxNameLength+1)}.Render()
	assert.ErrorIs(t, err, ErrNameTooLong)

	strokes := [][]Point{make([]Point, MaxStrokePoints), {{X: 1, Y: 1}}}
	_, _, err = Request{Mode: ModeDraw, Consent: true, Strokes: strokes}.Render()
	assert.ErrorIs(t, err, ErrTooManyPoints)
}

func TestValidateDataURL(t *testing.T) {
	small, err := EncodePNG(image.NewRGBA(image.Rect(0, 0, 20, 10)))
	require.NoError(t, err)
	assert.NoError(t, Validate(small))

	assert.ErrorIs(t, Validate("not a data url"), ErrInvalidDataURL)
	assert.ErrorIs(t, Validate("data:image/png;base64,AAAA"), ErrInvalidDataURL)

	huge, err := EncodePNG(image.NewGray(image.Rect(0, 0, MaxImageWidth+1, 1)))
	require.NoError(t, err)
	assert.ErrorIs(t, Validate(huge), ErrInvalidDataURL)
	_, err = DecodeDataURL(huge)
	assert.ErrorIs(t, err, ErrInvalidDataURL)
}
