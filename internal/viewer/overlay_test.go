package viewer

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/signature"
)

func TestComposeFiltersByPage(t *testing.T) {
	vp := NewViewport(2, DefaultZoomLimits())
	anns := []models.Annotation{
		{ID: "a", Type: models.AnnotationHighlight, X: 10, Y: 10, Page: 1, Scale: 1.5},
		{ID: "b", Type: models.AnnotationComment, X: 10, Y: 10, Page: 2, Content: "hi", Scale: 1.5},
	}
	sigs := []models.Signature{{ID: "s", X: 5, Y: 5, Page: 1, Width: 200, Height: 80, Scale: 1.5}}

	layer := Compose(vp, 918, 1188, anns, sigs, "", nil)
	require.Len(t, layer.Elements, 2)
	assert.Equal(t, "a", layer.Elements[0].ID)
	assert.Equal(t, ElementHighlight, layer.Elements[0].Kind)
	assert.Equal(t, "yellow", layer.Elements[0].Color)
	assert.Equal(t, HighlightOpacity, layer.Elements[0].Opacity)
	assert.Equal(t, Rect{X: 10, Y: 10, Width: 200, Height: 20}, layer.Elements[0].Bounds)
	assert.Equal(t, "s", layer.Elements[1].ID)
	assert.True(t, layer.Elements[1].Signature)
}

func TestComposeRescalesToCurrentZoom(t *testing.T) {
	vp := NewViewport(1, DefaultZoomLimits())
	vp.ZoomIn()
	vp.ZoomIn()
	anns := []models.Annotation{{ID: "a", Type: models.AnnotationUnderline, X: 30, Y: 60, Page: 1, Width: 150, Height: 3, Scale: 1.5}}

	layer := Compose(vp, 0, 0, anns, nil, "", nil)
	require.Len(t, layer.Elements, 1)
	b := layer.Elements[0].Bounds
	assert.InDelta(t, 40, b.X, 1e-9)
	assert.InDelta(t, 80, b.Y, 1e-9)
	assert.InDelta(t, 200, b.Width, 1e-9)
	assert.InDelta(t, 4, b.Height, 1e-9)
}

func TestComposeLegacyEntitiesAreNotRescaled(t *testing.T) {
	vp := NewViewport(1, DefaultZoomLimits())
	vp.ZoomIn()
	anns := []models.Annotation{{ID: "a", Type: models.AnnotationHighlight, X: 30, Y: 60, Page: 1}}

	layer := Compose(vp, 0, 0, anns, nil, "", nil)
	assert.Equal(t, 30.0, layer.Elements[0].Bounds.X)
	assert.Equal(t, 60.0, layer.Elements[0].Bounds.Y)
}

func TestHitTestPrefersTopmost(t *testing.T) {
	vp := NewViewport(1, DefaultZoomLimits())
	anns := []models.Annotation{{ID: "under", Type: models.AnnotationHighlight, X: 0, Y: 0, Page: 1, Scale: 1.5}}
	sigs := []models.Signature{{ID: "over", X: 50, Y: 0, Page: 1, Width: 200, Height: 80, Scale: 1.5}}
	layer := Compose(vp, 0, 0, anns, sigs, "", nil)

	hit, ok := layer.HitTest(Point{X: 60, Y: 10})
	require.True(t, ok)
	assert.Equal(t, "over", hit.Element.ID)

	hit, ok = layer.HitTest(Point{X: 20, Y: 10})
	require.True(t, ok)
	assert.Equal(t, "under", hit.Element.ID)

	_, ok = layer.HitTest(Point{X: 500, Y: 500})
	assert.False(t, ok)
}

func TestHitTestResizeHandle(t *testing.T) {
	vp := NewViewport(1, DefaultZoomLimits())
	anns := []models.Annotation{{ID: "c", Type: models.AnnotationComment, X: 100, Y: 100, Page: 1, Content: "A", Scale: 1.5}}
	layer := Compose(vp, 0, 0, anns, nil, "", nil)

	hit, ok := layer.HitTest(Point{X: 295, Y: 135})
	require.True(t, ok)
	assert.True(t, hit.ResizeHandle)

	hit, ok = layer.HitTest(Point{X: 150, Y: 110})
	require.True(t, ok)
	assert.False(t, hit.ResizeHandle)
}

func TestHitTestWidensHairlines(t *testing.T) {
	vp := NewViewport(1, DefaultZoomLimits())
	anns := []models.Annotation{{ID: "u", Type: models.AnnotationUnderline, X: 0, Y: 50, Page: 1, Scale: 1.5}}
	layer := Compose(vp, 0, 0, anns, nil, "", nil)

	_, ok := layer.HitTest(Point{X: 10, Y: 48})
	assert.True(t, ok)
}

func TestComposeAppliesDragOffset(t *testing.T) {
	vp := NewViewport(1, DefaultZoomLimits())
	anns := []models.Annotation{{ID: "c", Type: models.AnnotationComment, X: 10, Y: 10, Page: 1, Scale: 1.5}}

	moved := Compose(vp, 0, 0, anns, nil, "", &transient{id: "c", offset: Point{X: 5, Y: 7}})
	assert.Equal(t, 15.0, moved.Elements[0].Bounds.X)
	assert.Equal(t, 17.0, moved.Elements[0].Bounds.Y)
	assert.True(t, moved.Elements[0].Dragging)

	resized := Compose(vp, 0, 0, anns, nil, "", &transient{id: "c", offset: Point{X: -500}, resize: true})
	assert.Equal(t, MinCommentWidth, resized.Elements[0].Bounds.Width)
	assert.Equal(t, 10.0, resized.Elements[0].Bounds.X)
}

func TestParseColor(t *testing.T) {
	fallback := color.RGBA{A: 255}
	assert.Equal(t, namedColors["yellow"], ParseColor("Yellow", fallback))
	assert.Equal(t, color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 255}, ParseColor("#123456", fallback))
	assert.Equal(t, fallback, ParseColor("chartreuse-ish", fallback))
}

func TestPaintDrawsElements(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 400, 300))
	White(dst)

	pad := signature.NewPad(100, 40)
	pad.Begin(5, 5)
	pad.LineTo(95, 35)
	pad.End()
	img, ok, err := pad.Image()
	require.NoError(t, err)
	require.True(t, ok)

	layer := Layer{Elements: []Element{
		{Kind: ElementUnderline, Bounds: Rect{X: 10, Y: 10, Width: 100, Height: 2}, Color: "blue", Opacity: 1},
		{Kind: ElementSignature, Bounds: Rect{X: 200, Y: 100, Width: 100, Height: 40}, ImageData: img, Opacity: 1},
	}}
	Paint(dst, layer)

	assert.Equal(t, namedColors["blue"], dst.RGBAAt(20, 10))
	assert.True(t, signature.HasInk(dst.SubImage(image.Rect(200, 100, 300, 140))))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, dst.RGBAAt(390, 290))
}
