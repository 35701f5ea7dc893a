package viewer

import "math"

const (
	DefaultScale = 1.5
	MinScale     = 0.5
	MaxScale     = 3.0
	ZoomStep     = 0.25
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// ZoomLimits bounds the viewport scale.
type ZoomLimits struct {
	Default float64
	Min     float64
	Max     float64
	Step    float64
}

func DefaultZoomLimits() ZoomLimits {
	return ZoomLimits{Default: DefaultScale, Min: MinScale, Max: MaxScale, Step: ZoomStep}
}

// Viewport tracks zoom and the displayed page. Origin is the screen position
// of the rendered surface's top-left corner; page-local coordinates are
// screen coordinates minus Origin.
type Viewport struct {
	Scale       float64 `json:"scale"`
	CurrentPage int     `json:"currentPage"`
	PageCount   int     `json:"pageCount"`
	Origin      Point   `json:"origin"`

	limits ZoomLimits
}

func NewViewport(pageCount int, limits ZoomLimits) *Viewport {
	if limits.Step <= 0 {
		limits = DefaultZoomLimits()
	}
	v := &Viewport{
		Scale:       limits.Default,
		CurrentPage: 1,
		PageCount:   pageCount,
		limits:      limits,
	}
	if pageCount < 1 {
		v.CurrentPage = 0
	}
	return v
}

func (v *Viewport) clampScale(s float64) float64 {
	// avoid drift from repeated float steps
	s = math.Round(s*1000) / 1000
	return math.Max(v.limits.Min, math.Min(v.limits.Max, s))
}

func (v *Viewport) ZoomIn()    { v.Scale = v.clampScale(v.Scale + v.limits.Step) }
func (v *Viewport) ZoomOut()   { v.Scale = v.clampScale(v.Scale - v.limits.Step) }
func (v *Viewport) ResetZoom() { v.Scale = v.limits.Default }

// GoToPage clamps n into [1, PageCount].
func (v *Viewport) GoToPage(n int) {
	if v.PageCount < 1 {
		return
	}
	if n < 1 {
		n = 1
	}
	if n > v.PageCount {
		n = v.PageCount
	}
	v.CurrentPage = n
}

func (v *Viewport) GoToNextPage()     { v.GoToPage(v.CurrentPage + 1) }
func (v *Viewport) GoToPreviousPage() { v.GoToPage(v.CurrentPage - 1) }

func (v *Viewport) SetOrigin(p Point) { v.Origin = p }

// ToPageLocal converts a screen position into page-local pixels at the
// current scale.
func (v *Viewport) ToPageLocal(screen Point) Point {
	return screen.Sub(v.Origin)
}

// rescale converts a length captured at scale from into the current scale.
// A zero from means the value was captured without scale tracking and is
// used as is.
func (v *Viewport) rescale(value, from float64) float64 {
	if from <= 0 || from == v.Scale {
		return value
	}
	return value * v.Scale / from
}

// unscale converts a current-scale delta back into units captured at from.
func (v *Viewport) unscale(delta, from float64) float64 {
	if from <= 0 || from == v.Scale {
		return delta
	}
	return delta * from / v.Scale
}
