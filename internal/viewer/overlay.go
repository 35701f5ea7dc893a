package viewer

import (
	"github.com/Essu-man/Minuty/internal/db/models"
)

const (
	CommentMaxWidth  = 200.0
	CommentHitHeight = 40.0
	HighlightWidth   = 200.0
	HighlightHeight  = 20.0
	HighlightOpacity = 0.3
	UnderlineWidth   = 200.0
	UnderlineHeight  = 2.0
	SignatureWidth   = 200.0
	SignatureHeight  = 80.0
	MinCommentWidth  = 20.0
	ResizeHandleSize = 10.0
	minHitThickness  = 6.0
	DefaultHighlight = "yellow"
	DefaultUnderline = "blue"
	DefaultPenColor  = "black"
)

type ElementKind string

const (
	ElementComment   ElementKind = "comment"
	ElementHighlight ElementKind = "highlight"
	ElementUnderline ElementKind = "underline"
	ElementPen       ElementKind = "pen"
	ElementSignature ElementKind = "signature"
)

// Element is one positioned overlay marker, in current-scale page pixels.
type Element struct {
	ID        string      `json:"id"`
	Kind      ElementKind `json:"kind"`
	Bounds    Rect        `json:"bounds"`
	Color     string      `json:"color,omitempty"`
	Opacity   float64     `json:"opacity"`
	Content   string      `json:"content,omitempty"`
	FontStyle string      `json:"fontStyle,omitempty"`
	Rotation  int         `json:"rotation,omitempty"`
	ImageData string      `json:"imageData,omitempty"`
	Signature bool        `json:"signature"`
	Resizable bool        `json:"resizable"`
	Editing   bool        `json:"editing,omitempty"`
	Dragging  bool        `json:"dragging,omitempty"`
}

// ResizeHandle is the bottom-right grip of a resizable element.
func (e Element) ResizeHandle() Rect {
	return Rect{
		X:      e.Bounds.X + e.Bounds.Width - ResizeHandleSize,
		Y:      e.Bounds.Y + e.Bounds.Height - ResizeHandleSize,
		Width:  ResizeHandleSize,
		Height: ResizeHandleSize,
	}
}

// hitBounds widens hairline elements so they can be grabbed.
func (e Element) hitBounds() Rect {
	b := e.Bounds
	if b.Height < minHitThickness {
		pad := (minHitThickness - b.Height) / 2
		b.Y -= pad
		b.Height = minHitThickness
	}
	return b
}

// Layer is the overlay for one rendered page; its size matches the surface.
type Layer struct {
	Page     int       `json:"page"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Elements []Element `json:"elements"`
}

// Hit describes what a point on the layer landed on.
type Hit struct {
	Element      Element
	Index        int
	ResizeHandle bool
}

// HitTest returns the topmost element under p. Elements later in the slice
// are drawn above earlier ones.
func (l Layer) HitTest(p Point) (Hit, bool) {
	for i := len(l.Elements) - 1; i >= 0; i-- {
		el := l.Elements[i]
		if !el.hitBounds().Contains(p) {
			continue
		}
		return Hit{
			Element:      el,
			Index:        i,
			ResizeHandle: el.Resizable && el.ResizeHandle().Contains(p),
		}, true
	}
	return Hit{}, false
}

// Find returns the element with id.
func (l Layer) Find(id string) (Element, bool) {
	for _, el := range l.Elements {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}

// transient describes a drag in flight; it only shifts the drawn position.
type transient struct {
	id     string
	offset Point
	resize bool
}

// Compose derives the overlay layer for the viewport's current page.
// Annotations are drawn first, in collection order, then signatures.
func Compose(vp *Viewport, width, height int, anns []models.Annotation, sigs []models.Signature, editingID string, drag *transient) Layer {
	layer := Layer{Page: vp.CurrentPage, Width: width, Height: height, Elements: []Element{}}

	for _, a := range anns {
		if a.Page != vp.CurrentPage {
			continue
		}
		el := annotationElement(vp, a)
		el.Editing = a.ID == editingID
		applyTransient(&el, drag)
		layer.Elements = append(layer.Elements, el)
	}
	for _, s := range sigs {
		if s.Page != vp.CurrentPage {
			continue
		}
		el := Element{
			ID:        s.ID,
			Kind:      ElementSignature,
			Bounds:    scaledRect(vp, s.X, s.Y, s.Width, s.Height, s.Scale),
			Opacity:   1,
			ImageData: s.ImageData,
			Signature: true,
		}
		applyTransient(&el, drag)
		layer.Elements = append(layer.Elements, el)
	}
	return layer
}

func applyTransient(el *Element, drag *transient) {
	if drag == nil || drag.id != el.ID {
		return
	}
	el.Dragging = true
	if drag.resize {
		el.Bounds.Width = maxf(MinCommentWidth, el.Bounds.Width+drag.offset.X)
		return
	}
	el.Bounds.X += drag.offset.X
	el.Bounds.Y += drag.offset.Y
}

func annotationElement(vp *Viewport, a models.Annotation) Element {
	el := Element{ID: a.ID, Opacity: 1}
	switch a.Type {
	case models.AnnotationComment:
		el.Kind = ElementComment
		el.Content = a.Content
		el.FontStyle = string(a.FontStyle)
		el.Rotation = a.Rotation
		el.Resizable = true
		el.Bounds = scaledRect(vp, a.X, a.Y, orDefault(a.Width, CommentMaxWidth), orDefault(a.Height, CommentHitHeight), a.Scale)
	case models.AnnotationHighlight:
		el.Kind = ElementHighlight
		el.Color = orColor(a.Color, DefaultHighlight)
		el.Opacity = HighlightOpacity
		el.Bounds = scaledRect(vp, a.X, a.Y, orDefault(a.Width, HighlightWidth), orDefault(a.Height, HighlightHeight), a.Scale)
	case models.AnnotationUnderline:
		el.Kind = ElementUnderline
		el.Color = orColor(a.Color, DefaultUnderline)
		el.Bounds = scaledRect(vp, a.X, a.Y, orDefault(a.Width, UnderlineWidth), orDefault(a.Height, UnderlineHeight), a.Scale)
	default:
		el.Kind = ElementPen
		el.Color = orColor(a.Color, DefaultPenColor)
		el.Bounds = scaledRect(vp, a.X, a.Y, orDefault(a.Width, UnderlineWidth), orDefault(a.Height, UnderlineHeight), a.Scale)
	}
	return el
}

func scaledRect(vp *Viewport, x, y, w, h, from float64) Rect {
	return Rect{
		X:      vp.rescale(x, from),
		Y:      vp.rescale(y, from),
		Width:  vp.rescale(w, from),
		Height: vp.rescale(h, from),
	}
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func orColor(c, def string) string {
	if c == "" {
		return def
	}
	return c
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
