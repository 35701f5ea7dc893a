package models

type AnnotationType string

const (
	AnnotationComment   AnnotationType = "comment"
	AnnotationHighlight AnnotationType = "highlight"
	AnnotationUnderline AnnotationType = "underline"
	AnnotationPen       AnnotationType = "pen"
)

func (t AnnotationType) Valid() bool {
	switch t {
	case AnnotationComment, AnnotationHighlight, AnnotationUnderline, AnnotationPen:
		return true
	}
	return false
}

type FontStyle string

const (
	FontNormal FontStyle = "normal"
	FontItalic FontStyle = "italic"
)

// Annotation is a user mark anchored to a page. X, Y, Width and Height are
// page-local pixels at Scale; a zero Scale means the record predates scale
// tracking and is drawn unscaled.
type Annotation struct {
	ID        string         `json:"id"`
	Type      AnnotationType `json:"type"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Page      int            `json:"page"`
	Content   string         `json:"content,omitempty"`
	Color     string         `json:"color,omitempty"`
	Width     float64        `json:"width,omitempty"`
	Height    float64        `json:"height,omitempty"`
	FontStyle FontStyle      `json:"fontStyle,omitempty"`
	Rotation  int            `json:"rotation,omitempty"`
	Scale     float64        `json:"scale,omitempty"`
}

// Signature is a placed signature image. Width and Height are always set.
type Signature struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Page      int     `json:"page"`
	ImageData string  `json:"imageData"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Scale     float64 `json:"scale,omitempty"`
}
