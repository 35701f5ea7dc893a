package viewer

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"time"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

// Capability is the external PDF library: it parses bytes into pages.
type Capability interface {
	Open(data []byte) (PDFDocument, error)
}

type PDFDocument interface {
	NumPages() int
	// Page returns the 1-based page n.
	Page(n int) (PDFPage, error)
}

type PDFPage interface {
	// Size is the page size at scale 1.
	Size() (width, height float64)
	// Draw paints the page content into dst, which is already sized to the
	// page at scale.
	Draw(dst draw.Image, scale float64) error
}

// Surface is one rendered page.
type Surface struct {
	Image  *image.RGBA
	Page   int
	Scale  float64
	Width  int
	Height int
}

type Renderer struct {
	metrics *metrics.MetricsCollector
}

func NewRenderer(m *metrics.MetricsCollector) *Renderer {
	return &Renderer{metrics: m}
}

// PageSize returns the pixel size of page n at scale without drawing it.
func PageSize(doc PDFDocument, n int, scale float64) (int, int, error) {
	page, err := doc.Page(n)
	if err != nil {
		return 0, 0, apperr.Format("PDF page", err)
	}
	w, h := page.Size()
	return int(math.Ceil(w * scale)), int(math.Ceil(h * scale)), nil
}

// RenderPage draws page n of doc at scale into a fresh surface.
func (r *Renderer) RenderPage(doc PDFDocument, n int, scale float64) (*Surface, error) {
	start := time.Now()
	defer r.metrics.Since("page_render", start)

	if n < 1 || n > doc.NumPages() {
		return nil, fmt.Errorf("page %d out of range [1, %d]: %w", n, doc.NumPages(), apperr.ErrInvalid)
	}
	page, err := doc.Page(n)
	if err != nil {
		return nil, apperr.Format("PDF page", err)
	}
	w, h := page.Size()
	width, height := int(math.Ceil(w*scale)), int(math.Ceil(h*scale))
	if width <= 0 || height <= 0 {
		return nil, apperr.Format("PDF page", fmt.Errorf("page %d has no area", n))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if err := page.Draw(img, scale); err != nil {
		return nil, apperr.Format("PDF page", err)
	}
	return &Surface{Image: img, Page: n, Scale: scale, Width: width, Height: height}, nil
}
