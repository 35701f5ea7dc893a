// Package finalize burns placed signatures into a copy of the source PDF.
package finalize

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/signature"
)

// Box is a signature rectangle in PDF user space: origin bottom-left,
// units in points.
type Box struct {
	X, Y          float64
	Width, Height float64
}

// Place converts a signature recorded in page-local pixels (origin top-left,
// at the signature's scale) into PDF space for a page pageHeight points tall.
func Place(sig models.Signature, pageHeight float64) Box {
	scale := sig.Scale
	if scale <= 0 {
		scale = 1
	}
	w := sig.Width / scale
	h := sig.Height / scale
	return Box{
		X:      sig.X / scale,
		Y:      pageHeight - sig.Y/scale - h,
		Width:  w,
		Height: h,
	}
}

type Stamper struct {
	conf   *model.Configuration
	logger *zap.Logger
}

func NewStamper(logger *zap.Logger) *Stamper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stamper{
		conf:   model.NewDefaultConfiguration(),
		logger: logger.With(zap.String("service", "finalize")),
	}
}

// Stamp returns a copy of src with every signature drawn on its page.
// Signatures pointing at pages the document does not have are skipped.
func (s *Stamper) Stamp(src []byte, sigs []models.Signature) ([]byte, error) {
	dims, err := pdfapi.PageDims(bytes.NewReader(src), s.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}

	dir, err := os.MkdirTemp("", "minuty-stamp-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(dir)

	out := src
	for i, sig := range sigs {
		if sig.Page < 1 || sig.Page > len(dims) {
			s.logger.Warn("Skipping signature on missing page", zap.String("signature_id", sig.ID), zap.Int("page", sig.Page))
			continue
		}
		next, err := s.stampOne(out, dir, i, sig, dims[sig.Page-1])
		if err != nil {
			return nil, fmt.Errorf("failed to stamp signature %s: %w", sig.ID, err)
		}
		out = next
	}
	return out, nil
}

func (s *Stamper) stampOne(src []byte, dir string, i int, sig models.Signature, dim types.Dim) ([]byte, error) {
	raw, mediaType, err := signature.DataURLBytes(sig.ImageData)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if cfg.Width == 0 {
		return nil, signature.ErrInvalidDataURL
	}

	ext := ".png"
	if mediaType == "image/jpeg" {
		ext = ".jpg"
	}
	imgPath := filepath.Join(dir, fmt.Sprintf("sig-%d%s", i, ext))
	if err := os.WriteFile(imgPath, raw, 0o600); err != nil {
		return nil, err
	}

	box := Place(sig, dim.Height)
	desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:%.4f abs, rot:0, op:1", box.X, box.Y, box.Width/float64(cfg.Width))
	wm, err := pdfcpu.ParseImageWatermarkDetails(imgPath, desc, true, types.POINTS)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	pages := []string{fmt.Sprintf("%d", sig.Page)}
	if err := pdfapi.AddWatermarks(bytes.NewReader(src), &buf, pages, wm, s.conf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
