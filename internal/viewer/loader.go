package viewer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
)

type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
)

const wordML = "wordprocessingml"

// DetectKind picks the loading path from the source URL and a content type
// hint. Anything that does not look like DOCX is treated as PDF.
func DetectKind(url, contentType string) Kind {
	u := strings.ToLower(url)
	if strings.Contains(u, ".docx") || strings.Contains(u, wordML) {
		return KindDOCX
	}
	if strings.Contains(strings.ToLower(contentType), wordML) {
		return KindDOCX
	}
	return KindPDF
}

// Fetcher retrieves the raw bytes behind a document URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// Converter turns DOCX bytes into an HTML fragment.
type Converter interface {
	Convert(data []byte) (string, error)
}

// Loaded is a document ready for viewing: a parsed PDF or converted HTML.
type Loaded struct {
	Kind Kind
	PDF  PDFDocument
	HTML string
}

type Loader struct {
	fetcher   Fetcher
	converter Converter
	readiness *Readiness
	timeout   time.Duration
	logger    *zap.Logger
}

func NewLoader(fetcher Fetcher, converter Converter, readiness *Readiness, timeout time.Duration, logger *zap.Logger) *Loader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Loader{
		fetcher:   fetcher,
		converter: converter,
		readiness: readiness,
		timeout:   timeout,
		logger:    logger.With(zap.String("service", "viewer_loader")),
	}
}

// Load fetches url and prepares it for the detected kind. The PDF path waits
// for the rendering capability before parsing.
func (l *Loader) Load(ctx context.Context, url, contentTypeHint string) (*Loaded, error) {
	kind := DetectKind(url, contentTypeHint)

	data, contentType, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		if apperr.Classify(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.Transient("download document", err)
	}
	if kind == KindPDF && contentTypeHint == "" {
		kind = DetectKind(url, contentType)
	}

	if kind == KindDOCX {
		html, err := l.converter.Convert(data)
		if err != nil {
			l.logger.Warn("DOCX conversion failed", zap.String("url", url), zap.Error(err))
			return nil, apperr.Format("DOCX", err)
		}
		return &Loaded{Kind: KindDOCX, HTML: html}, nil
	}

	capability, err := l.readiness.Wait(ctx, l.timeout)
	if err != nil {
		return nil, apperr.Transient("PDF library", err)
	}
	doc, err := capability.Open(data)
	if err != nil {
		l.logger.Warn("PDF parse failed", zap.String("url", url), zap.Error(err))
		return nil, apperr.Format("PDF", err)
	}
	if doc.NumPages() < 1 {
		return nil, apperr.Format("PDF", fmt.Errorf("document has no pages"))
	}

	l.logger.Debug("Document loaded", zap.String("kind", string(kind)), zap.Int("pages", doc.NumPages()))
	return &Loaded{Kind: KindPDF, PDF: doc}, nil
}
