package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/signature"
)

func testSignature(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 16))
	draw.Draw(img, image.Rect(4, 6, 36, 10), image.NewUniform(color.Black), image.Point{}, draw.Src)
	dataURL, err := signature.EncodePNG(img)
	require.NoError(t, err)
	return dataURL
}

type fakePage struct{ w, h float64 }

func (p fakePage) Size() (float64, float64) { return p.w, p.h }
func (p fakePage) Draw(dst draw.Image, _ float64) error { White(dst); return nil }

type fakeDoc struct{ pages []fakePage }

func (d fakeDoc) NumPages() int { return len(d.pages) }

func (d fakeDoc) Page(n int) (PDFPage, error) {
	if n < 1 || n > len(d.pages) {
		return nil, fmt.Errorf("no page %d", n)
	}
	return d.pages[n-1], nil
}

func letterDoc(pages int) fakeDoc {
	d := fakeDoc{}
	for i := 0; i < pages; i++ {
		d.pages = append(d.pages, fakePage{w: 612, h: 792})
	}
	return d
}

type fakeCapability struct {
	doc PDFDocument
	err error
}

func (c fakeCapability) Open([]byte) (PDFDocument, error) { return c.doc, c.err }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type recordingSink struct {
	anns      [][]models.Annotation
	sigs      [][]models.Signature
	immediate []bool
}

func (r *recordingSink) SaveAnnotations(anns []models.Annotation) { r.anns = append(r.anns, anns) }

func (r *recordingSink) SaveSignatures(sigs []models.Signature, immediate bool) {
	r.sigs = append(r.sigs, sigs)
	r.immediate = append(r.immediate, immediate)
}

type fakeSaver struct {
	mu    sync.Mutex
	anns  map[string][]models.Annotation
	sigs  map[string][]models.Signature
	calls int
	fail  error
	block chan struct{}
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{anns: map[string][]models.Annotation{}, sigs: map[string][]models.Signature{}}
}

func (f *fakeSaver) SaveAnnotations(ctx context.Context, id string, anns []models.Annotation) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	f.anns[id] = anns
	return nil
}

func (f *fakeSaver) SaveSignatures(_ context.Context, id string, sigs []models.Signature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	f.sigs[id] = sigs
	return nil
}

func (f *fakeSaver) annotations(id string) []models.Annotation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.anns[id]
}

func (f *fakeSaver) signatures(id string) []models.Signature {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sigs[id]
}

type fakeFetcher struct {
	data        []byte
	contentType string
	err         error
}

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	return f.data, f.contentType, f.err
}

type fakeConverter struct{}

func (fakeConverter) Convert(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty archive")
	}
	return "<p>" + string(data) + "</p>", nil
}
