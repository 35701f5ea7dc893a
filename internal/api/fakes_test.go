package api

import (
	"bytes"
	"context"
	"image/draw"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/blob"
	"github.com/Essu-man/Minuty/internal/db"
	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/viewer"
)

type memDocuments struct {
	mu   sync.Mutex
	docs map[string]models.Document
}

func (m *memDocuments) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = *doc
	return nil
}

func (m *memDocuments) Get(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &d, nil
}

func (m *memDocuments) ListByUser(_ context.Context, userID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocuments) Update(_ context.Context, id string, patch models.DocumentPatch) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if err := patch.Apply(&d); err != nil {
		return nil, err
	}
	d.UpdatedAt = time.Now()
	m.docs[id] = d
	return &d, nil
}

func (m *memDocuments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return db.ErrEmailTaken
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) TouchLogin(context.Context, string, time.Time) error { return nil }

type memBlobs struct {
	mu         sync.Mutex
	configured bool
	objects    map[string][]byte
}

func (m *memBlobs) Configured() bool { return m.configured }

func (m *memBlobs) Owns(ref string) (string, bool) {
	const prefix = "https://files.example.com/b/bucket/o/"
	if !m.configured || !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	path, err := blob.ResolveReference(ref)
	return path, err == nil
}

func (m *memBlobs) ref(path string) string {
	return "https://files.example.com/b/bucket/o/" + strings.ReplaceAll(path, "/", "%2F")
}

func (m *memBlobs) Upload(_ context.Context, r io.ReadSeeker, size int64, ownerID, fileName, contentType string, progress func(float64)) (*blob.Object, error) {
	if !m.configured {
		return nil, apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	path := ownerID + "/1700000000000_" + fileName
	m.mu.Lock()
	m.objects[path] = data
	m.mu.Unlock()
	if progress != nil {
		progress(100)
	}
	return &blob.Object{Path: path, Reference: m.ref(path), Size: size, ContentType: contentType}, nil
}

func (m *memBlobs) Open(_ context.Context, path string) (io.ReadCloser, *blob.Object, error) {
	if !m.configured {
		return nil, nil, apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	}
	m.mu.Lock()
	data, ok := m.objects[path]
	m.mu.Unlock()
	if !ok {
		return nil, nil, apperr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), &blob.Object{Path: path, Size: int64(len(data))}, nil
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *memBlobs) PresignGet(_ context.Context, path string) (string, error) {
	return "https://signed.example.com/" + path, nil
}

type pdfLoader struct{}

func (pdfLoader) Load(_ context.Context, url, hint string) (*viewer.Loaded, error) {
	if viewer.DetectKind(url, hint) == viewer.KindDOCX {
		return &viewer.Loaded{Kind: viewer.KindDOCX, HTML: "<p>minutes</p>"}, nil
	}
	return &viewer.Loaded{Kind: viewer.KindPDF, PDF: letterPDF{}}, nil
}

type letterPDF struct{}

func (letterPDF) NumPages() int { return 2 }

func (letterPDF) Page(int) (viewer.PDFPage, error) { return letterPage{}, nil }

type letterPage struct{}

func (letterPage) Size() (float64, float64) { return 612, 792 }

func (letterPage) Draw(dst draw.Image, _ float64) error {
	viewer.White(dst)
	return nil
}
