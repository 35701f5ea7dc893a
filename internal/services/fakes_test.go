package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/draw"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/blob"
	"github.com/Essu-man/Minuty/internal/db"
	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/signature"
	"github.com/Essu-man/Minuty/internal/viewer"
)

// sigImage is a small valid PNG data URL.
var sigImage = func() string {
	s, err := signature.EncodePNG(image.NewRGBA(image.Rect(0, 0, 20, 8)))
	if err != nil {
		panic(err)
	}
	return s
}()

type memDocuments struct {
	mu   sync.Mutex
	docs map[string]models.Document
	fail error
}

func newMemDocuments() *memDocuments {
	return &memDocuments{docs: make(map[string]models.Document)}
}

func (m *memDocuments) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
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
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memDocuments) Update(_ context.Context, id string, patch models.DocumentPatch) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
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
	if _, ok := m.docs[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memDocuments) get(id string) models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id]
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUsers() *memUsers { return &memUsers{users: make(map[string]models.User)} }

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

func (m *memUsers) TouchLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.LastLogin = at
	m.users[id] = u
	return nil
}

type memBlobs struct {
	mu         sync.Mutex
	configured bool
	objects    map[string]memObject
	uploadErr  error
	openErr    error
	deleted    []string
}

type memObject struct {
	data        []byte
	contentType string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{configured: true, objects: make(map[string]memObject)}
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
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	path := ownerID + "/1700000000000_" + fileName
	m.mu.Lock()
	m.objects[path] = memObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return &blob.Object{Path: path, Reference: m.ref(path), Size: size, ContentType: contentType}, nil
}

func (m *memBlobs) Open(_ context.Context, path string) (io.ReadCloser, *blob.Object, error) {
	if !m.configured {
		return nil, nil, apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	}
	if m.openErr != nil {
		return nil, nil, m.openErr
	}
	m.mu.Lock()
	obj, ok := m.objects[path]
	m.mu.Unlock()
	if !ok {
		return nil, nil, apperr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), &blob.Object{Path: path, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *memBlobs) PresignGet(_ context.Context, path string) (string, error) {
	return "https://signed.example.com/" + path + "?X-Amz-Signature=abc", nil
}

func (m *memBlobs) put(path string, data []byte, contentType string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = memObject{data: data, contentType: contentType}
	return m.ref(path)
}

type fakeStamper struct {
	err   error
	calls int
}

func (f *fakeStamper) Stamp(src []byte, sigs []models.Signature) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append(append([]byte{}, src...), []byte("%stamped")...), nil
}

type fakeLoader struct {
	loaded *viewer.Loaded
	err    error
	urls   []string
}

func (f *fakeLoader) Load(_ context.Context, url, _ string) (*viewer.Loaded, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.loaded, nil
}

type fakePage struct{}

func (fakePage) Size() (float64, float64) { return 612, 792 }

func (fakePage) Draw(dst draw.Image, _ float64) error {
	viewer.White(dst)
	return nil
}

type fakePDF struct{ pages int }

func (d fakePDF) NumPages() int { return d.pages }

func (d fakePDF) Page(n int) (viewer.PDFPage, error) {
	if n < 1 || n > d.pages {
		return nil, errors.New("page out of range")
	}
	return fakePage{}, nil
}

var errBoom = errors.New("boom")
