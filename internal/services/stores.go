package services

import (
	"context"
	"io"
	"time"

	"github.com/Essu-man/Minuty/internal/blob"
	"github.com/Essu-man/Minuty/internal/db/models"
)

// DocumentStore is satisfied by both the postgres store and the DynamoDB repo.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	ListByUser(ctx context.Context, userID string) ([]models.Document, error)
	Update(ctx context.Context, id string, patch models.DocumentPatch) (*models.Document, error)
	Delete(ctx context.Context, id string) error
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

type BlobStore interface {
	Configured() bool
	Owns(ref string) (path string, ok bool)
	Upload(ctx context.Context, r io.ReadSeeker, size int64, ownerID, fileName, contentType string, progress func(float64)) (*blob.Object, error)
	Open(ctx context.Context, path string) (io.ReadCloser, *blob.Object, error)
	Delete(ctx context.Context, path string) error
	PresignGet(ctx context.Context, path string) (string, error)
}

// Stamper burns signatures into a PDF.
type Stamper interface {
	Stamp(src []byte, sigs []models.Signature) ([]byte, error)
}

var _ BlobStore = (*blob.Store)(nil)

// collectMetrics records fn off the request path. It does not follow the
// request context, which gin cancels as soon as the response is written.
func collectMetrics(fn func()) {
	go fn()
}
