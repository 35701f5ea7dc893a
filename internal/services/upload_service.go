package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/validate"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

type UploadState string

const (
	UploadUploading UploadState = "uploading"
	UploadCompleted UploadState = "completed"
	UploadWaiting   UploadState = "waiting"
)

var ErrUploadNotRetryable = errors.New("upload is not waiting for a retry")

// Upload is the tracked state of one file transfer.
type Upload struct {
	ID          string      `json:"id"`
	UserID      string      `json:"-"`
	FileName    string      `json:"fileName"`
	ContentType string      `json:"contentType"`
	Size        int64       `json:"size"`
	State       UploadState `json:"state"`
	Progress    float64     `json:"progress"`
	Message     string      `json:"message,omitempty"`
	OverHint    bool        `json:"overSizeHint,omitempty"`
	DocumentID  string      `json:"documentId,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type uploadJob struct {
	upload Upload
	data   []byte
	done   chan struct{}
}

// Limits is what clients are told before they pick a file.
type Limits struct {
	MaxSizeHint  int64    `json:"maxSizeHint"`
	Extensions   []string `json:"extensions"`
	ContentTypes []string `json:"contentTypes"`
}

type UploadService struct {
	blobs     BlobStore
	documents *DocumentService
	cfg       config.UploadConfig
	logger    *zap.Logger
	metrics   *metrics.MetricsCollector
	retention time.Duration

	mu   sync.RWMutex
	jobs map[string]*uploadJob
	wg   sync.WaitGroup
}

func NewUploadService(blobs BlobStore, documents *DocumentService, cfg config.UploadConfig, logger *zap.Logger, metrics *metrics.MetricsCollector) *UploadService {
	return &UploadService{
		blobs:     blobs,
		documents: documents,
		cfg:       cfg,
		logger:    logger.With(zap.String("service", "upload_service")),
		metrics:   metrics,
		retention: time.Hour,
		jobs:      make(map[string]*uploadJob),
	}
}

func (us *UploadService) Limits() Limits {
	return Limits{MaxSizeHint: us.cfg.MaxSizeHint, Extensions: us.cfg.Extensions, ContentTypes: us.cfg.ContentTypes}
}

// Start validates the file and begins the transfer in the background. The
// returned snapshot is in state uploading.
func (us *UploadService) Start(userID, fileName, contentType string, data []byte) (*Upload, error) {
	if err := validate.UploadType(us.cfg, fileName, contentType); err != nil {
		us.metrics.IncrementCounter("uploads_rejected", nil)
		return nil, err
	}
	if !us.blobs.Configured() {
		return nil, apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	}

	size := int64(len(data))
	over := validate.SizeHint(us.cfg, size)
	if over {
		us.logger.Warn("Upload exceeds size hint", zap.String("file_name", fileName), zap.Int64("size", size), zap.Int64("hint", us.cfg.MaxSizeHint))
	}

	now := time.Now()
	job := &uploadJob{
		upload: Upload{
			ID:          ulid.Make().String(),
			UserID:      userID,
			FileName:    fileName,
			ContentType: validate.ContentType(fileName, contentType),
			Size:        size,
			State:       UploadUploading,
			OverHint:    over,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		data: data,
		done: make(chan struct{}),
	}

	us.mu.Lock()
	us.prune(now)
	us.jobs[job.upload.ID] = job
	snapshot := job.upload
	us.mu.Unlock()

	us.run(job)
	return &snapshot, nil
}

// Retry restarts a failed upload with the bytes it was given.
func (us *UploadService) Retry(userID, id string) (*Upload, error) {
	us.mu.Lock()
	job, ok := us.jobs[id]
	if !ok || job.upload.UserID != userID {
		us.mu.Unlock()
		return nil, apperr.New(apperr.KindNotFound, "Upload not found.", apperr.ErrNotFound)
	}
	if job.upload.State != UploadWaiting {
		us.mu.Unlock()
		return nil, apperr.New(apperr.KindInvalid, "This upload is not waiting for a retry.", ErrUploadNotRetryable)
	}
	job.upload.State = UploadUploading
	job.upload.Progress = 0
	job.upload.Message = ""
	job.upload.UpdatedAt = time.Now()
	job.done = make(chan struct{})
	snapshot := job.upload
	us.mu.Unlock()

	us.run(job)
	return &snapshot, nil
}

func (us *UploadService) run(job *uploadJob) {
	us.mu.RLock()
	id, userID, fileName, contentType := job.upload.ID, job.upload.UserID, job.upload.FileName, job.upload.ContentType
	data, done := job.data, job.done
	us.mu.RUnlock()

	us.wg.Add(1)
	go func() {
		defer us.wg.Done()
		defer close(done)

		ctx := context.Background()
		obj, err := us.blobs.Upload(ctx, bytes.NewReader(data), int64(len(data)), userID, fileName, contentType, func(pct float64) {
			us.update(id, func(u *Upload) { u.Progress = pct })
		})
		if err != nil {
			us.fail(id, err)
			return
		}

		docID, err := us.documents.CreateDocument(ctx, &models.Document{
			UserID:      userID,
			FileName:    fileName,
			Name:        validate.DisplayName(fileName),
			URL:         obj.Reference,
			OriginalURL: obj.Reference,
			ContentType: contentType,
			Status:      models.StatusDraft,
		})
		if err != nil {
			us.fail(id, err)
			return
		}

		us.mu.Lock()
		job.upload.State = UploadCompleted
		job.upload.Progress = 100
		job.upload.DocumentID = docID
		job.upload.UpdatedAt = time.Now()
		job.data = nil
		us.mu.Unlock()

		us.metrics.IncrementCounter("uploads_completed", nil)
		us.logger.Info("Upload completed", zap.String("upload_id", id), zap.String("doc_id", docID))
	}()
}

func (us *UploadService) fail(id string, err error) {
	us.logger.Error("Upload failed", zap.String("upload_id", id), zap.Error(err))
	us.update(id, func(u *Upload) {
		u.State = UploadWaiting
		u.Message = apperr.Message(err)
	})
}

func (us *UploadService) update(id string, fn func(*Upload)) {
	us.mu.Lock()
	defer us.mu.Unlock()
	if job, ok := us.jobs[id]; ok {
		fn(&job.upload)
		job.upload.UpdatedAt = time.Now()
	}
}

// prune drops finished jobs past retention. Callers hold mu.
func (us *UploadService) prune(now time.Time) {
	for id, job := range us.jobs {
		if job.upload.State != UploadUploading && now.Sub(job.upload.UpdatedAt) > us.retention {
			delete(us.jobs, id)
		}
	}
}

// Get returns a snapshot of an upload owned by userID.
func (us *UploadService) Get(userID, id string) (*Upload, error) {
	us.mu.RLock()
	defer us.mu.RUnlock()
	job, ok := us.jobs[id]
	if !ok || job.upload.UserID != userID {
		return nil, apperr.New(apperr.KindNotFound, "Upload not found.", apperr.ErrNotFound)
	}
	snapshot := job.upload
	return &snapshot, nil
}

// Wait blocks until the current attempt of an upload finishes.
func (us *UploadService) Wait(ctx context.Context, userID, id string) (*Upload, error) {
	us.mu.RLock()
	job, ok := us.jobs[id]
	var done chan struct{}
	if ok {
		done = job.done
	}
	us.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "Upload not found.", apperr.ErrNotFound)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return us.Get(userID, id)
}

// Shutdown waits for in-flight transfers.
func (us *UploadService) Shutdown(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		us.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
