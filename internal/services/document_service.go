package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/blob"
	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/signature"
	"github.com/Essu-man/Minuty/internal/utils"
	"github.com/Essu-man/Minuty/internal/validate"
	"github.com/Essu-man/Minuty/internal/viewer"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

type DocumentService struct {
	store   DocumentStore
	blobs   BlobStore
	stamper Stamper
	logger  *zap.Logger
	metrics *metrics.MetricsCollector
	now     func() time.Time
}

var _ viewer.Saver = (*DocumentService)(nil)

// Approval is the approval sub-record as submitted. Nil fields are absent.
type Approval struct {
	ApprovedBySignature *string `json:"approvedBySignature"`
	IssuedBySignature   *string `json:"issuedBySignature"`
	ApprovedBy          *string `json:"approvedBy"`
	IssuedBy            *string `json:"issuedBy"`
}

func NewDocumentService(store DocumentStore, blobs BlobStore, stamper Stamper, logger *zap.Logger, metrics *metrics.MetricsCollector) *DocumentService {
	return &DocumentService{
		store:   store,
		blobs:   blobs,
		stamper: stamper,
		logger:  logger.With(zap.String("service", "document_service")),
		metrics: metrics,
		now:     time.Now,
	}
}

func (ds *DocumentService) CreateDocument(ctx context.Context, doc *models.Document) (string, error) {
	if doc.UserID == "" || doc.FileName == "" {
		return "", fmt.Errorf("%w: owner and file name are required", apperr.ErrInvalid)
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Status == "" {
		doc.Status = models.StatusDraft
	}
	if doc.Name == "" {
		doc.Name = validate.DisplayName(doc.FileName)
	}
	now := ds.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if err := ds.store.Create(ctx, doc); err != nil {
		return "", err
	}

	ds.collectMetrics(func() {
		ds.metrics.IncrementCounter("documents_created", nil)
	})
	ds.logger.Info("Document created", zap.String("doc_id", doc.ID), zap.String("user_id", doc.UserID))
	return doc.ID, nil
}

func (ds *DocumentService) collectMetrics(fn func()) {
	collectMetrics(fn)
}

func (ds *DocumentService) GetUserDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	docs, err := ds.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// GetDocument loads a document owned by userID.
func (ds *DocumentService) GetDocument(ctx context.Context, userID, docID string) (*models.Document, error) {
	doc, err := ds.store.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		ds.logger.Warn("Document access denied", zap.String("doc_id", docID), zap.String("user_id", userID))
		return nil, apperr.New(apperr.KindAuthorization, "You do not have access to this document.", apperr.ErrPermissionDenied)
	}
	return doc, nil
}

func (ds *DocumentService) UpdateDocument(ctx context.Context, userID, docID string, patch models.DocumentPatch) (*models.Document, error) {
	if _, err := ds.GetDocument(ctx, userID, docID); err != nil {
		return nil, err
	}
	if err := validateCollections(patch.Annotations, patch.Signatures); err != nil {
		return nil, err
	}
	doc, err := ds.store.Update(ctx, docID, patch)
	if err != nil {
		return nil, err
	}
	ds.collectMetrics(func() {
		ds.metrics.IncrementCounter("documents_updated", nil)
	})
	return doc, nil
}

func validateCollections(anns []models.Annotation, sigs []models.Signature) error {
	for _, a := range anns {
		if a.ID == "" || !a.Type.Valid() || a.Page < 1 {
			return fmt.Errorf("%w: malformed annotation %q", apperr.ErrInvalid, a.ID)
		}
	}
	for _, s := range sigs {
		if s.ID == "" || s.Page < 1 || s.ImageData == "" || s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("%w: malformed signature %q", apperr.ErrInvalid, s.ID)
		}
		if err := signature.Validate(s.ImageData); err != nil {
			return fmt.Errorf("%w: signature %q: %w", apperr.ErrInvalid, s.ID, err)
		}
	}
	return nil
}

// DeleteDocument removes the record, then its stored files. File removal
// failures are logged only.
func (ds *DocumentService) DeleteDocument(ctx context.Context, userID, docID string) error {
	doc, err := ds.GetDocument(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := ds.store.Delete(ctx, docID); err != nil {
		return err
	}
	if !ds.blobs.Configured() {
		return nil
	}
	for _, ref := range []string{doc.OriginalURL, doc.FinalURL} {
		if ref == "" {
			continue
		}
		path, err := blob.ResolveReference(ref)
		if err != nil {
			continue
		}
		if err := ds.blobs.Delete(ctx, path); err != nil {
			ds.logger.Warn("Failed to delete stored file", zap.String("doc_id", docID), zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

// DownloadURL returns a short-lived direct link to the document's file.
func (ds *DocumentService) DownloadURL(ctx context.Context, userID, docID string) (string, error) {
	doc, err := ds.GetDocument(ctx, userID, docID)
	if err != nil {
		return "", err
	}
	ref := doc.FinalURL
	if ref == "" {
		ref = doc.URL
	}
	path, err := blob.ResolveReference(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	}
	return ds.blobs.PresignGet(ctx, path)
}

// SaveFinal persists the collections and marks the document final. When a
// blob store is configured the placed signatures are also stamped into a
// copy of the PDF; a stamping failure does not block the transition.
func (ds *DocumentService) SaveFinal(ctx context.Context, userID, docID string, anns []models.Annotation, sigs []models.Signature) (*models.Document, error) {
	doc, err := ds.GetDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if anns == nil {
		if anns, err = doc.GetAnnotations(); err != nil {
			return nil, apperr.Format("annotations", err)
		}
	}
	if sigs == nil {
		if sigs, err = doc.GetSignatures(); err != nil {
			return nil, apperr.Format("signatures", err)
		}
	}
	if err := validateCollections(anns, sigs); err != nil {
		return nil, err
	}

	status := models.StatusFinal
	patch := models.DocumentPatch{Annotations: anns, Signatures: sigs, Status: &status}
	if ref, err := ds.stampFinal(ctx, doc, sigs); err != nil {
		ds.logger.Error("Failed to produce final PDF", zap.String("doc_id", docID), zap.Error(err))
	} else if ref != "" {
		patch.FinalURL = &ref
	}

	updated, err := ds.store.Update(ctx, docID, patch)
	if err != nil {
		return nil, err
	}
	ds.collectMetrics(func() {
		ds.metrics.IncrementCounter("documents_finalized", nil)
	})
	ds.logger.Info("Document finalized", zap.String("doc_id", docID), zap.Bool("stamped", patch.FinalURL != nil))
	return updated, nil
}

func (ds *DocumentService) stampFinal(ctx context.Context, doc *models.Document, sigs []models.Signature) (string, error) {
	if ds.stamper == nil || !ds.blobs.Configured() || len(sigs) == 0 {
		return "", nil
	}
	if viewer.DetectKind(doc.OriginalURL, doc.ContentType) != viewer.KindPDF {
		return "", nil
	}
	path, err := blob.ResolveReference(doc.OriginalURL)
	if err != nil {
		return "", err
	}
	body, _, err := ds.blobs.Open(ctx, path)
	if err != nil {
		return "", err
	}
	src, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return "", apperr.Transient("download document", err)
	}

	out, err := ds.stamper.Stamp(src, sigs)
	if err != nil {
		return "", err
	}
	name := strings.TrimSuffix(doc.FileName, filepath.Ext(doc.FileName)) + "_final.pdf"
	obj, err := ds.blobs.Upload(ctx, bytes.NewReader(out), int64(len(out)), doc.UserID, name, validate.ContentTypePDF, nil)
	if err != nil {
		return "", err
	}
	return obj.Reference, nil
}

// SaveApproval writes the approval sub-record. Each timestamp is set only
// when its signature is present.
func (ds *DocumentService) SaveApproval(ctx context.Context, userID, docID string, approval Approval) (*models.Document, error) {
	approved := utils.TrimmedOrNil(approval.ApprovedBySignature)
	if approved == nil {
		return nil, apperr.New(apperr.KindInvalid, "An approved-by signature is required.", apperr.ErrInvalid)
	}
	if _, err := ds.GetDocument(ctx, userID, docID); err != nil {
		return nil, err
	}

	now := ds.now()
	patch := models.DocumentPatch{
		ApprovedBySignature: approved,
		ApprovedAt:          &now,
		ApprovedBy:          utils.TrimmedOrNil(approval.ApprovedBy),
		IssuedBy:            utils.TrimmedOrNil(approval.IssuedBy),
	}
	if issued := utils.TrimmedOrNil(approval.IssuedBySignature); issued != nil {
		patch.IssuedBySignature = issued
		patch.IssuedAt = &now
	}

	doc, err := ds.store.Update(ctx, docID, patch)
	if err != nil {
		return nil, err
	}
	ds.collectMetrics(func() {
		ds.metrics.IncrementCounter("approvals_saved", nil)
	})
	ds.logger.Info("Approval saved", zap.String("doc_id", docID), zap.String("status", doc.ApprovalStatus()))
	return doc, nil
}

// SaveAnnotations writes the whole annotations collection. It backs the
// viewer's persistence bridge, so ownership was checked when the session
// was opened.
func (ds *DocumentService) SaveAnnotations(ctx context.Context, docID string, anns []models.Annotation) error {
	if anns == nil {
		anns = []models.Annotation{}
	}
	_, err := ds.store.Update(ctx, docID, models.DocumentPatch{Annotations: anns})
	return err
}

func (ds *DocumentService) SaveSignatures(ctx context.Context, docID string, sigs []models.Signature) error {
	if sigs == nil {
		sigs = []models.Signature{}
	}
	_, err := ds.store.Update(ctx, docID, models.DocumentPatch{Signatures: sigs})
	return err
}
