package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/db/models"
)

// DocumentStore keeps document records in postgres.
type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return apperr.Transient("create document", err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, notFound("document", id, err)
	}
	return &doc, nil
}

func (s *DocumentStore) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	docs := []models.Document{}
	if err := listByUser(s.db.WithContext(ctx), userID).Find(&docs).Error; err != nil {
		return nil, apperr.Transient("list documents", err)
	}
	return docs, nil
}

func listByUser(db *gorm.DB, userID string) *gorm.DB {
	return db.Model(&models.Document{}).Where("user_id = ?", userID).Order("created_at DESC")
}

func (s *DocumentStore) Update(ctx context.Context, id string, patch models.DocumentPatch) (*models.Document, error) {
	cols, err := patch.Columns()
	if err != nil {
		return nil, err
	}
	cols["updated_at"] = time.Now().UTC()

	var doc models.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Document{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&doc, "id = ?", id).Error
	})
	if err != nil {
		return nil, notFound("document", id, err)
	}
	return &doc, nil
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", id)
	if res.Error != nil {
		return apperr.Transient("delete document", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrNotFound)
	}
	return apperr.Transient("load "+kind, err)
}
