package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/db/models"
)

var ErrEmailTaken = errors.New("email already registered")

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return apperr.Transient("check email", err)
	}
	if count > 0 {
		return ErrEmailTaken
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrEmailTaken
		}
		return apperr.Transient("create user", err)
	}
	return nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound("user", email, err)
	}
	return &user, nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound("user", id, err)
	}
	return &user, nil
}

func (s *UserStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at)
	if res.Error != nil {
		return apperr.Transient("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}
