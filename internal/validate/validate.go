// Package validate provides checks applied to uploads before any network
// call is made.
package validate

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/config"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var ErrEmptyFileName = errors.New("file name is required")

// UploadType accepts a file when either its extension or its content type
// is on the allow list.
func UploadType(cfg config.UploadConfig, fileName, contentType string) error {
	if strings.TrimSpace(fileName) == "" {
		return fmt.Errorf("%w: %w", apperr.ErrUnsupported, ErrEmptyFileName)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range cfg.Extensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		for _, allowed := range cfg.ContentTypes {
			if strings.EqualFold(mt, allowed) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: only PDF and DOCX files are accepted, got %q", apperr.ErrUnsupported, fileName)
}

// ContentType picks the stored content type: the declared one when it is
// specific, otherwise one inferred from the extension.
func ContentType(fileName, declared string) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return ContentTypePDF
	case ".docx":
		return ContentTypeDOCX
	}
	return "application/octet-stream"
}

// SizeHint reports whether size is above the advertised limit. The limit
// is advisory; callers decide what to do with the answer.
func SizeHint(cfg config.UploadConfig, size int64) bool {
	return cfg.MaxSizeHint > 0 && size > cfg.MaxSizeHint
}

// DisplayName is the file name without its extension.
func DisplayName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Email checks the shape of an address.
func Email(email string) error {
	if !emailRx.MatchString(strings.TrimSpace(email)) {
		return fmt.Errorf("%w: invalid email address", apperr.ErrInvalid)
	}
	return nil
}

// Password checks length bounds.
func Password(sec config.SecurityConfig, password string) error {
	if len(password) < sec.PasswordMinLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperr.ErrInvalid, sec.PasswordMinLength)
	}
	if sec.PasswordMaxLength > 0 && len(password) > sec.PasswordMaxLength {
		return fmt.Errorf("%w: password must be at most %d characters", apperr.ErrInvalid, sec.PasswordMaxLength)
	}
	return nil
}
