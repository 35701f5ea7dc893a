// Package blob stores uploaded files in S3 and resolves the download
// references handed out to clients.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

var ErrInvalidReference = errors.New("not a storage reference")

var objectPathRx = regexp.MustCompile(`/o/(.+)`)

// API is the part of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner defines the interface for presigning S3 downloads.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Store struct {
	api       API
	presigner Presigner
	bucket    string
	baseURL   string
	ttl       time.Duration
	logger    *zap.Logger
	metrics   *metrics.MetricsCollector
	now       func() time.Time
}

// Object describes a stored file.
type Object struct {
	Path        string `json:"path"`
	Reference   string `json:"reference"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

func New(api API, presigner Presigner, cfg config.StorageConfig, logger *zap.Logger, m *metrics.MetricsCollector) *Store {
	return &Store{
		api:       api,
		presigner: presigner,
		bucket:    cfg.Bucket,
		baseURL:   strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		ttl:       cfg.PresignTTL,
		logger:    logger.With(zap.String("service", "blob_store")),
		metrics:   m,
		now:       time.Now,
	}
}

// NewFromConfig builds the S3 client and presigner from an AWS config.
// Custom endpoints use path-style addressing.
func NewFromConfig(awsCfg aws.Config, cfg config.StorageConfig, logger *zap.Logger, m *metrics.MetricsCollector) *Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})
	return New(client, s3.NewPresignClient(client), cfg, logger, m)
}

func (s *Store) Configured() bool { return s.bucket != "" }

// ObjectPath is where an owner's upload is stored.
func ObjectPath(ownerID, fileName string, at time.Time) string {
	return fmt.Sprintf("%s/%d_%s", ownerID, at.UnixMilli(), fileName)
}

// Reference is the stable download URL recorded on a document.
func (s *Store) Reference(path string) string {
	return fmt.Sprintf("%s/b/%s/o/%s", s.baseURL, s.bucket, url.PathEscape(path))
}

// ResolveReference extracts the storage path from a reference. The path is
// decoded until it no longer changes, since references are sometimes
// escaped more than once on their way back to us.
func ResolveReference(ref string) (string, error) {
	m := objectPathRx.FindStringSubmatch(ref)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	path := m[1]
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for i := 0; i < 5; i++ {
		decoded, err := url.PathUnescape(path)
		if err != nil || decoded == path {
			break
		}
		path = decoded
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidReference, ref)
	}
	return path, nil
}

// Owns reports whether ref points into this store's bucket and returns the
// object path it names. References on other hosts or buckets are not ours
// even when they share the /b/<bucket>/o/ shape.
func (s *Store) Owns(ref string) (string, bool) {
	if s.bucket == "" {
		return "", false
	}
	prefix := "/b/" + s.bucket + "/o/"
	if s.baseURL != "" {
		if !strings.HasPrefix(ref, s.baseURL+prefix) {
			return "", false
		}
	} else {
		u, err := url.Parse(ref)
		if err != nil || !strings.HasPrefix(u.EscapedPath(), prefix) {
			return "", false
		}
	}
	path, err := ResolveReference(ref)
	if err != nil {
		return "", false
	}
	return path, true
}

// Upload writes r to the owner's area, reporting progress as a percentage.
func (s *Store) Upload(ctx context.Context, r io.ReadSeeker, size int64, ownerID, fileName, contentType string, progress func(float64)) (*Object, error) {
	if !s.Configured() {
		return nil, apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	}
	start := time.Now()
	defer s.metrics.Since("document_upload", start)

	path := ObjectPath(ownerID, fileName, s.now())
	body := newProgressReader(r, size, progress)

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{"owner": ownerID},
	}, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		s.logger.Error("Upload failed", zap.String("path", path), zap.Error(err))
		return nil, classify("upload", err)
	}
	body.finish()
	s.metrics.ObserveSize("upload_size", float64(size))

	s.logger.Info("Uploaded object", zap.String("path", path), zap.Int64("size", size))
	return &Object{Path: path, Reference: s.Reference(path), Size: size, ContentType: contentType}, nil
}

// Open streams a stored object. The caller closes the reader.
func (s *Store) Open(ctx context.Context, path string) (io.ReadCloser, *Object, error) {
	if !s.Configured() {
		return nil, nil, apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, nil, classify("download", err)
	}
	obj := &Object{Path: path, Reference: s.Reference(path), Size: aws.ToInt64(out.ContentLength), ContentType: aws.ToString(out.ContentType)}
	return out.Body, obj, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if !s.Configured() {
		return apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return classify("delete", err)
	}
	return nil
}

// PresignGet returns a time-limited direct download URL.
func (s *Store) PresignGet(ctx context.Context, path string) (string, error) {
	if !s.Configured() {
		return "", apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, func(o *s3.PresignOptions) { o.Expires = s.ttl })
	if err != nil {
		return "", classify("presign", err)
	}
	return req.URL, nil
}

// classify maps S3 failures onto the error kinds shown to users.
func classify(op string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return apperr.New(apperr.KindAuthorization, "storage denied the "+op, fmt.Errorf("%w: %v", apperr.ErrPermissionDenied, err))
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		case "NoSuchBucket":
			return apperr.New(apperr.KindConfiguration, "storage bucket does not exist", err)
		}
	}
	return apperr.Transient(op, err)
}
