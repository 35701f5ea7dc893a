package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/blob"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/internal/validate"
	"github.com/Essu-man/Minuty/internal/viewer"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

const (
	browserUserAgent = "Mozilla/5.0"
	maxRedirects     = 5
)

// ErrFetchNotAllowed is returned when a direct fetch targets a scheme, host
// or address the proxy refuses to reach.
var ErrFetchNotAllowed = errors.New("fetch target not allowed")

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// publicAddr rejects loopback, private, link-local and other
// non-routable addresses.
func publicAddr(a netip.Addr) bool {
	a = a.Unmap()
	if !a.IsGlobalUnicast() || a.IsPrivate() {
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(a) {
			return false
		}
	}
	return true
}

// DownloadError is returned when neither the blob store nor a direct fetch
// produced the file.
type DownloadError struct {
	Storage error
	Fetch   error
}

func (e *DownloadError) Error() string {
	cause := e.Fetch
	if e.Storage != nil {
		cause = e.Storage
	}
	return fmt.Sprintf("Failed to download file: %v", cause)
}

func (e *DownloadError) Unwrap() []error { return []error{e.Storage, e.Fetch} }

// Download is a file body with the headers the proxy needs.
type Download struct {
	Body        []byte
	ContentType string
	FromStorage bool
}

type DownloadService struct {
	blobs     BlobStore
	client    *http.Client
	hosts     []string
	maxBytes  int64
	allowAddr func(netip.Addr) bool
	logger    *zap.Logger
	metrics   *metrics.MetricsCollector
}

var _ viewer.Fetcher = (*DownloadService)(nil)

func NewDownloadService(blobs BlobStore, cfg config.StorageConfig, logger *zap.Logger, metrics *metrics.MetricsCollector) *DownloadService {
	s := &DownloadService{
		blobs:     blobs,
		hosts:     fetchHosts(cfg),
		maxBytes:  cfg.MaxFetchBytes,
		allowAddr: publicAddr,
		logger:    logger.With(zap.String("service", "download_service")),
		metrics:   metrics,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = config.DefaultMaxFetchBytes
	}
	dialer := &net.Dialer{Timeout: cfg.FetchTimeout, Control: s.checkDial}
	s.client = &http.Client{
		Timeout: cfg.FetchTimeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: cfg.FetchTimeout,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: too many redirects", ErrFetchNotAllowed)
			}
			return s.checkURL(req.URL)
		},
	}
	return s
}

// fetchHosts is the direct-fetch allow-list: the configured hosts plus the
// host serving storage references.
func fetchHosts(cfg config.StorageConfig) []string {
	var hosts []string
	for _, h := range cfg.FetchHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	if u, err := url.Parse(cfg.PublicBaseURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, strings.ToLower(u.Hostname()))
	}
	return hosts
}

// Download reads the file behind a storage reference, falling back to a
// plain GET of the URL when storage cannot serve it. Objects in our bucket
// are only served to the user whose id leads the object path.
func (s *DownloadService) Download(ctx context.Context, rawURL string) (*Download, error) {
	start := time.Now()
	defer s.metrics.Since("proxy_download", start)

	var storageErr error
	switch path, owned := s.blobs.Owns(rawURL); {
	case !s.blobs.Configured():
		storageErr = apperr.New(apperr.KindConfiguration, "storage is not configured", apperr.ErrNotConfigured)
	case owned:
		if err := authorizeObject(ctx, path); err != nil {
			s.logger.Warn("Refused storage download", zap.String("path", path), zap.Error(err))
			s.metrics.IncrementCounter("proxy_download_denied", nil)
			return nil, err
		}
		d, err := s.fromStorage(ctx, rawURL, path)
		if err == nil {
			return d, nil
		}
		storageErr = err
	default:
		storageErr = fmt.Errorf("%w: %s", blob.ErrInvalidReference, rawURL)
	}
	s.logger.Warn("Storage download failed, trying direct fetch", zap.String("url", rawURL), zap.Error(storageErr))
	s.metrics.IncrementCounter("proxy_fallback_used", nil)

	d, fetchErr := s.direct(ctx, rawURL)
	if fetchErr == nil {
		return d, nil
	}
	s.logger.Error("Direct fetch also failed", zap.String("url", rawURL), zap.Error(fetchErr))
	return nil, &DownloadError{Storage: storageErr, Fetch: fetchErr}
}

func authorizeObject(ctx context.Context, path string) error {
	userID, ok := UserFrom(ctx)
	if !ok {
		return apperr.New(apperr.KindAuthorization, "sign in to download this file", apperr.ErrUnauthenticated)
	}
	if owner, _, _ := strings.Cut(path, "/"); owner != userID {
		return apperr.New(apperr.KindAuthorization, "file belongs to another user", apperr.ErrPermissionDenied)
	}
	return nil
}

func (s *DownloadService) fromStorage(ctx context.Context, rawURL, path string) (*Download, error) {
	body, obj, err := s.blobs.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, apperr.Transient("download", err)
	}
	return &Download{Body: data, ContentType: contentTypeFor(rawURL, obj.ContentType), FromStorage: true}, nil
}

func (s *DownloadService) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrFetchNotAllowed, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range s.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", ErrFetchNotAllowed, host)
}

// checkDial runs after name resolution, so it sees the address actually
// being connected to even when DNS points an allowed host inward.
func (s *DownloadService) checkDial(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFetchNotAllowed, address)
	}
	if !s.allowAddr(ap.Addr()) {
		return fmt.Errorf("%w: address %s", ErrFetchNotAllowed, ap.Addr())
	}
	return nil
}

func (s *DownloadService) direct(ctx context.Context, rawURL string) (*Download, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchNotAllowed, err)
	}
	if err := s.checkURL(u); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Failed to fetch: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("Failed to fetch: body exceeds %d bytes", s.maxBytes)
	}
	return &Download{Body: data, ContentType: contentTypeFor(rawURL, resp.Header.Get("Content-Type"))}, nil
}

func contentTypeFor(url, declared string) string {
	if declared != "" {
		return declared
	}
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, ".pdf"):
		return validate.ContentTypePDF
	case strings.Contains(u, ".docx"):
		return validate.ContentTypeDOCX
	}
	return "application/octet-stream"
}

// Fetch satisfies the viewer loader. Errors keep their storage
// classification when the fallback also failed.
func (s *DownloadService) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	d, err := s.Download(ctx, url)
	if err != nil {
		var de *DownloadError
		if !errors.As(err, &de) && apperr.Classify(err) != apperr.KindInternal {
			return nil, "", err
		}
		if de != nil && apperr.Classify(de.Storage) != apperr.KindInternal {
			return nil, "", de.Storage
		}
		return nil, "", apperr.Transient("download document", err)
	}
	return d.Body, d.ContentType, nil
}
