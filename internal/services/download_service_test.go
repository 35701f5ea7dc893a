package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

func storageConfig(hosts ...string) config.StorageConfig {
	return config.StorageConfig{FetchTimeout: time.Second, FetchHosts: hosts}
}

// newLoopbackDownloads allows fetches from httptest servers on 127.0.0.1.
func newLoopbackDownloads(blobs BlobStore, m *metrics.MetricsCollector) *DownloadService {
	svc := NewDownloadService(blobs, storageConfig("127.0.0.1"), zap.NewNop(), m)
	svc.allowAddr = func(netip.Addr) bool { return true }
	return svc
}

func TestDownloadFromStorage(t *testing.T) {
	blobs := newMemBlobs()
	ref := blobs.put("u1/1_minutes.pdf", []byte("%PDF"), "")
	svc := NewDownloadService(blobs, storageConfig(), zap.NewNop(), nil)

	d, err := svc.Download(WithUser(context.Background(), "u1"), ref+"?alt=media")
	require.NoError(t, err)
	assert.True(t, d.FromStorage)
	assert.Equal(t, []byte("%PDF"), d.Body)
	assert.Equal(t, "application/pdf", d.ContentType)
}

func TestDownloadStorageRequiresOwner(t *testing.T) {
	blobs := newMemBlobs()
	ref := blobs.put("u1/1_secret.pdf", []byte("%PDF"), "")
	m := metrics.NewMetricsCollector()
	svc := NewDownloadService(blobs, storageConfig("files.example.com"), zap.NewNop(), m)

	_, err := svc.Download(context.Background(), ref)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.Equal(t, http.StatusUnauthorized, apperr.Status(err))

	_, err = svc.Download(WithUser(context.Background(), "u2"), ref)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Equal(t, http.StatusForbidden, apperr.Status(err))

	_, _, err = svc.Fetch(WithUser(context.Background(), "u2"), ref)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	assert.Equal(t, int64(3), m.Counter("proxy_download_denied"))
	assert.Zero(t, m.Counter("proxy_fallback_used"))
}

func TestDownloadForeignReferenceSkipsStorage(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.put("u1/1_secret.pdf", []byte("%PDF"), "")
	svc := newLoopbackDownloads(blobs, nil)

	// Same object path, but not on our storage host.
	_, err := svc.Download(context.Background(), srv.URL+"/b/bucket/o/u1%2F1_secret.pdf")
	var de *DownloadError
	require.True(t, errors.As(err, &de))
	assert.NotErrorIs(t, de.Storage, apperr.ErrNotFound)
	assert.Equal(t, 1, hits)
}

func TestDownloadFallsBackToDirectFetch(t *testing.T) {
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Write([]byte("PK docx"))
	}))
	defer srv.Close()

	m := metrics.NewMetricsCollector()
	blobs := newMemBlobs()
	blobs.configured = false
	svc := newLoopbackDownloads(blobs, m)

	d, err := svc.Download(context.Background(), srv.URL+"/files/minutes.docx")
	require.NoError(t, err)
	assert.False(t, d.FromStorage)
	assert.Equal(t, "Mozilla/5.0", userAgent)
	assert.Equal(t, []byte("PK docx"), d.Body)
	assert.Contains(t, d.ContentType, "text/plain")
	assert.Equal(t, int64(1), m.Counter("proxy_fallback_used"))
}

func TestDownloadBothPathsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.configured = false
	svc := newLoopbackDownloads(blobs, nil)

	_, err := svc.Download(context.Background(), srv.URL+"/files/minutes.pdf")
	var de *DownloadError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, de.Storage, apperr.ErrNotConfigured)
	assert.Contains(t, de.Fetch.Error(), "403")
	assert.Contains(t, err.Error(), "Failed to download file")

	_, _, err = svc.Fetch(context.Background(), srv.URL+"/files/minutes.pdf")
	assert.Equal(t, apperr.KindConfiguration, apperr.Classify(err))
}

func TestDownloadMissingOwnedObject(t *testing.T) {
	blobs := newMemBlobs()
	svc := NewDownloadService(blobs, storageConfig(), zap.NewNop(), nil)

	_, _, err := svc.Fetch(WithUser(context.Background(), "u1"), blobs.ref("u1/missing.pdf"))
	assert.Equal(t, apperr.KindNotFound, apperr.Classify(err))
}

func TestDirectFetchRefusesInternalAddresses(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("internal"))
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.configured = false
	// Host is allow-listed; the dialer still refuses the loopback address.
	svc := NewDownloadService(blobs, storageConfig("127.0.0.1"), zap.NewNop(), nil)

	_, err := svc.Download(context.Background(), srv.URL+"/latest/meta-data")
	var de *DownloadError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, de.Fetch, ErrFetchNotAllowed)
	assert.Zero(t, hits)
}

func TestDirectFetchRefusesRedirectOffList(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("elsewhere"))
	}))
	defer target.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, strings.Replace(target.URL, "127.0.0.1", "localhost", 1), http.StatusFound)
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.configured = false
	svc := newLoopbackDownloads(blobs, nil)

	_, err := svc.Download(context.Background(), srv.URL+"/a.pdf")
	var de *DownloadError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, de.Fetch, ErrFetchNotAllowed)
}

func TestDirectFetchChecksURL(t *testing.T) {
	blobs := newMemBlobs()
	blobs.configured = false
	svc := NewDownloadService(blobs, storageConfig("docs.example.com"), zap.NewNop(), nil)

	for _, raw := range []string{
		"file:///etc/passwd",
		"gopher://docs.example.com/a.pdf",
		"https://evil.example.com/a.pdf",
		"https://docs.example.com.evil.com/a.pdf",
		"http://169.254.169.254/latest/meta-data",
	} {
		_, err := svc.Download(context.Background(), raw)
		var de *DownloadError
		require.True(t, errors.As(err, &de), raw)
		assert.ErrorIs(t, de.Fetch, ErrFetchNotAllowed, raw)
	}
}

func TestDirectFetchLimitsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.configured = false
	svc := newLoopbackDownloads(blobs, nil)
	svc.maxBytes = 16

	_, err := svc.Download(context.Background(), srv.URL+"/big.pdf")
	var de *DownloadError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.Fetch.Error(), "exceeds 16 bytes")
}

func TestPublicAddr(t *testing.T) {
	for _, s := range []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254", "100.64.0.1", "0.0.0.0", "::1", "fe80::1", "fd00::1", "::ffff:127.0.0.1", "224.0.0.1"} {
		assert.False(t, publicAddr(netip.MustParseAddr(s)), s)
	}
	for _, s := range []string{"93.184.216.34", "2606:2800:220:1::1"} {
		assert.True(t, publicAddr(netip.MustParseAddr(s)), s)
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", contentTypeFor("x.pdf", "image/png"))
	assert.Equal(t, "application/pdf", contentTypeFor("https://x/a.PDF?alt=media", ""))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", contentTypeFor("a.docx", ""))
	assert.Equal(t, "application/octet-stream", contentTypeFor("a.bin", ""))
}
