package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeDefaultConfig(t *testing.T) {
	cfg := InitializeDefaultConfig()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.DocumentStore.Backend)
	assert.Equal(t, 1.5, cfg.Viewer.DefaultScale)
	assert.Equal(t, 0.5, cfg.Viewer.MinScale)
	assert.Equal(t, 3.0, cfg.Viewer.MaxScale)
	assert.Equal(t, 0.25, cfg.Viewer.ZoomStep)
	assert.Equal(t, 10*time.Second, cfg.Viewer.LibraryTimeout)
	assert.Equal(t, int64(25<<20), cfg.Upload.MaxSizeHint)
	assert.False(t, cfg.Storage.Configured())
	assert.Same(t, cfg, GetConfig())
}

func TestApplyEnv(t *testing.T) {
	InitializeDefaultConfig()
	t.Setenv("PORT", "9090")
	t.Setenv("S3_BUCKET", "minuty-files")
	t.Setenv("DOCUMENT_STORE", BackendDynamoDB)
	t.Setenv("PRESIGN_TTL_SECONDS", "60")
	t.Setenv("FETCH_HOSTS", "files.example.com, , cdn.example.com")

	ApplyEnv()
	cfg := GetConfig()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Storage.Configured())
	assert.Equal(t, BackendDynamoDB, cfg.DocumentStore.Backend)
	assert.Equal(t, time.Minute, cfg.Storage.PresignTTL)
	assert.Equal(t, []string{"files.example.com", "cdn.example.com"}, cfg.Storage.FetchHosts)
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":"7000"},"storage":{"bucket":"b"}}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "b", cfg.Storage.Bucket)
	assert.Equal(t, 1.5, cfg.Viewer.DefaultScale)
	assert.Equal(t, []string{".pdf", ".docx"}, cfg.Upload.Extensions)
	assert.Equal(t, int64(8<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, int64(100<<20), cfg.Upload.MaxBodyBytes)
}

func TestLogConfigRedactsPassword(t *testing.T) {
	InitializeDefaultConfig()
	core, logs := observer.New(zap.InfoLevel)

	LogConfig(zap.New(core))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["database_password"])
}
