package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Configuration struct {
	Server        ServerConfig        `json:"server"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
	Database      DatabaseConfig      `json:"database"`
	DocumentStore DocumentStoreConfig `json:"document_store"`
	Storage       StorageConfig       `json:"storage"`
	Viewer        ViewerConfig        `json:"viewer"`
	Upload        UploadConfig        `json:"upload"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	Environment  string        `json:"environment"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	MaxBodyBytes int64         `json:"max_body_bytes"`
}

type SecurityConfig struct {
	SessionCookie     string        `json:"session_cookie"`
	SessionTimeout    time.Duration `json:"session_timeout"`
	PasswordMinLength int           `json:"password_min_length"`
	PasswordMaxLength int           `json:"password_max_length"`
	SecureCookies     bool          `json:"secure_cookies"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	SSLMode         string `json:"ssl_mode"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime"`
}

// DefaultMaxFetchBytes caps a proxied direct fetch.
const DefaultMaxFetchBytes = 100 << 20

const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

type DocumentStoreConfig struct {
	Backend   string `json:"backend"`
	Table     string `json:"table"`
	UserIndex string `json:"user_index"`
}

type StorageConfig struct {
	Region        string        `json:"region"`
	Bucket        string        `json:"bucket"`
	Endpoint      string        `json:"endpoint"`
	PublicBaseURL string        `json:"public_base_url"`
	PresignTTL    time.Duration `json:"presign_ttl"`
	FetchTimeout  time.Duration `json:"fetch_timeout"`
	// FetchHosts lists the hosts the proxy may fetch directly when storage
	// cannot serve a URL. Subdomains of an entry are included.
	FetchHosts    []string      `json:"fetch_hosts"`
	MaxFetchBytes int64         `json:"max_fetch_bytes"`
}

// Configured reports whether a bucket has been set. Without one the blob
// store refuses every call.
func (s StorageConfig) Configured() bool {
	return s.Bucket != ""
}

type ViewerConfig struct {
	DefaultScale   float64       `json:"default_scale"`
	MinScale       float64       `json:"min_scale"`
	MaxScale       float64       `json:"max_scale"`
	ZoomStep       float64       `json:"zoom_step"`
	LibraryTimeout time.Duration `json:"library_timeout"`
	SessionTTL     time.Duration `json:"session_ttl"`
}

type UploadConfig struct {
	MaxSizeHint  int64    `json:"max_size_hint"`
	MaxBodyBytes int64    `json:"max_body_bytes"`
	Extensions   []string `json:"extensions"`
	ContentTypes []string `json:"content_types"`
}

var (
	config     *Configuration
	configOnce sync.Once
	configLock sync.RWMutex
)

func LoadConfig(filePath string) (*Configuration, error) {
	var err error

	configOnce.Do(func() {
		var file *os.File
		file, err = os.Open(filePath)
		if err != nil {
			err = fmt.Errorf("failed to open config file: %w", err)
			return
		}
		defer file.Close()

		loaded := defaults()
		decoder := json.NewDecoder(file)
		if err = decoder.Decode(loaded); err != nil {
			err = fmt.Errorf("failed to decode config file: %w", err)
			return
		}
		fillDefaults(loaded)

		configLock.Lock()
		config = loaded
		configLock.Unlock()
	})

	return GetConfig(), err
}

func GetConfig() *Configuration {
	configLock.RLock()
	defer configLock.RUnlock()
	return config
}

func UpdateConfig(updater func(*Configuration)) {
	configLock.Lock()
	defer configLock.Unlock()
	updater(config)
}

func InitializeDefaultConfig() *Configuration {
	configLock.Lock()
	defer configLock.Unlock()

	config = defaults()
	return config
}

func defaults() *Configuration {
	return &Configuration{
		Server: ServerConfig{
			Port:         "8000",
			Environment:  "development",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxBodyBytes: 8 << 20,
		},
		Security: SecurityConfig{
			SessionCookie:     "session_token",
			SessionTimeout:    24 * time.Hour,
			PasswordMinLength: 6,
			PasswordMaxLength: 128,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "5432",
			Username:        "postgres",
			Password:        "password",
			Name:            "minuty",
			SSLMode:         "disable",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: 300,
		},
		DocumentStore: DocumentStoreConfig{
			Backend:   BackendPostgres,
			Table:     "minuty-documents",
			UserIndex: "byUser",
		},
		Storage: StorageConfig{
			Region:       "us-east-1",
			PresignTTL:    15 * time.Minute,
			FetchTimeout:  30 * time.Second,
			MaxFetchBytes: DefaultMaxFetchBytes,
		},
		Viewer: ViewerConfig{
			DefaultScale:   1.5,
			MinScale:       0.5,
			MaxScale:       3.0,
			ZoomStep:       0.25,
			LibraryTimeout: 10 * time.Second,
			SessionTTL:     2 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSizeHint:  25 << 20,
			MaxBodyBytes: 100 << 20,
			Extensions:   []string{".pdf", ".docx"},
			ContentTypes: []string{
				"application/pdf",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			},
		},
	}
}

// fillDefaults patches zero values left by a partial config file.
func fillDefaults(c *Configuration) {
	d := defaults()
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = d.Server.IdleTimeout
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Storage.MaxFetchBytes <= 0 {
		c.Storage.MaxFetchBytes = d.Storage.MaxFetchBytes
	}
	if c.Security.SessionCookie == "" {
		c.Security.SessionCookie = d.Security.SessionCookie
	}
	if c.Security.SessionTimeout == 0 {
		c.Security.SessionTimeout = d.Security.SessionTimeout
	}
	if c.DocumentStore.Backend == "" {
		c.DocumentStore.Backend = d.DocumentStore.Backend
	}
	if c.Viewer.DefaultScale == 0 {
		c.Viewer = d.Viewer
	}
	if c.Viewer.LibraryTimeout == 0 {
		c.Viewer.LibraryTimeout = d.Viewer.LibraryTimeout
	}
	if c.Upload.MaxSizeHint == 0 {
		c.Upload.MaxSizeHint = d.Upload.MaxSizeHint
	}
	if c.Upload.MaxBodyBytes <= 0 {
		c.Upload.MaxBodyBytes = d.Upload.MaxBodyBytes
	}
	if len(c.Upload.Extensions) == 0 {
		c.Upload.Extensions = d.Upload.Extensions
	}
	if len(c.Upload.ContentTypes) == 0 {
		c.Upload.ContentTypes = d.Upload.ContentTypes
	}
}

// ApplyEnv overlays environment variables on the current configuration.
func ApplyEnv() {
	UpdateConfig(func(c *Configuration) {
		c.Server.Port = get("PORT", c.Server.Port)
		c.Server.Environment = get("APP_ENV", c.Server.Environment)
		c.Logging.Level = get("LOG_LEVEL", c.Logging.Level)

		c.Database.Host = get("DB_HOST", c.Database.Host)
		c.Database.Port = get("DB_PORT", c.Database.Port)
		c.Database.Username = get("DB_USER", c.Database.Username)
		c.Database.Password = get("DB_PASSWORD", c.Database.Password)
		c.Database.Name = get("DB_NAME", c.Database.Name)
		c.Database.SSLMode = get("DB_SSLMODE", c.Database.SSLMode)

		c.DocumentStore.Backend = get("DOCUMENT_STORE", c.DocumentStore.Backend)
		c.DocumentStore.Table = get("DDB_TABLE", c.DocumentStore.Table)

		c.Storage.Region = get("AWS_REGION", c.Storage.Region)
		c.Storage.Bucket = get("S3_BUCKET", c.Storage.Bucket)
		c.Storage.Endpoint = get("AWS_ENDPOINT_URL", c.Storage.Endpoint)
		c.Storage.PublicBaseURL = get("STORAGE_PUBLIC_URL", c.Storage.PublicBaseURL)
		if hosts := get("FETCH_HOSTS", ""); hosts != "" {
			c.Storage.FetchHosts = splitList(hosts)
		}

		if ttl, err := strconv.Atoi(get("PRESIGN_TTL_SECONDS", "")); err == nil && ttl > 0 {
			c.Storage.PresignTTL = time.Duration(ttl) * time.Second
		}
	})
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func LogConfig(logger *zap.Logger) {
	configLock.RLock()
	defer configLock.RUnlock()

	redactedConfig := *config
	redactedConfig.Database.Password = "[REDACTED]"

	logger.Info("Application configuration",
		zap.String("port", redactedConfig.Server.Port),
		zap.String("environment", redactedConfig.Server.Environment),
		zap.Duration("read_timeout", redactedConfig.Server.ReadTimeout),
		zap.Duration("write_timeout", redactedConfig.Server.WriteTimeout),
		zap.String("document_store", redactedConfig.DocumentStore.Backend),
		zap.String("database_host", redactedConfig.Database.Host),
		zap.String("database_name", redactedConfig.Database.Name),
		zap.String("database_password", redactedConfig.Database.Password),
		zap.Bool("storage_configured", redactedConfig.Storage.Configured()),
		zap.String("storage_bucket", redactedConfig.Storage.Bucket),
		zap.Strings("fetch_hosts", redactedConfig.Storage.FetchHosts),
		zap.Float64("default_scale", redactedConfig.Viewer.DefaultScale),
		zap.Duration("library_timeout", redactedConfig.Viewer.LibraryTimeout),
	)
}
