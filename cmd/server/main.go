package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Essu-man/Minuty/internal/api"
	"github.com/Essu-man/Minuty/internal/awsutil"
	"github.com/Essu-man/Minuty/internal/blob"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/internal/db"
	"github.com/Essu-man/Minuty/internal/ddb"
	"github.com/Essu-man/Minuty/internal/docx"
	"github.com/Essu-man/Minuty/internal/finalize"
	"github.com/Essu-man/Minuty/internal/pdfcap"
	"github.com/Essu-man/Minuty/internal/services"
	"github.com/Essu-man/Minuty/internal/viewer"
	"github.com/Essu-man/Minuty/pkg/logger"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

func main() {
	cfg := loadConfig()

	zapLogger, err := logger.NewLogger(cfg.Server.Environment, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	config.LogConfig(zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Initialize(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}

	metricsCollector := metrics.NewMetricsCollector()

	awsConfig, endpoint, err := awsutil.Load(ctx, cfg.Storage.Region, cfg.Storage.Endpoint)
	if err != nil {
		zapLogger.Fatal("Failed to load AWS configuration", zap.Error(err))
	}
	if endpoint != "" {
		zapLogger.Info("Using custom AWS endpoint", zap.String("endpoint", endpoint))
	}

	blobs := blob.NewFromConfig(awsConfig, cfg.Storage, zapLogger, metricsCollector)
	if !blobs.Configured() {
		zapLogger.Warn("Storage bucket is not configured; uploads and downloads will fail")
	}

	documentStore := newDocumentStore(cfg, database, dynamodb.NewFromConfig(awsConfig), zapLogger)

	// The PDF capability becomes available asynchronously; sessions opened
	// before it resolves wait up to the library timeout.
	readiness := viewer.NewReadiness()
	go readiness.Resolve(pdfcap.New(zapLogger))

	authService := services.NewAuthService(db.NewUserStore(database), cfg.Security, zapLogger, metricsCollector)
	documentService := services.NewDocumentService(documentStore, blobs, finalize.NewStamper(zapLogger), zapLogger, metricsCollector)
	downloadService := services.NewDownloadService(blobs, cfg.Storage, zapLogger, metricsCollector)
	uploadService := services.NewUploadService(blobs, documentService, cfg.Upload, zapLogger, metricsCollector)
	loader := viewer.NewLoader(downloadService, docx.New(), readiness, cfg.Viewer.LibraryTimeout, zapLogger)
	viewerService := services.NewViewerService(documentService, loader, cfg.Viewer, zapLogger, metricsCollector)

	router := api.NewRouter(cfg, zapLogger, metricsCollector, api.Services{
		Auth:      authService,
		Documents: documentService,
		Uploads:   uploadService,
		Downloads: downloadService,
		Viewer:    viewerService,
	})
	router.SetupRoutes()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		zapLogger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := uploadService.Shutdown(ctxShutdown); err != nil {
		zapLogger.Warn("Uploads still running at shutdown", zap.Error(err))
	}
	if err := viewerService.Shutdown(ctxShutdown); err != nil {
		zapLogger.Warn("Failed to flush viewer sessions", zap.Error(err))
	}
	authService.Stop()
	router.Stop()

	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}
	zapLogger.Info("Server gracefully stopped")
}

// loadConfig reads CONFIG_FILE when set, otherwise starts from defaults.
// Environment variables are applied on top either way.
func loadConfig() *config.Configuration {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := config.LoadConfig(path); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		config.InitializeDefaultConfig()
	}
	config.ApplyEnv()
	return config.GetConfig()
}

func newDocumentStore(cfg *config.Configuration, database *gorm.DB, client *dynamodb.Client, logger *zap.Logger) services.DocumentStore {
	if cfg.DocumentStore.Backend == config.BackendDynamoDB {
		logger.Info("Using DynamoDB document store", zap.String("table", cfg.DocumentStore.Table))
		return &ddb.Repo{DB: client, Table: cfg.DocumentStore.Table, UserIndex: cfg.DocumentStore.UserIndex}
	}
	logger.Info("Using Postgres document store")
	return db.NewDocumentStore(database)
}
