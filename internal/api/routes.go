package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/api/handlers"
	"github.com/Essu-man/Minuty/internal/api/middleware"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/internal/services"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

// Services bundles what the router exposes.
type Services struct {
	Auth      *services.AuthService
	Documents *services.DocumentService
	Uploads   *services.UploadService
	Downloads *services.DownloadService
	Viewer    *services.ViewerService
}

type Router struct {
	engine            *gin.Engine
	logger            *zap.Logger
	metrics           *metrics.MetricsCollector
	authHandler       *handlers.AuthHandler
	docHandler        *handlers.DocumentHandler
	uploadHandler     *handlers.UploadHandler
	downloadHandler   *handlers.DownloadHandler
	sessionHandler    *handlers.SessionHandler
	signatureHandler  *handlers.SignatureHandler
	authMiddleware    *middleware.AuthMiddleware
	reqMiddleware     *middleware.RequestMiddleware
	loggingMiddleware *middleware.LoggingMiddleware
}

func NewRouter(cfg *config.Configuration, logger *zap.Logger, metrics *metrics.MetricsCollector, svc Services) *Router {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	loggingMiddleware := middleware.NewLoggingMiddleware(logger)
	authMiddleware := middleware.NewAuthMiddleware(svc.Auth, cfg.Security.SessionCookie)

	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(loggingMiddleware.LogRequest())
	engine.Use(reqMiddleware.RecoverPanic())
	engine.Use(middleware.LimitBody(cfg.Server.MaxBodyBytes, map[string]int64{
		"/api/uploads": cfg.Upload.MaxBodyBytes,
	}))

	return &Router{
		engine:            engine,
		logger:            logger,
		metrics:           metrics,
		authHandler:       handlers.NewAuthHandler(svc.Auth, cfg.Security, logger),
		docHandler:        handlers.NewDocumentHandler(svc.Documents, logger),
		uploadHandler:     handlers.NewUploadHandler(svc.Uploads, logger),
		downloadHandler:   handlers.NewDownloadHandler(svc.Downloads, logger),
		sessionHandler:    handlers.NewSessionHandler(svc.Viewer, logger),
		signatureHandler:  handlers.NewSignatureHandler(logger),
		authMiddleware:    authMiddleware,
		reqMiddleware:     reqMiddleware,
		loggingMiddleware: loggingMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "minuty"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.GetCounters(),
			"latencies": r.metrics.GetLatencies(),
			"sizes":     r.metrics.GetSizes(),
		})
	})

	apiGroup := r.engine.Group("/api")

	auth := apiGroup.Group("/auth")
	{
		auth.POST("/signup", r.authHandler.SignUp)
		auth.POST("/signin", r.reqMiddleware.SignInThrottle(), r.authHandler.SignIn)
		auth.POST("/logout", r.authMiddleware.ExtractToken(), r.authHandler.Logout)
		auth.GET("/me", r.authMiddleware.RequireAuth(), r.authHandler.Me)
	}

	apiGroup.GET("/download-file", r.authMiddleware.Identify(), r.downloadHandler.Proxy)
	apiGroup.GET("/uploads/limits", r.uploadHandler.Limits)

	authorized := apiGroup.Group("/")
	authorized.Use(r.authMiddleware.RequireAuth())
	{
		authorized.POST("/uploads", r.uploadHandler.Upload)
		authorized.GET("/uploads/:id", r.uploadHandler.Status)
		authorized.POST("/uploads/:id/retry", r.uploadHandler.Retry)

		authorized.GET("/documents", r.docHandler.ListDocuments)
		authorized.GET("/documents/:id", r.docHandler.GetDocument)
		authorized.PATCH("/documents/:id", r.docHandler.UpdateDocument)
		authorized.DELETE("/documents/:id", r.docHandler.DeleteDocument)
		authorized.GET("/documents/:id/download", r.docHandler.DownloadDocument)
		authorized.POST("/documents/:id/final", r.docHandler.SaveFinal)
		authorized.POST("/documents/:id/approval", r.docHandler.SaveApproval)

		authorized.POST("/signatures", r.signatureHandler.Render)

		authorized.POST("/sessions", r.sessionHandler.OpenSession)
		authorized.GET("/sessions/:id", r.sessionHandler.GetSession)
		authorized.POST("/sessions/:id/events", r.sessionHandler.ApplyEvent)
		authorized.GET("/sessions/:id/page.png", r.sessionHandler.PagePNG)
		authorized.GET("/sessions/:id/ws", r.sessionHandler.Stream)
		authorized.DELETE("/sessions/:id", r.sessionHandler.CloseSession)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Stop ends the router's background helpers.
func (r *Router) Stop() {
	r.reqMiddleware.Stop()
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
