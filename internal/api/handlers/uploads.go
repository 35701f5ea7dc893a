package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/services"
)

type UploadHandler struct {
	uploadService *services.UploadService
	logger        *zap.Logger
}

func NewUploadHandler(uploadService *services.UploadService, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
		logger:        logger.With(zap.String("handler", "uploads")),
	}
}

func (uh *UploadHandler) Limits(c *gin.Context) {
	c.JSON(http.StatusOK, uh.uploadService.Limits())
}

// Upload accepts a multipart "file" and starts the transfer. Clients poll
// the returned upload for progress; ?wait=true blocks until it settles.
func (uh *UploadHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		rejectBody(c, err, "A file is required")
		return
	}
	f, err := header.Open()
	if err != nil {
		badRequest(c, "Could not read uploaded file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "Could not read uploaded file")
		return
	}

	upload, err := uh.uploadService.Start(currentUserID(c), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		respondError(c, uh.logger, err)
		return
	}
	if c.Query("wait") == "true" {
		if upload, err = uh.uploadService.Wait(c.Request.Context(), currentUserID(c), upload.ID); err != nil {
			respondError(c, uh.logger, err)
			return
		}
	}
	c.JSON(http.StatusAccepted, upload)
}

func (uh *UploadHandler) Status(c *gin.Context) {
	upload, err := uh.uploadService.Get(currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, uh.logger, err)
		return
	}
	c.JSON(http.StatusOK, upload)
}

func (uh *UploadHandler) Retry(c *gin.Context) {
	upload, err := uh.uploadService.Retry(currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, uh.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, upload)
}
