package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/services"
)

type DownloadHandler struct {
	downloadService *services.DownloadService
	logger          *zap.Logger
}

func NewDownloadHandler(downloadService *services.DownloadService, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloadService: downloadService,
		logger:          logger.With(zap.String("handler", "download")),
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Proxy streams a stored file back to the browser so it can be read
// without cross-origin restrictions. Files in our bucket are only served to
// their owner.
func (dh *DownloadHandler) Proxy(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL parameter is required"})
		return
	}

	ctx := services.WithUser(c.Request.Context(), currentUserID(c))
	d, err := dh.downloadService.Download(ctx, url)
	if err != nil {
		var de *services.DownloadError
		if !errors.As(err, &de) {
			if apperr.Classify(err) == apperr.KindAuthorization {
				respondError(c, dh.logger, err)
				return
			}
			dh.logger.Error("Download route error", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if errors.Is(de.Storage, apperr.ErrNotConfigured) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage is not configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": de.Error(),
			"details": gin.H{
				"storageError": errText(de.Storage),
				"fetchError":   errText(de.Fetch),
			},
		})
		return
	}

	c.Header("Content-Length", strconv.Itoa(len(d.Body)))
	if d.FromStorage {
		c.Header("Cache-Control", "private, max-age=3600")
	} else {
		c.Header("Cache-Control", "public, max-age=3600")
	}
	c.Data(http.StatusOK, d.ContentType, d.Body)
}
