package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/signature"
	"github.com/Essu-man/Minuty/internal/viewer"
)

// statusFor maps an error to its HTTP status. Viewer state errors are
// conflicts with the session's current mode.
func statusFor(err error) int {
	switch {
	case errors.Is(err, viewer.ErrBusy),
		errors.Is(err, viewer.ErrInvalidTransition),
		errors.Is(err, viewer.ErrNoOverlay):
		return http.StatusConflict
	case errors.Is(err, viewer.ErrUnknownTool),
		errors.Is(err, signature.ErrConsentRequired),
		errors.Is(err, signature.ErrEmptyName),
		errors.Is(err, signature.ErrNameTooLong),
		errors.Is(err, signature.ErrTooManyPoints),
		errors.Is(err, signature.ErrInvalidDataURL):
		return http.StatusBadRequest
	case errors.Is(err, viewer.ErrUnknownEntity):
		return http.StatusNotFound
	}
	return apperr.Status(err)
}

func messageFor(err error, status int) string {
	if status < http.StatusInternalServerError && apperr.Classify(err) == apperr.KindInternal {
		return err.Error()
	}
	return apperr.Message(err)
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": messageFor(err, status), "kind": apperr.Classify(err).String()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// rejectBody answers a body that failed to parse. Bodies cut off by the
// size limit get 413 instead of the generic message.
func rejectBody(c *gin.Context, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body is too large"})
		return
	}
	badRequest(c, message)
}

func currentUserID(c *gin.Context) string {
	return c.GetString("userID")
}
