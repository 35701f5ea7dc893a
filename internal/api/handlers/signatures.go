package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/signature"
)

type SignatureHandler struct {
	logger *zap.Logger
}

func NewSignatureHandler(logger *zap.Logger) *SignatureHandler {
	return &SignatureHandler{logger: logger.With(zap.String("handler", "signatures"))}
}

// Render turns a drawn or typed capture into a PNG data URL. A pad with no
// ink yields 422 so the client keeps the capture dialog open.
func (sh *SignatureHandler) Render(c *gin.Context) {
	var req signature.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, err, "Invalid signature request")
		return
	}
	dataURL, ok, err := req.Render()
	if err != nil {
		respondError(c, sh.logger, err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Please draw your signature first"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imageData": dataURL})
}
