package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/services"
)

type DocumentHandler struct {
	documentService *services.DocumentService
	logger          *zap.Logger
}

// DocumentView adds the derived approval label to a document.
type DocumentView struct {
	*models.Document
	ApprovalStatus string `json:"approvalStatus"`
}

type updateDocumentRequest struct {
	Name        *string              `json:"name"`
	Annotations *[]models.Annotation `json:"annotations"`
	Signatures  *[]models.Signature  `json:"signatures"`
}

type finalRequest struct {
	Annotations *[]models.Annotation `json:"annotations"`
	Signatures  *[]models.Signature  `json:"signatures"`
}

func NewDocumentHandler(documentService *services.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          logger.With(zap.String("handler", "documents")),
	}
}

func view(doc *models.Document) DocumentView {
	return DocumentView{Document: doc, ApprovalStatus: doc.ApprovalStatus()}
}

func (dh *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := dh.documentService.GetUserDocuments(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, dh.logger, err)
		return
	}
	views := make([]DocumentView, 0, len(docs))
	for i := range docs {
		views = append(views, view(&docs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"documents": views})
}

func (dh *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := dh.documentService.GetDocument(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, dh.logger, err)
		return
	}
	c.JSON(http.StatusOK, view(doc))
}

func (dh *DocumentHandler) UpdateDocument(c *gin.Context) {
	var req updateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, err, "Invalid document update")
		return
	}
	patch := models.DocumentPatch{Name: req.Name}
	if req.Annotations != nil {
		patch.Annotations = *req.Annotations
		if patch.Annotations == nil {
			patch.Annotations = []models.Annotation{}
		}
	}
	if req.Signatures != nil {
		patch.Signatures = *req.Signatures
		if patch.Signatures == nil {
			patch.Signatures = []models.Signature{}
		}
	}

	doc, err := dh.documentService.UpdateDocument(c.Request.Context(), currentUserID(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, dh.logger, err)
		return
	}
	c.JSON(http.StatusOK, view(doc))
}

func (dh *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := dh.documentService.DeleteDocument(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, dh.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (dh *DocumentHandler) SaveFinal(c *gin.Context) {
	var req finalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			rejectBody(c, err, "Invalid final document request")
			return
		}
	}
	var anns []models.Annotation
	var sigs []models.Signature
	if req.Annotations != nil {
		anns = append([]models.Annotation{}, *req.Annotations...)
	}
	if req.Signatures != nil {
		sigs = append([]models.Signature{}, *req.Signatures...)
	}

	doc, err := dh.documentService.SaveFinal(c.Request.Context(), currentUserID(c), c.Param("id"), anns, sigs)
	if err != nil {
		respondError(c, dh.logger, err)
		return
	}
	c.JSON(http.StatusOK, view(doc))
}

func (dh *DocumentHandler) SaveApproval(c *gin.Context) {
	var req services.Approval
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, err, "Invalid approval request")
		return
	}
	doc, err := dh.documentService.SaveApproval(c.Request.Context(), currentUserID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, dh.logger, err)
		return
	}
	c.JSON(http.StatusOK, view(doc))
}

// DownloadDocument redirects to a short-lived link for the final file, or
// the original when no final copy exists.
func (dh *DocumentHandler) DownloadDocument(c *gin.Context) {
	url, err := dh.documentService.DownloadURL(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, dh.logger, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}
