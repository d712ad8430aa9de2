package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jahboukie/ndarite/middleware"
	"github.com/jahboukie/ndarite/model"
	"github.com/jahboukie/ndarite/service"
)

type DocumentHandler struct {
	users     *service.UserService
	generator *service.Generator
}

func NewDocumentHandler(users *service.UserService, generator *service.Generator) *DocumentHandler {
	return &DocumentHandler{users: users, generator: generator}
}

// currentUser resolves the authenticated caller to a full user record so tier
// and role checks run against current state, not token claims.
func (h *DocumentHandler) currentUser(c *gin.Context) (*model.User, bool) {
	user, err := h.users.GetByID(middleware.GetUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
		return nil, false
	}
	return user, true
}

// Generate admits a generation request and starts the background render.
func (h *DocumentHandler) Generate(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req service.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	doc, err := h.generator.Generate(c.Request.Context(), user, &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":            doc.ID,
		"document_name": doc.DocumentName,
		"status":        doc.Status,
		"created_at":    doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// List returns the caller's documents, newest first.
func (h *DocumentHandler) List(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	filter := service.DocumentFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	filter.Limit = 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}

	docs, total, err := h.generator.ListDocuments(user, filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	result := make([]gin.H, len(docs))
	for i, doc := range docs {
		result[i] = gin.H{
			"id":            doc.ID,
			"document_name": doc.DocumentName,
			"template_id":   doc.TemplateID,
			"status":        doc.Status,
			"created_at":    doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":    doc.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"documents": result, "total": total})
}

// Get returns a single document with full detail and records the view.
func (h *DocumentHandler) Get(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	doc, err := h.generator.ViewDocument(user, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GetStatus returns the lifecycle status of a document.
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	doc, err := h.generator.GetDocument(user, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":               doc.ID,
		"status":           doc.Status,
		"signature_status": doc.SignatureStatus,
		"error_msg":        doc.ErrorMsg,
	})
}

// Update applies caller edits to a document that is not yet signed.
func (h *DocumentHandler) Update(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var upd service.DocumentUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	doc, err := h.generator.UpdateDocument(user, c.Param("id"), &upd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Delete removes a document that is not yet signed.
func (h *DocumentHandler) Delete(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	if err := h.generator.DeleteDocument(user, c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

// Download returns a presigned URL for a rendered artifact.
func (h *DocumentHandler) Download(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	url, err := h.generator.DownloadURL(c.Request.Context(), user, c.Param("id"), c.Query("format"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

type SignatureRequest struct {
	Signers []service.SignerRequest `json:"signers" binding:"required,dive"`
	Message string                  `json:"message,omitempty" binding:"max=1000"`
}

// RequestSignature sends a generated document out for signature.
func (h *DocumentHandler) RequestSignature(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req SignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	doc, err := h.generator.RequestSignature(c.Request.Context(), user, c.Param("id"), req.Signers)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":               doc.ID,
		"signature_status": doc.SignatureStatus,
		"envelope_id":      doc.EnvelopeID,
	})
}

// GetSigners lists the signer records of a document.
func (h *DocumentHandler) GetSigners(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	signers, err := h.generator.GetSigners(user, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signers": signers})
}

// Quota reports the caller's current billing-period consumption.
func (h *DocumentHandler) Quota(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	status, err := h.generator.Quota(user)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
