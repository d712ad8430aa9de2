package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jahboukie/ndarite/service"
)

type CallbackHandler struct {
	signature *service.SignatureService
	generator *service.Generator
	store     *service.Store
}

func NewCallbackHandler(signature *service.SignatureService, generator *service.Generator, store *service.Store) *CallbackHandler {
	return &CallbackHandler{signature: signature, generator: generator, store: store}
}

type CallbackRequest struct {
	Checksum string `json:"checksum"`
	Content  string `json:"content"`
}

type CallbackContent struct {
	DocumentID  string `json:"document_id"`
	EnvelopeID  string `json:"envelope_id"`
	Event       string `json:"event"`
	SignerEmail string `json:"signer_email"`
	Status      string `json:"status"`
	ErrorMsg    string `json:"err_msg"`
}

// HandleCallback receives signature events from the provider. The checksum
// must match sha256(seed + content) or the payload is rejected.
func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !h.signature.VerifyCallback(req.Checksum, req.Content) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Checksum mismatch"})
		return
	}

	var content CallbackContent
	if err := json.Unmarshal([]byte(req.Content), &content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content format"})
		return
	}

	doc, err := h.store.GetDocument(content.DocumentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	if doc.EnvelopeID == "" || doc.EnvelopeID != content.EnvelopeID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown envelope"})
		return
	}

	switch content.Event {
	case "signer_update":
		err = h.generator.HandleSignerStatus(c.Request.Context(), doc.ID, content.SignerEmail, content.Status)
	case "completed":
		err = h.generator.HandleCompletion(c.Request.Context(), doc.ID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event"})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Callback received"})
}
