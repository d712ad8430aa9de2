package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jahboukie/ndarite/middleware"
	"github.com/jahboukie/ndarite/model"
	"github.com/jahboukie/ndarite/service"
)

type TemplateHandler struct {
	store  *service.Store
	policy *service.TierPolicy
}

func NewTemplateHandler(store *service.Store, policy *service.TierPolicy) *TemplateHandler {
	return &TemplateHandler{store: store, policy: policy}
}

// List returns the active template catalog. Each entry carries an accessible
// flag so clients can gray out templates above the caller's tier.
func (h *TemplateHandler) List(c *gin.Context) {
	tier := middleware.GetTier(c)

	templates, err := h.store.ListActiveTemplates()
	if err != nil {
		writeServiceError(c, err)
		return
	}

	result := make([]gin.H, len(templates))
	for i, tpl := range templates {
		result[i] = gin.H{
			"id":               tpl.ID,
			"name":             tpl.Name,
			"description":      tpl.Description,
			"template_type":    tpl.TemplateType,
			"jurisdiction":     tpl.Jurisdiction,
			"complexity_level": tpl.ComplexityLevel,
			"tier_requirement": tpl.TierRequirement,
			"accessible":       h.policy.CanAccessTemplate(tier, tpl.TierRequirement),
		}
	}

	c.JSON(http.StatusOK, gin.H{"templates": result})
}

// Get returns one active template with its field definitions.
func (h *TemplateHandler) Get(c *gin.Context) {
	tpl, err := h.store.GetActiveTemplate(c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// Plans returns the subscription tier catalog.
func (h *TemplateHandler) Plans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": h.policy.Plans()})
}

type TemplateRequest struct {
	Name            string         `json:"name" binding:"required,max=255"`
	Description     string         `json:"description,omitempty" binding:"max=1000"`
	TemplateType    string         `json:"template_type" binding:"required,oneof=bilateral unilateral multilateral"`
	Jurisdiction    string         `json:"jurisdiction" binding:"required,max=100"`
	IndustryFocus   string         `json:"industry_focus,omitempty" binding:"max=100"`
	ComplexityLevel string         `json:"complexity_level" binding:"required,oneof=basic standard advanced"`
	TemplateContent map[string]any `json:"template_content" binding:"required"`
	LegalClauses    []model.Clause `json:"legal_clauses,omitempty"`
	RequiredFields  []string       `json:"required_fields" binding:"required"`
	OptionalFields  []string       `json:"optional_fields,omitempty"`
	TierRequirement string         `json:"tier_requirement" binding:"required,oneof=free starter professional enterprise"`
}

// Create adds a template to the catalog. Admin only.
func (h *TemplateHandler) Create(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	tpl := &model.Template{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Description:     req.Description,
		TemplateType:    req.TemplateType,
		Jurisdiction:    req.Jurisdiction,
		IndustryFocus:   req.IndustryFocus,
		ComplexityLevel: req.ComplexityLevel,
		TemplateContent: req.TemplateContent,
		LegalClauses:    req.LegalClauses,
		RequiredFields:  req.RequiredFields,
		OptionalFields:  req.OptionalFields,
		TierRequirement: req.TierRequirement,
		CreatedBy:       middleware.GetUserID(c),
	}

	if err := h.store.CreateTemplate(tpl); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// Update replaces a template's definition. A content change bumps the
// version; documents already generated keep their snapshot. Admin only.
func (h *TemplateHandler) Update(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	tpl, err := h.store.UpdateTemplate(c.Param("id"), true, func(t *model.Template) {
		t.Name = req.Name
		t.Description = req.Description
		t.TemplateType = req.TemplateType
		t.Jurisdiction = req.Jurisdiction
		t.IndustryFocus = req.IndustryFocus
		t.ComplexityLevel = req.ComplexityLevel
		t.TemplateContent = req.TemplateContent
		t.LegalClauses = req.LegalClauses
		t.RequiredFields = req.RequiredFields
		t.OptionalFields = req.OptionalFields
		t.TierRequirement = req.TierRequirement
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// Deactivate soft-disables a template so new generations stop while existing
// documents keep working. Admin only.
func (h *TemplateHandler) Deactivate(c *gin.Context) {
	if err := h.store.DeactivateTemplate(c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Template deactivated"})
}
