package model

import (
	"time"
)

// Template is a versioned, reusable document definition. Templates are
// administrator-owned and soft-disabled rather than deleted.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	TemplateType    string `json:"template_type"`
	Jurisdiction    string `json:"jurisdiction"`
	IndustryFocus   string `json:"industry_focus,omitempty"`
	ComplexityLevel string `json:"complexity_level"`

	TemplateContent map[string]any `json:"template_content"`
	LegalClauses    []Clause       `json:"legal_clauses,omitempty"`
	RequiredFields  []string       `json:"required_fields"`
	OptionalFields  []string       `json:"optional_fields,omitempty"`

	// TierRequirement gates which subscription levels may use the template.
	TierRequirement string `json:"tier_requirement"`

	Version  int  `json:"version"`
	IsActive bool `json:"is_active"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clause is one legal clause rendered into the output.
type Clause struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Template type constants
const (
	TypeBilateral    = "bilateral"
	TypeUnilateral   = "unilateral"
	TypeMultilateral = "multilateral"
)

// Complexity level constants
const (
	ComplexityBasic    = "basic"
	ComplexityStandard = "standard"
	ComplexityAdvanced = "advanced"
)

// Clone returns a deep copy safe to mutate outside the store.
func (t *Template) Clone() *Template {
	c := *t
	if t.TemplateContent != nil {
		c.TemplateContent = make(map[string]any, len(t.TemplateContent))
		for k, v := range t.TemplateContent {
			c.TemplateContent[k] = v
		}
	}
	if t.LegalClauses != nil {
		c.LegalClauses = make([]Clause, len(t.LegalClauses))
		copy(c.LegalClauses, t.LegalClauses)
	}
	if t.RequiredFields != nil {
		c.RequiredFields = append([]string(nil), t.RequiredFields...)
	}
	if t.OptionalFields != nil {
		c.OptionalFields = append([]string(nil), t.OptionalFields...)
	}
	return &c
}
