package model

import (
	"time"
)

// Document represents one generation request and its lifecycle.
type Document struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	TemplateID string `json:"template_id"`

	DocumentName string         `json:"document_name"`
	DocumentData map[string]any `json:"document_data,omitempty"`

	DisclosingParty   Party   `json:"disclosing_party"`
	ReceivingParty    Party   `json:"receiving_party"`
	AdditionalParties []Party `json:"additional_parties,omitempty"`

	EffectiveDate  *time.Time `json:"effective_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	GoverningLaw   string     `json:"governing_law,omitempty"`

	// Artifact locations, written only by the render pipeline.
	PDFPath  string `json:"pdf_file_path,omitempty"`
	HTMLPath string `json:"html_file_path,omitempty"`

	Status   string `json:"status"`
	ErrorMsg string `json:"error_msg,omitempty"`

	// RenderInProgress is set while a render worker owns the record.
	RenderInProgress bool `json:"-"`

	// Signature flow, independent of Status.
	SignatureStatus string     `json:"signature_status,omitempty"`
	EnvelopeID      string     `json:"envelope_id,omitempty"`
	SignedAt        *time.Time `json:"signed_at,omitempty"`

	ViewCount     int        `json:"view_count"`
	DownloadCount int        `json:"download_count"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Party holds one party's contact bundle.
type Party struct {
	Name    string `json:"name" binding:"required,max=255"`
	Title   string `json:"title,omitempty" binding:"max=100"`
	Company string `json:"company,omitempty" binding:"max=255"`
	Address string `json:"address" binding:"required,max=500"`
	Email   string `json:"email" binding:"required,email,max=255"`
	Phone   string `json:"phone,omitempty" binding:"max=20"`
}

// Document status constants
const (
	StatusDraft     = "draft"
	StatusGenerated = "generated"
	StatusSigned    = "signed"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Signature sub-status constants
const (
	SignaturePending  = "pending"
	SignatureSigned   = "signed"
	SignatureDeclined = "declined"
	SignatureExpired  = "expired"
)

// transitions lists every legal status move. Anything else is a conflict.
var transitions = map[string][]string{
	StatusDraft:     {StatusGenerated, StatusError},
	StatusGenerated: {StatusSigned},
	StatusSigned:    {StatusCompleted},
}

// CanTransition reports whether a status move is legal. The lifecycle is
// monotonic forward; error is terminal and reachable from draft only.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsImmutable reports whether caller-initiated update or delete is rejected.
func (d *Document) IsImmutable() bool {
	return d.Status == StatusSigned || d.Status == StatusCompleted
}

// HasPDF reports whether the final artifact exists.
func (d *Document) HasPDF() bool {
	return d.PDFPath != ""
}

// Clone returns a deep copy safe to mutate outside the store.
func (d *Document) Clone() *Document {
	c := *d
	if d.AdditionalParties != nil {
		c.AdditionalParties = make([]Party, len(d.AdditionalParties))
		copy(c.AdditionalParties, d.AdditionalParties)
	}
	if d.DocumentData != nil {
		c.DocumentData = make(map[string]any, len(d.DocumentData))
		for k, v := range d.DocumentData {
			c.DocumentData[k] = v
		}
	}
	return &c
}

// Signer is one requested signer on a document.
type Signer struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Name       string     `json:"signer_name"`
	Email      string     `json:"signer_email"`
	Role       string     `json:"signer_role,omitempty"`
	Status     string     `json:"signature_status"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Clone returns a copy safe to mutate outside the store.
func (s *Signer) Clone() *Signer {
	c := *s
	return &c
}
