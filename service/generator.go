package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jahboukie/ndarite/model"
	"github.com/jahboukie/ndarite/pkg/logger"
)

// maxAdditionalParties caps the optional party list on a generation request.
const maxAdditionalParties = 10

// maxSigners caps one signature request.
const maxSigners = 10

// RenderQueue is the generator's view of the render pipeline.
type RenderQueue interface {
	Enqueue(docID string) error
}

// Generator is the façade over document generation: it admits requests
// against the tier policy, creates the document record and its ledger entry
// atomically, and hands the record to the render pipeline without blocking
// the caller.
type Generator struct {
	store     *Store
	policy    *TierPolicy
	renders   RenderQueue
	artifacts ArtifactStore
	signature SignatureProvider
}

func NewGenerator(store *Store, policy *TierPolicy, renders RenderQueue, artifacts ArtifactStore, signature SignatureProvider) *Generator {
	return &Generator{
		store:     store,
		policy:    policy,
		renders:   renders,
		artifacts: artifacts,
		signature: signature,
	}
}

// GenerateRequest is one admission request.
type GenerateRequest struct {
	TemplateID        string         `json:"template_id" binding:"required"`
	DocumentName      string         `json:"document_name" binding:"required,max=255"`
	DisclosingParty   model.Party    `json:"disclosing_party" binding:"required"`
	ReceivingParty    model.Party    `json:"receiving_party" binding:"required"`
	AdditionalParties []model.Party  `json:"additional_parties,omitempty"`
	EffectiveDate     *time.Time     `json:"effective_date,omitempty"`
	ExpirationDate    *time.Time     `json:"expiration_date,omitempty"`
	GoverningLaw      string         `json:"governing_law,omitempty" binding:"max=100"`
	CustomFields      map[string]any `json:"custom_fields,omitempty"`
}

// Generate admits a generation request, creates the draft record plus its
// quota ledger entry, and launches the render. Admission checks run in
// order; the first failure wins and leaves no partial state. Quota is
// charged on attempt, before rendering begins, so a later render failure
// still counts against the ceiling.
func (g *Generator) Generate(ctx context.Context, user *model.User, req *GenerateRequest) (*model.Document, error) {
	// 1. Quota, derived from the ledger so it survives restarts.
	since := monthStart(time.Now())
	count, err := g.store.CountUsageSince(user.ID, model.ActionDocumentGenerated, since)
	if err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}
	if !g.policy.HasQuotaRemaining(user.SubscriptionTier, count) {
		return nil, fmt.Errorf("%w for %s tier", ErrQuotaExceeded, user.SubscriptionTier)
	}

	// 2. Template must exist and be active.
	tpl, err := g.store.GetActiveTemplate(req.TemplateID)
	if err != nil {
		return nil, err
	}

	// 3. Tier gate.
	if !g.policy.CanAccessTemplate(user.SubscriptionTier, tpl.TierRequirement) {
		return nil, fmt.Errorf("%w: requires %s", ErrTemplateForbidden, tpl.TierRequirement)
	}

	// 4. Structural validation.
	if err := validateGenerateRequest(req); err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		TemplateID:   tpl.ID,
		DocumentName: req.DocumentName,
		DocumentData: map[string]any{
			"template_id":          tpl.ID,
			"template_name":        tpl.Name,
			"template_type":        tpl.TemplateType,
			"user_responses":       req.CustomFields,
			"generation_timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		DisclosingParty:   req.DisclosingParty,
		ReceivingParty:    req.ReceivingParty,
		AdditionalParties: req.AdditionalParties,
		EffectiveDate:     req.EffectiveDate,
		ExpirationDate:    req.ExpirationDate,
		GoverningLaw:      req.GoverningLaw,
		Status:            model.StatusDraft,
	}

	entry := &model.UsageEntry{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		ActionType: model.ActionDocumentGenerated,
		ResourceID: doc.ID,
		Metadata: map[string]string{
			"template_id": tpl.ID,
			"tier":        user.SubscriptionTier,
		},
	}

	// Record and ledger entry land together or not at all, and the create
	// transaction re-checks the ceiling so a concurrent admission cannot
	// push the user past quota. The ledger write precedes the render
	// launch, so accounting never under-counts.
	limit := g.policy.QuotaFor(user.SubscriptionTier)
	if err := g.store.CreateDocumentWithUsage(doc, entry, since, limit); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return nil, fmt.Errorf("%w for %s tier", ErrQuotaExceeded, user.SubscriptionTier)
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := g.renders.Enqueue(doc.ID); err != nil {
		logger.Error(ctx, "failed to enqueue render", "document_id", doc.ID, "error", err)
	}

	logger.Info(ctx, "document generation started", "document_id", doc.ID, "template_id", tpl.ID)
	return doc, nil
}

func validateGenerateRequest(req *GenerateRequest) error {
	if strings.TrimSpace(req.DocumentName) == "" {
		return validationError("document name cannot be empty")
	}
	if err := validateParty("disclosing party", &req.DisclosingParty); err != nil {
		return err
	}
	if err := validateParty("receiving party", &req.ReceivingParty); err != nil {
		return err
	}
	if len(req.AdditionalParties) > maxAdditionalParties {
		return validationError("too many additional parties (maximum %d)", maxAdditionalParties)
	}
	for i := range req.AdditionalParties {
		if err := validateParty("additional party", &req.AdditionalParties[i]); err != nil {
			return err
		}
	}
	if req.EffectiveDate != nil && req.ExpirationDate != nil && !req.ExpirationDate.After(*req.EffectiveDate) {
		return validationError("expiration date must be after effective date")
	}
	return nil
}

func validateParty(label string, p *model.Party) error {
	if strings.TrimSpace(p.Name) == "" {
		return validationError("%s name cannot be empty", label)
	}
	if strings.TrimSpace(p.Address) == "" {
		return validationError("%s address cannot be empty", label)
	}
	if !strings.Contains(p.Email, "@") {
		return validationError("%s email is invalid", label)
	}
	return nil
}

// monthStart returns the first instant of the current billing period (UTC
// calendar month).
func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// QuotaStatus reports the caller's current-period consumption.
type QuotaStatus struct {
	Tier      string `json:"tier"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Unlimited bool   `json:"unlimited"`
}

// Quota returns the caller's current-period usage against the tier ceiling.
func (g *Generator) Quota(user *model.User) (*QuotaStatus, error) {
	count, err := g.store.CountUsageSince(user.ID, model.ActionDocumentGenerated, monthStart(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}
	limit := g.policy.QuotaFor(user.SubscriptionTier)
	return &QuotaStatus{
		Tier:      user.SubscriptionTier,
		Used:      count,
		Limit:     limit,
		Unlimited: limit == UnlimitedQuota,
	}, nil
}

// GetDocument returns a document the caller may see: the owner, or an admin
// for read-only inspection.
func (g *Generator) GetDocument(user *model.User, docID string) (*model.Document, error) {
	doc, err := g.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != user.ID && !user.IsAdmin() {
		return nil, ErrNotFound
	}
	return doc, nil
}

// ViewDocument is GetDocument plus view tracking for the owner.
func (g *Generator) ViewDocument(user *model.User, docID string) (*model.Document, error) {
	doc, err := g.GetDocument(user, docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != user.ID {
		return doc, nil
	}
	return g.store.RecordAccess(docID, false)
}

// ListDocuments returns the caller's documents.
func (g *Generator) ListDocuments(user *model.User, filter DocumentFilter) ([]*model.Document, int, error) {
	return g.store.ListDocumentsByUser(user.ID, filter)
}

// DocumentUpdate carries caller-editable fields. Nil means unchanged.
type DocumentUpdate struct {
	DocumentName      *string        `json:"document_name,omitempty"`
	DisclosingParty   *model.Party   `json:"disclosing_party,omitempty"`
	ReceivingParty    *model.Party   `json:"receiving_party,omitempty"`
	AdditionalParties *[]model.Party `json:"additional_parties,omitempty"`
	EffectiveDate     *time.Time     `json:"effective_date,omitempty"`
	ExpirationDate    *time.Time     `json:"expiration_date,omitempty"`
	GoverningLaw      *string        `json:"governing_law,omitempty"`
	CustomFields      map[string]any `json:"custom_fields,omitempty"`
}

// UpdateDocument applies caller edits. Rejected with a conflict once the
// document is signed or completed; status and artifact paths are never
// caller-writable.
func (g *Generator) UpdateDocument(user *model.User, docID string, upd *DocumentUpdate) (*model.Document, error) {
	doc, err := g.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != user.ID {
		return nil, ErrNotFound
	}

	effective := doc.EffectiveDate
	expiration := doc.ExpirationDate
	if upd.EffectiveDate != nil {
		effective = upd.EffectiveDate
	}
	if upd.ExpirationDate != nil {
		expiration = upd.ExpirationDate
	}
	if effective != nil && expiration != nil && !expiration.After(*effective) {
		return nil, validationError("expiration date must be after effective date")
	}
	if upd.AdditionalParties != nil && len(*upd.AdditionalParties) > maxAdditionalParties {
		return nil, validationError("too many additional parties (maximum %d)", maxAdditionalParties)
	}

	return g.store.UpdateDocumentFields(docID, func(d *model.Document) {
		if upd.DocumentName != nil {
			d.DocumentName = *upd.DocumentName
		}
		if upd.DisclosingParty != nil {
			d.DisclosingParty = *upd.DisclosingParty
		}
		if upd.ReceivingParty != nil {
			d.ReceivingParty = *upd.ReceivingParty
		}
		if upd.AdditionalParties != nil {
			d.AdditionalParties = *upd.AdditionalParties
		}
		d.EffectiveDate = effective
		d.ExpirationDate = expiration
		if upd.GoverningLaw != nil {
			d.GoverningLaw = *upd.GoverningLaw
		}
		if upd.CustomFields != nil {
			if d.DocumentData == nil {
				d.DocumentData = map[string]any{}
			}
			d.DocumentData["user_responses"] = upd.CustomFields
		}
	})
}

// DeleteDocument removes a caller's document. Rejected once signed or
// completed.
func (g *Generator) DeleteDocument(user *model.User, docID string) error {
	doc, err := g.store.GetDocument(docID)
	if err != nil {
		return err
	}
	if doc.UserID != user.ID {
		return ErrNotFound
	}
	return g.store.DeleteDocument(docID)
}

// DownloadURL returns a presigned URL for an artifact and records the
// download.
func (g *Generator) DownloadURL(ctx context.Context, user *model.User, docID, format string) (string, error) {
	doc, err := g.GetDocument(user, docID)
	if err != nil {
		return "", err
	}

	var objectName string
	switch format {
	case "", "pdf":
		objectName = doc.PDFPath
	case "html":
		objectName = doc.HTMLPath
	default:
		return "", validationError("unsupported format %q", format)
	}
	if objectName == "" {
		return "", validationError("document has no rendered artifact yet")
	}

	url, err := g.artifacts.PresignedURL(ctx, objectName)
	if err != nil {
		return "", fmt.Errorf("presign artifact: %w", err)
	}

	if _, err := g.store.RecordAccess(docID, true); err != nil {
		logger.Warn(ctx, "failed to record download", "document_id", docID, "error", err)
	}
	if err := g.store.AppendUsage(&model.UsageEntry{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		ActionType: model.ActionDocumentDownloaded,
		ResourceID: docID,
		Metadata:   map[string]string{"format": format},
	}); err != nil {
		logger.Warn(ctx, "failed to record download usage", "document_id", docID, "error", err)
	}
	return url, nil
}

// SignerRequest names one requested signer.
type SignerRequest struct {
	Name  string `json:"signer_name" binding:"required,max=255"`
	Email string `json:"signer_email" binding:"required,email"`
	Role  string `json:"signer_role,omitempty" binding:"max=100"`
}

// RequestSignature sends a generated document out for signature. Permitted
// only when the document is generated with a primary artifact; anything else
// is a validation error, not a silent no-op.
func (g *Generator) RequestSignature(ctx context.Context, user *model.User, docID string, signers []SignerRequest) (*model.Document, error) {
	doc, err := g.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != user.ID {
		return nil, ErrNotFound
	}
	if doc.Status != model.StatusGenerated || !doc.HasPDF() {
		return nil, validationError("document must be generated before sending for signature")
	}
	if len(signers) == 0 {
		return nil, validationError("at least one signer is required")
	}
	if len(signers) > maxSigners {
		return nil, validationError("too many signers (maximum %d)", maxSigners)
	}

	seen := make(map[string]bool, len(signers))
	records := make([]*model.Signer, 0, len(signers))
	for _, signer := range signers {
		email := strings.ToLower(strings.TrimSpace(signer.Email))
		if seen[email] {
			return nil, validationError("duplicate signer email %s", email)
		}
		seen[email] = true
		records = append(records, &model.Signer{
			ID:    uuid.New().String(),
			Name:  signer.Name,
			Email: email,
			Role:  signer.Role,
		})
	}

	// Persist the pending request first; the store re-checks the document
	// state inside its transaction. The provider call runs last, and a
	// failure unwinds the pending request.
	if err := g.store.CreateSigners(docID, records); err != nil {
		return nil, err
	}

	envelopeID, err := g.signature.Send(ctx, doc, records)
	if err != nil {
		if cancelErr := g.store.CancelSignatureRequest(docID); cancelErr != nil {
			logger.Error(ctx, "failed to unwind signature request", "document_id", docID, "error", cancelErr)
		}
		return nil, fmt.Errorf("send for signature: %w", err)
	}

	entry := &model.UsageEntry{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		ActionType: model.ActionSignatureSent,
		ResourceID: docID,
		Metadata:   map[string]string{"signers": fmt.Sprintf("%d", len(records))},
	}
	if err := g.store.ConfirmSignatureSent(docID, envelopeID, entry); err != nil {
		return nil, fmt.Errorf("record signature request: %w", err)
	}

	logger.Info(ctx, "document sent for signature", "document_id", docID, "signers", len(records))
	return g.store.GetDocument(docID)
}

// HandleSignerStatus applies one signer status report from the provider.
// When every signer has signed, the document moves generated -> signed.
func (g *Generator) HandleSignerStatus(ctx context.Context, docID, email, status string) error {
	var signedAt *time.Time
	if status == model.SignatureSigned {
		now := time.Now()
		signedAt = &now
	}

	allSigned, err := g.store.UpdateSignerStatus(docID, strings.ToLower(email), status, signedAt)
	if err != nil {
		return err
	}

	switch {
	case allSigned:
		_, err := g.store.CompareAndSwapStatus(docID, model.StatusGenerated, model.StatusSigned, func(d *model.Document) {
			d.SignatureStatus = model.SignatureSigned
			d.SignedAt = signedAt
		})
		if err != nil {
			return err
		}
		logger.Info(ctx, "document fully signed", "document_id", docID)
	case status == model.SignatureDeclined:
		_, err := g.store.UpdateDocumentFields(docID, func(d *model.Document) {
			d.SignatureStatus = model.SignatureDeclined
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// HandleCompletion closes out a fully countersigned document.
func (g *Generator) HandleCompletion(ctx context.Context, docID string) error {
	_, err := g.store.CompareAndSwapStatus(docID, model.StatusSigned, model.StatusCompleted, nil)
	if err != nil {
		return err
	}
	logger.Info(ctx, "document completed", "document_id", docID)
	return nil
}

// GetSigners returns the signer sub-records for a caller-visible document.
func (g *Generator) GetSigners(user *model.User, docID string) ([]*model.Signer, error) {
	if _, err := g.GetDocument(user, docID); err != nil {
		return nil, err
	}
	return g.store.GetSigners(docID)
}
