package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jahboukie/ndarite/config"
	"github.com/jahboukie/ndarite/model"
)

// SignatureProvider is the e-signature boundary: it accepts a document and a
// signer list and returns an envelope acknowledgment. Signer status arrives
// later through the provider callback.
type SignatureProvider interface {
	Send(ctx context.Context, doc *model.Document, signers []*model.Signer) (envelopeID string, err error)
}

// SignatureService talks to the configured e-signature provider. When no
// provider URL is configured it acknowledges envelopes locally, which keeps
// the signature flow usable in development.
type SignatureService struct {
	config     *config.SignatureConfig
	httpClient *http.Client
}

func NewSignatureService(cfg *config.SignatureConfig) *SignatureService {
	return &SignatureService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// envelopeRequest is the outbound payload to the provider.
type envelopeRequest struct {
	DocumentID string           `json:"document_id"`
	Signers    []envelopeSigner `json:"signers"`
}

type envelopeSigner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type envelopeResponse struct {
	EnvelopeID string `json:"envelope_id"`
}

// Send submits the signer list and returns the provider's envelope ID.
func (s *SignatureService) Send(ctx context.Context, doc *model.Document, signers []*model.Signer) (string, error) {
	if s.config.ProviderURL == "" {
		envelopeID := uuid.New().String()
		slog.Info("signature provider not configured, acknowledging locally",
			"document_id", doc.ID,
			"envelope_id", envelopeID,
			"signers", len(signers),
		)
		return envelopeID, nil
	}

	req := envelopeRequest{DocumentID: doc.ID}
	for _, signer := range signers {
		req.Signers = append(req.Signers, envelopeSigner{
			Name:  signer.Name,
			Email: signer.Email,
			Role:  signer.Role,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal envelope request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.ProviderURL+"/envelopes", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build envelope request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send envelope: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var envelope envelopeResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode envelope response: %w", err)
	}
	return envelope.EnvelopeID, nil
}

// VerifyCallback verifies a provider callback checksum.
// Checksum = SHA256(seed + content).
func (s *SignatureService) VerifyCallback(checksum, content string) bool {
	hash := sha256.Sum256([]byte(s.config.Seed + content))
	return checksum == hex.EncodeToString(hash[:])
}
