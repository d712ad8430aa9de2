package model

import (
	"time"
)

// UsageEntry is one immutable record in the usage ledger. Entries are only
// ever appended; they are the source of truth for quota accounting and the
// audit trail for analytics.
type UsageEntry struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	ActionType string            `json:"action_type"`
	ResourceID string            `json:"resource_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Usage action types
const (
	ActionDocumentGenerated  = "document_generated"
	ActionSignatureSent      = "signature_sent"
	ActionDocumentDownloaded = "document_downloaded"
)
