package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/jahboukie/ndarite/model"
)

// Store is the transactional record store for users, templates, documents,
// signers and the usage ledger. All multi-step writes run inside one write
// transaction so partial failures roll back, and every document status
// transition is a compare-and-set keyed on the expected prior status.
type Store struct {
	db *memdb.MemDB
}

// NewStore returns an empty store.
func NewStore() (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &Store{db: db}, nil
}

// --- users ---

// CreateUser inserts a new user. The email must be unused.
func (s *Store) CreateUser(user *model.User) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblUsers, "email", user.Email)
	if err != nil {
		return fmt.Errorf("find user by email: %w", err)
	}
	if raw != nil {
		return ErrDuplicateEmail
	}

	clone := user.Clone()
	clone.CreatedAt = time.Now()
	clone.UpdatedAt = clone.CreatedAt
	if err := txn.Insert(tblUsers, clone); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	txn.Commit()
	*user = *clone
	return nil
}

// GetUserByID returns the user with the given ID.
func (s *Store) GetUserByID(id string) (*model.User, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblUsers, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw.(*model.User).Clone(), nil
}

// GetUserByEmail returns the user with the given email.
func (s *Store) GetUserByEmail(email string) (*model.User, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblUsers, "email", email)
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw.(*model.User).Clone(), nil
}

// UpdateUser applies a mutation to the stored user.
func (s *Store) UpdateUser(id string, mutate func(*model.User)) (*model.User, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblUsers, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	clone := raw.(*model.User).Clone()
	mutate(clone)
	clone.UpdatedAt = time.Now()
	if err := txn.Insert(tblUsers, clone); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	txn.Commit()
	return clone.Clone(), nil
}

// --- templates ---

// CreateTemplate inserts a new template at version 1.
func (s *Store) CreateTemplate(tpl *model.Template) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	clone := tpl.Clone()
	clone.Version = 1
	clone.IsActive = true
	clone.CreatedAt = time.Now()
	clone.UpdatedAt = clone.CreatedAt
	if err := txn.Insert(tblTemplates, clone); err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	txn.Commit()
	*tpl = *clone
	return nil
}

// GetTemplate returns a template regardless of its active flag. Renders of
// existing documents still need soft-disabled templates.
func (s *Store) GetTemplate(id string) (*model.Template, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblTemplates, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	if raw == nil {
		return nil, ErrTemplateNotFound
	}
	return raw.(*model.Template).Clone(), nil
}

// GetActiveTemplate returns the template only when it is active.
func (s *Store) GetActiveTemplate(id string) (*model.Template, error) {
	tpl, err := s.GetTemplate(id)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, ErrTemplateNotFound
	}
	return tpl, nil
}

// ListActiveTemplates returns all active templates sorted by name.
func (s *Store) ListActiveTemplates() ([]*model.Template, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblTemplates, "id")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	var result []*model.Template
	for raw := it.Next(); raw != nil; raw = it.Next() {
		tpl := raw.(*model.Template)
		if tpl.IsActive {
			result = append(result, tpl.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// UpdateTemplate applies a mutation to the stored template. When the mutation
// changes content, the version is bumped.
func (s *Store) UpdateTemplate(id string, contentChanged bool, mutate func(*model.Template)) (*model.Template, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblTemplates, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	if raw == nil {
		return nil, ErrTemplateNotFound
	}

	clone := raw.(*model.Template).Clone()
	mutate(clone)
	if contentChanged {
		clone.Version++
	}
	clone.UpdatedAt = time.Now()
	if err := txn.Insert(tblTemplates, clone); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	txn.Commit()
	return clone.Clone(), nil
}

// DeactivateTemplate soft-disables a template. Templates are never deleted.
func (s *Store) DeactivateTemplate(id string) error {
	_, err := s.UpdateTemplate(id, false, func(tpl *model.Template) {
		tpl.IsActive = false
	})
	return err
}

// --- documents ---

// CreateDocumentWithUsage inserts a document record and its usage ledger
// entry in one transaction. Either both land or neither does. The quota
// ceiling is re-checked inside the transaction so concurrent admissions
// cannot both slip under the limit; UnlimitedQuota skips the check.
func (s *Store) CreateDocumentWithUsage(doc *model.Document, entry *model.UsageEntry, since time.Time, limit int) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if limit != UnlimitedQuota {
		count, err := countUsage(txn, entry.UserID, entry.ActionType, since)
		if err != nil {
			return err
		}
		if count >= limit {
			return ErrQuotaExceeded
		}
	}

	now := time.Now()
	clone := doc.Clone()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	if err := txn.Insert(tblDocuments, clone); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	ec := *entry
	ec.CreatedAt = now
	if err := txn.Insert(tblUsage, &ec); err != nil {
		return fmt.Errorf("insert usage entry: %w", err)
	}

	txn.Commit()
	*doc = *clone
	return nil
}

// GetDocument returns the document with the given ID.
func (s *Store) GetDocument(id string) (*model.Document, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw.(*model.Document).Clone(), nil
}

// DocumentFilter narrows ListDocumentsByUser results.
type DocumentFilter struct {
	Status string
	Search string
	Offset int
	Limit  int
}

// ListDocumentsByUser returns the user's documents, newest first, and the
// total match count before pagination.
func (s *Store) ListDocumentsByUser(userID string, filter DocumentFilter) ([]*model.Document, int, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblDocuments, "user_id", userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	var matches []*model.Document
	for raw := it.Next(); raw != nil; raw = it.Next() {
		doc := raw.(*model.Document)
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(doc.DocumentName), strings.ToLower(filter.Search)) {
			continue
		}
		matches = append(matches, doc.Clone())
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	if filter.Offset > total {
		return nil, total, nil
	}
	matches = matches[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matches) {
		matches = matches[:filter.Limit]
	}
	return matches, total, nil
}

// CompareAndSwapStatus moves a document from the expected status to the next
// one, applying the mutation on success. The transition must be legal and the
// stored status must still match expected, otherwise ErrStatusConflict.
func (s *Store) CompareAndSwapStatus(id, expected, next string, mutate func(*model.Document)) (*model.Document, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	doc, err := s.casLocked(txn, id, expected, next, mutate)
	if err != nil {
		return nil, err
	}

	txn.Commit()
	return doc.Clone(), nil
}

// casLocked performs the conditional status swap inside an open write txn.
func (s *Store) casLocked(txn *memdb.Txn, id, expected, next string, mutate func(*model.Document)) (*model.Document, error) {
	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	doc := raw.(*model.Document)
	if doc.Status != expected {
		return nil, fmt.Errorf("%w: expected %s, is %s", ErrStatusConflict, expected, doc.Status)
	}
	if !model.CanTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s is not a legal transition", ErrStatusConflict, expected, next)
	}

	clone := doc.Clone()
	clone.Status = next
	if mutate != nil {
		mutate(clone)
	}
	clone.UpdatedAt = time.Now()
	if err := txn.Insert(tblDocuments, clone); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return clone, nil
}

// TryStartRender claims the record for a render worker. It succeeds only for
// a draft record with no render in flight, so duplicate triggers lose.
func (s *Store) TryStartRender(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return ErrNotFound
	}

	doc := raw.(*model.Document)
	if doc.Status != model.StatusDraft || doc.RenderInProgress {
		return fmt.Errorf("%w: render already started", ErrStatusConflict)
	}

	clone := doc.Clone()
	clone.RenderInProgress = true
	clone.UpdatedAt = time.Now()
	if err := txn.Insert(tblDocuments, clone); err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	txn.Commit()
	return nil
}

// CompleteRender releases the render claim and moves the record to its
// terminal render status (generated or error).
func (s *Store) CompleteRender(id, next string, mutate func(*model.Document)) (*model.Document, error) {
	return s.CompareAndSwapStatus(id, model.StatusDraft, next, func(doc *model.Document) {
		doc.RenderInProgress = false
		if mutate != nil {
			mutate(doc)
		}
	})
}

// UpdateDocumentFields applies a caller-initiated mutation. Rejected once the
// document is signed or completed; the mutation must not touch status or
// artifact paths.
func (s *Store) UpdateDocumentFields(id string, mutate func(*model.Document)) (*model.Document, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	doc := raw.(*model.Document)
	if doc.IsImmutable() {
		return nil, fmt.Errorf("%w: document is %s", ErrStatusConflict, doc.Status)
	}

	clone := doc.Clone()
	status, pdf, html := clone.Status, clone.PDFPath, clone.HTMLPath
	mutate(clone)
	clone.Status, clone.PDFPath, clone.HTMLPath = status, pdf, html
	clone.UpdatedAt = time.Now()
	if err := txn.Insert(tblDocuments, clone); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	txn.Commit()
	return clone.Clone(), nil
}

// DeleteDocument removes a document and its signers. Rejected once the
// document is signed or completed.
func (s *Store) DeleteDocument(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return ErrNotFound
	}

	doc := raw.(*model.Document)
	if doc.IsImmutable() {
		return fmt.Errorf("%w: document is %s", ErrStatusConflict, doc.Status)
	}

	if err := txn.Delete(tblDocuments, raw); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if _, err := txn.DeleteAll(tblSigners, "document_id", id); err != nil {
		return fmt.Errorf("delete signers: %w", err)
	}

	txn.Commit()
	return nil
}

// RecordAccess bumps the view or download counter and last-accessed stamp.
func (s *Store) RecordAccess(id string, download bool) (*model.Document, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", id)
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}

	clone := raw.(*model.Document).Clone()
	now := time.Now()
	if download {
		clone.DownloadCount++
	} else {
		clone.ViewCount++
	}
	clone.LastAccessed = &now
	if err := txn.Insert(tblDocuments, clone); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	txn.Commit()
	return clone.Clone(), nil
}

// --- usage ledger ---

// AppendUsage adds one immutable ledger entry.
func (s *Store) AppendUsage(entry *model.UsageEntry) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	ec := *entry
	if ec.CreatedAt.IsZero() {
		ec.CreatedAt = time.Now()
	}
	if err := txn.Insert(tblUsage, &ec); err != nil {
		return fmt.Errorf("insert usage entry: %w", err)
	}

	txn.Commit()
	*entry = ec
	return nil
}

// CountUsageSince counts ledger entries of one action type for a user from
// the given instant. This is the quota accounting primitive.
func (s *Store) CountUsageSince(userID, actionType string, since time.Time) (int, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	return countUsage(txn, userID, actionType, since)
}

// countUsage tallies ledger entries inside the caller's transaction.
func countUsage(txn *memdb.Txn, userID, actionType string, since time.Time) (int, error) {
	it, err := txn.Get(tblUsage, "user_action", userID, actionType)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}

	count := 0
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if !raw.(*model.UsageEntry).CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ListUsageByUser returns the user's ledger entries, newest first.
func (s *Store) ListUsageByUser(userID string, limit int) ([]*model.UsageEntry, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblUsage, "user_id", userID)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}

	var entries []*model.UsageEntry
	for raw := it.Next(); raw != nil; raw = it.Next() {
		e := *raw.(*model.UsageEntry)
		entries = append(entries, &e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

// --- signers ---

// CreateSigners inserts signer sub-records and marks the document's
// signature sub-status pending, in one transaction. The generated-with-PDF
// precondition is re-checked here, and a request that is already pending
// is refused. Signers left over from a declined request are replaced.
func (s *Store) CreateSigners(docID string, signers []*model.Signer) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", docID)
	if err != nil {
		return fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return ErrNotFound
	}

	doc := raw.(*model.Document).Clone()
	if doc.Status != model.StatusGenerated || !doc.HasPDF() {
		return fmt.Errorf("%w: document is %s", ErrStatusConflict, doc.Status)
	}
	if doc.SignatureStatus == model.SignaturePending {
		return fmt.Errorf("%w: signature request already pending", ErrStatusConflict)
	}

	if _, err := txn.DeleteAll(tblSigners, "document_id", docID); err != nil {
		return fmt.Errorf("clear signers: %w", err)
	}

	now := time.Now()
	for _, signer := range signers {
		clone := signer.Clone()
		clone.DocumentID = docID
		clone.Status = model.SignaturePending
		clone.CreatedAt = now
		if err := txn.Insert(tblSigners, clone); err != nil {
			return fmt.Errorf("insert signer: %w", err)
		}
	}

	doc.SignatureStatus = model.SignaturePending
	doc.EnvelopeID = ""
	doc.UpdatedAt = now
	if err := txn.Insert(tblDocuments, doc); err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	txn.Commit()
	return nil
}

// ConfirmSignatureSent stores the provider envelope ID and appends the
// signature_sent ledger entry after the provider call has succeeded.
func (s *Store) ConfirmSignatureSent(docID, envelopeID string, entry *model.UsageEntry) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", docID)
	if err != nil {
		return fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return ErrNotFound
	}

	now := time.Now()
	doc := raw.(*model.Document).Clone()
	doc.EnvelopeID = envelopeID
	doc.UpdatedAt = now
	if err := txn.Insert(tblDocuments, doc); err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	ec := *entry
	ec.CreatedAt = now
	if err := txn.Insert(tblUsage, &ec); err != nil {
		return fmt.Errorf("insert usage entry: %w", err)
	}

	txn.Commit()
	return nil
}

// CancelSignatureRequest unwinds CreateSigners after a failed provider
// call: signer records are removed and the sub-status cleared.
func (s *Store) CancelSignatureRequest(docID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", docID)
	if err != nil {
		return fmt.Errorf("find document: %w", err)
	}
	if raw == nil {
		return ErrNotFound
	}

	if _, err := txn.DeleteAll(tblSigners, "document_id", docID); err != nil {
		return fmt.Errorf("clear signers: %w", err)
	}

	doc := raw.(*model.Document).Clone()
	doc.SignatureStatus = ""
	doc.EnvelopeID = ""
	doc.UpdatedAt = time.Now()
	if err := txn.Insert(tblDocuments, doc); err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	txn.Commit()
	return nil
}

// GetSigners returns the signers of a document.
func (s *Store) GetSigners(docID string) ([]*model.Signer, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tblSigners, "document_id", docID)
	if err != nil {
		return nil, fmt.Errorf("list signers: %w", err)
	}

	var signers []*model.Signer
	for raw := it.Next(); raw != nil; raw = it.Next() {
		signers = append(signers, raw.(*model.Signer).Clone())
	}
	sort.Slice(signers, func(i, j int) bool {
		return signers[i].Email < signers[j].Email
	})
	return signers, nil
}

// UpdateSignerStatus records one signer's status report and returns whether
// every signer of the document has now signed.
func (s *Store) UpdateSignerStatus(docID, email, status string, signedAt *time.Time) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(tblSigners, "document_id", docID)
	if err != nil {
		return false, fmt.Errorf("list signers: %w", err)
	}

	var target *model.Signer
	allSigned := true
	var rest []*model.Signer
	for raw := it.Next(); raw != nil; raw = it.Next() {
		signer := raw.(*model.Signer)
		if signer.Email == email {
			target = signer.Clone()
			continue
		}
		rest = append(rest, signer)
	}
	if target == nil {
		return false, ErrNotFound
	}

	target.Status = status
	target.SignedAt = signedAt
	if err := txn.Insert(tblSigners, target); err != nil {
		return false, fmt.Errorf("update signer: %w", err)
	}

	if target.Status != model.SignatureSigned {
		allSigned = false
	}
	for _, signer := range rest {
		if signer.Status != model.SignatureSigned {
			allSigned = false
		}
	}

	txn.Commit()
	return allSigned, nil
}
