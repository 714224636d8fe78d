// Package documents handles regulatory uploads. Uploading only marks a
// document as received; unlocking purchases needs a separate admin review.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"medcanna/m/domain"
	"medcanna/m/internal/storage"
)

const documentColumns = `id, user_id, kind, url, original_name, status, review_note, reviewed_by, created_at, reviewed_at`

var allowedExtensions = map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true}

type Service struct {
	db    *sqlx.DB
	store storage.Store
	now   func() time.Time
}

func New(db *sqlx.DB, store storage.Store) *Service {
	return &Service{db: db, store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Submit stores the file and records it as pending for the user.
func (s *Service) Submit(ctx context.Context, userID int64, kind domain.DocumentKind, filename string, r io.Reader) (*domain.Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind must be prescription or anvisa", domain.ErrInvalidInput)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, ext)
	}

	doc := &domain.Document{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         kind,
		OriginalName: filepath.Base(filename),
		Status:       domain.DocumentPending,
		CreatedAt:    s.now(),
	}
	key := doc.ID + ext
	url, err := s.store.Save(ctx, key, r)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	doc.URL = url

	if err := s.insert(ctx, doc); err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			slog.Warn("unable to remove orphaned document file", "key", key, "error", derr)
		}
		return nil, err
	}
	slog.Info("document received", "document_id", doc.ID, "user_id", userID, "kind", kind)
	return doc, nil
}

// insert records doc and refreshes its owner's flags in one transaction.
func (s *Service) insert(ctx context.Context, doc *domain.Document) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO documents (id, user_id, kind, url, original_name, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.UserID, doc.Kind, doc.URL, doc.OriginalName, doc.Status, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if err := refreshFlags(ctx, tx, doc.UserID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

// Approve marks a pending document approved. An approved ANVISA document is
// what sets the account's admin_approved flag.
func (s *Service) Approve(ctx context.Context, id string, reviewerID int64, note string) (*domain.Document, error) {
	return s.review(ctx, id, reviewerID, note, domain.DocumentApproved)
}

// Reject marks a pending document rejected and withdraws the flag it set,
// unless another live document of the same kind still backs it.
func (s *Service) Reject(ctx context.Context, id string, reviewerID int64, note string) (*domain.Document, error) {
	return s.review(ctx, id, reviewerID, note, domain.DocumentRejected)
}

func (s *Service) review(ctx context.Context, id string, reviewerID int64, note string, status domain.DocumentStatus) (*domain.Document, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin review transaction: %w", err)
	}
	defer tx.Rollback()

	var doc domain.Document
	err = tx.GetContext(ctx, &doc, tx.Rebind(`SELECT `+documentColumns+` FROM documents WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	if doc.Status != domain.DocumentPending {
		return nil, fmt.Errorf("%w: document %s is already %s", domain.ErrConflict, id, doc.Status)
	}

	now := s.now()
	doc.Status = status
	doc.ReviewedBy = &reviewerID
	doc.ReviewedAt = &now
	if note = strings.TrimSpace(note); note != "" {
		doc.ReviewNote = &note
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE documents SET status = ?, review_note = ?, reviewed_by = ?, reviewed_at = ? WHERE id = ?`),
		doc.Status, doc.ReviewNote, doc.ReviewedBy, doc.ReviewedAt, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}
	if err := refreshFlags(ctx, tx, doc.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit review: %w", err)
	}
	slog.Info("document reviewed", "document_id", doc.ID, "user_id", doc.UserID, "status", status, "reviewer_id", reviewerID)
	return &doc, nil
}

// refreshFlags derives the account's document flags from its documents.
func refreshFlags(ctx context.Context, tx *sqlx.Tx, userID int64) error {
	var flags struct {
		Prescription int64 `db:"prescription"`
		Anvisa       int64 `db:"anvisa"`
		Approved     int64 `db:"approved"`
	}
	err := tx.GetContext(ctx, &flags, tx.Rebind(`SELECT
            COALESCE(SUM(CASE WHEN kind = 'prescription' AND status <> 'rejected' THEN 1 ELSE 0 END), 0) AS prescription,
            COALESCE(SUM(CASE WHEN kind = 'anvisa' AND status <> 'rejected' THEN 1 ELSE 0 END), 0) AS anvisa,
            COALESCE(SUM(CASE WHEN kind = 'anvisa' AND status = 'approved' THEN 1 ELSE 0 END), 0) AS approved
            FROM documents WHERE user_id = ?`), userID)
	if err != nil {
		return fmt.Errorf("count documents for user %d: %w", userID, err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET has_uploaded_prescription = ?, has_anvisa_document = ?, admin_approved = ? WHERE id = ?`),
		flags.Prescription > 0, flags.Anvisa > 0, flags.Approved > 0, userID)
	if err != nil {
		return fmt.Errorf("update document flags for user %d: %w", userID, err)
	}
	return nil
}

// ListForUser returns a user's documents, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]domain.Document, error) {
	docs := []domain.Document{}
	err := s.db.SelectContext(ctx, &docs, s.db.Rebind(`SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY created_at DESC, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// ListByStatus is the admin review queue, oldest first.
func (s *Service) ListByStatus(ctx context.Context, status domain.DocumentStatus) ([]domain.Document, error) {
	docs := []domain.Document{}
	err := s.db.SelectContext(ctx, &docs, s.db.Rebind(`SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY created_at ASC, id`), status)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
