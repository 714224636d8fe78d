package domain

import "time"

type DocumentKind string

const (
	DocumentPrescription DocumentKind = "prescription"
	DocumentAnvisa       DocumentKind = "anvisa"
)

func (k DocumentKind) Valid() bool {
	return k == DocumentPrescription || k == DocumentAnvisa
}

type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentPending, DocumentApproved, DocumentRejected:
		return true
	}
	return false
}

type Document struct {
	ID           string         `db:"id" json:"id"`
	UserID       int64          `db:"user_id" json:"user_id"`
	Kind         DocumentKind   `db:"kind" json:"kind"`
	URL          string         `db:"url" json:"url"`
	OriginalName string         `db:"original_name" json:"original_name"`
	Status       DocumentStatus `db:"status" json:"status"`
	ReviewNote   *string        `db:"review_note" json:"review_note,omitempty"`
	ReviewedBy   *int64         `db:"reviewed_by" json:"reviewed_by,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	ReviewedAt   *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
}
