package domain

import "time"

// Status is the review state of a persisted fraud record.
type Status string

const (
	// StatusPendingReview is the state every flagged record is created in.
	StatusPendingReview Status = "pending_review"
	// StatusConfirmed marks a record an auditor confirmed as fraud.
	StatusConfirmed Status = "confirmed"
	// StatusDismissed marks a record an auditor dismissed as a false positive.
	StatusDismissed Status = "dismissed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingReview, StatusConfirmed, StatusDismissed:
		return true
	}
	return false
}

// IsReviewOutcome reports whether s can be set by an auditor.
func (s Status) IsReviewOutcome() bool {
	return s == StatusConfirmed || s == StatusDismissed
}

// FraudRecord is the audit row written for every flagged transaction.
// The embedded structs flatten into the JSON representation.
type FraudRecord struct {
	TransactionID string `json:"transaction_id"`
	TransactionRecord
	PredictionResult
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedBy *string    `json:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at"`
}

// NewFraudRecord builds the pending_review record for a flagged submission.
func NewFraudRecord(sub *Submission, result PredictionResult, createdAt time.Time) *FraudRecord {
	return &FraudRecord{
		TransactionID:     sub.TransactionID,
		TransactionRecord: sub.Transaction,
		PredictionResult:  result,
		Status:            StatusPendingReview,
		CreatedAt:         createdAt.UTC(),
	}
}

// Clone returns a deep copy of r.
func (r *FraudRecord) Clone() *FraudRecord {
	c := *r
	if r.ReviewedBy != nil {
		v := *r.ReviewedBy
		c.ReviewedBy = &v
	}
	if r.ReviewedAt != nil {
		v := *r.ReviewedAt
		c.ReviewedAt = &v
	}
	return &c
}
