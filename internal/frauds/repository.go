// Package frauds defines the storage contract for flagged transactions.
package frauds

import (
	"context"
	"strings"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
)

// Repository persists fraud records. Implementations classify retryable
// failures as domain.ErrTransientStorage.
type Repository interface {
	// Save stores rec. Saving a transaction_id that already exists is a
	// successful no-op; inserted reports whether a new row was written.
	Save(ctx context.Context, rec *domain.FraudRecord) (inserted bool, err error)

	// Get returns the record for transactionID or domain.ErrNotFound.
	Get(ctx context.Context, transactionID string) (*domain.FraudRecord, error)

	// UpdateStatus applies an auditor decision and returns the updated record.
	UpdateStatus(ctx context.Context, review Review) (*domain.FraudRecord, error)

	// List returns records matching filter, newest first.
	List(ctx context.Context, filter Filter) ([]*domain.FraudRecord, error)
}

// Review is an auditor decision on a flagged transaction.
type Review struct {
	TransactionID string
	Status        domain.Status
	ReviewedBy    string
	ReviewedAt    time.Time
}

// Validate checks that the review can be applied.
func (r Review) Validate() error {
	if strings.TrimSpace(r.TransactionID) == "" {
		return domain.NewValidationError("transaction_id", "must not be empty")
	}
	if !r.Status.IsReviewOutcome() {
		return domain.NewValidationError("status", "must be confirmed or dismissed")
	}
	if strings.TrimSpace(r.ReviewedBy) == "" {
		return domain.NewValidationError("reviewed_by", "must not be empty")
	}
	return nil
}

// Filter defines filtering criteria for listing fraud records.
type Filter struct {
	// Status filters records by review status.
	Status domain.Status

	// From includes records created at or after this instant.
	From time.Time

	// To includes records created strictly before this instant.
	To time.Time

	// Limit limits the number of results. Zero means no limit.
	Limit int

	// Offset for pagination.
	Offset int
}

// Matches reports whether rec passes the status and time filters.
func (f Filter) Matches(rec *domain.FraudRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !rec.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
