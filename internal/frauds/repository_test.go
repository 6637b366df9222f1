package frauds

import (
	"testing"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestReview_Validate(t *testing.T) {
	tests := []struct {
		name    string
		review  Review
		wantErr bool
	}{
		{"confirmed", Review{TransactionID: "tx-1", Status: domain.StatusConfirmed, ReviewedBy: "a"}, false},
		{"dismissed", Review{TransactionID: "tx-1", Status: domain.StatusDismissed, ReviewedBy: "a"}, false},
		{"pending is not an outcome", Review{TransactionID: "tx-1", Status: domain.StatusPendingReview, ReviewedBy: "a"}, true},
		{"unknown status", Review{TransactionID: "tx-1", Status: "escalated", ReviewedBy: "a"}, true},
		{"missing reviewer", Review{TransactionID: "tx-1", Status: domain.StatusConfirmed}, true},
		{"missing id", Review{Status: domain.StatusConfirmed, ReviewedBy: "a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.review.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &domain.FraudRecord{Status: domain.StatusPendingReview, CreatedAt: at}

	assert.True(t, Filter{}.Matches(rec))
	assert.True(t, Filter{From: at}.Matches(rec))
	assert.False(t, Filter{To: at}.Matches(rec))
	assert.True(t, Filter{To: at.Add(time.Second)}.Matches(rec))
	assert.False(t, Filter{Status: domain.StatusConfirmed}.Matches(rec))
}
