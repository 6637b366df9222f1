package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		prob      float64
		threshold float64
		want      bool
	}{
		{"below threshold", 0.49, 0.5, false},
		{"exactly threshold", 0.5, 0.5, true},
		{"above threshold", 0.93, 0.5, true},
		{"zero threshold flags everything", 0, 0, true},
		{"threshold one flags only certainty", 0.999, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Score{Probability: tt.prob, ModelVersion: "v1"}, tt.threshold)
			assert.Equal(t, tt.want, got.IsFraud)
			assert.Equal(t, tt.prob, got.Probability)
			assert.Equal(t, "v1", got.ModelVersion)
		})
	}
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusPendingReview.Valid())
	assert.True(t, StatusConfirmed.Valid())
	assert.True(t, StatusDismissed.Valid())
	assert.False(t, Status("escalated").Valid())

	assert.False(t, StatusPendingReview.IsReviewOutcome())
	assert.True(t, StatusConfirmed.IsReviewOutcome())
	assert.True(t, StatusDismissed.IsReviewOutcome())
}

func TestValidationErrorMatchesInvalidRequest(t *testing.T) {
	err := error(NewValidationError("amount", "must be >= 0"))

	assert.True(t, errors.Is(err, ErrInvalidRequest))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "amount", vErr.Field)
	assert.Contains(t, err.Error(), "amount")
}

func TestFraudRecordClone(t *testing.T) {
	reviewer := "auditor-1"
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := &FraudRecord{TransactionID: "tx-1", ReviewedBy: &reviewer, ReviewedAt: &at}

	c := rec.Clone()
	*c.ReviewedBy = "someone-else"
	*c.ReviewedAt = at.Add(time.Hour)

	assert.Equal(t, "auditor-1", *rec.ReviewedBy)
	assert.Equal(t, at, *rec.ReviewedAt)
}

func TestNewFraudRecord(t *testing.T) {
	sub := &Submission{
		TransactionID: "tx-1",
		Transaction:   TransactionRecord{Amount: 200000, TransacType: TransacTransfer},
	}
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	rec := NewFraudRecord(sub, PredictionResult{Probability: 0.93, IsFraud: true, ModelVersion: "v1"}, created)

	assert.Equal(t, "tx-1", rec.TransactionID)
	assert.Equal(t, StatusPendingReview, rec.Status)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.Nil(t, rec.ReviewedBy)
	assert.Nil(t, rec.ReviewedAt)
	assert.Equal(t, 200000.0, rec.Amount)
}
