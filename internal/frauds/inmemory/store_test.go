package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRecord(id string, created time.Time) *domain.FraudRecord {
	return &domain.FraudRecord{
		TransactionID:     id,
		TransactionRecord: domain.TransactionRecord{Amount: 200000, TransacType: domain.TransacTransfer},
		PredictionResult:  domain.PredictionResult{Probability: 0.93, IsFraud: true, ModelVersion: "v1"},
		Status:            domain.StatusPendingReview,
		CreatedAt:         created,
	}
}

func TestStore_SaveIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	inserted, err := s.Save(ctx, newRecord("tx-1", base))
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := newRecord("tx-1", base.Add(time.Hour))
	dup.Probability = 0.99
	inserted, err = s.Save(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.Equal(t, 1, s.Len())
	got, err := s.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, 0.93, got.Probability)
	assert.Equal(t, base, got.CreatedAt)
}

func TestStore_SaveConcurrentDuplicates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	insertedCount := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.Save(ctx, newRecord("tx-1", base))
			assert.NoError(t, err)
			if inserted {
				mu.Lock()
				insertedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, insertedCount)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SaveRequiresID(t *testing.T) {
	_, err := NewStore().Save(context.Background(), newRecord("", base))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.Save(ctx, newRecord("tx-1", base))
	require.NoError(t, err)

	got, err := s.Get(ctx, "tx-1")
	require.NoError(t, err)
	got.Status = domain.StatusDismissed

	again, err := s.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, again.Status)
}

func TestStore_GetNotFound(t *testing.T) {
	_, err := NewStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpdateStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.Save(ctx, newRecord("tx-1", base))
	require.NoError(t, err)

	reviewedAt := base.Add(2 * time.Hour)
	rec, err := s.UpdateStatus(ctx, frauds.Review{
		TransactionID: "tx-1",
		Status:        domain.StatusConfirmed,
		ReviewedBy:    "auditor-1",
		ReviewedAt:    reviewedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, rec.Status)
	require.NotNil(t, rec.ReviewedBy)
	assert.Equal(t, "auditor-1", *rec.ReviewedBy)
	require.NotNil(t, rec.ReviewedAt)
	assert.Equal(t, reviewedAt, *rec.ReviewedAt)

	_, err = s.UpdateStatus(ctx, frauds.Review{TransactionID: "missing", Status: domain.StatusDismissed, ReviewedBy: "a"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.UpdateStatus(ctx, frauds.Review{TransactionID: "tx-1", Status: domain.StatusPendingReview, ReviewedBy: "a"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestStore_List(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Save(ctx, newRecord(fmt.Sprintf("tx-%d", i), base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := s.UpdateStatus(ctx, frauds.Review{TransactionID: "tx-3", Status: domain.StatusConfirmed, ReviewedBy: "a", ReviewedAt: base})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter frauds.Filter
		want   []string
	}{
		{"all newest first", frauds.Filter{}, []string{"tx-4", "tx-3", "tx-2", "tx-1", "tx-0"}},
		{"limit", frauds.Filter{Limit: 2}, []string{"tx-4", "tx-3"}},
		{"offset", frauds.Filter{Offset: 3}, []string{"tx-1", "tx-0"}},
		{"offset past end", frauds.Filter{Offset: 10}, []string{}},
		{"status", frauds.Filter{Status: domain.StatusConfirmed}, []string{"tx-3"}},
		{"range", frauds.Filter{From: base.Add(time.Minute), To: base.Add(3 * time.Minute)}, []string{"tx-2", "tx-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.List(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(recs))
			for _, r := range recs {
				ids = append(ids, r.TransactionID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_SetFailure(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	outage := fmt.Errorf("%w: connection refused", domain.ErrTransientStorage)

	s.SetFailure(outage)
	_, err := s.Save(ctx, newRecord("tx-1", base))
	assert.True(t, errors.Is(err, domain.ErrTransientStorage))
	assert.Equal(t, 0, s.Len())

	s.SetFailure(nil)
	inserted, err := s.Save(ctx, newRecord("tx-1", base))
	require.NoError(t, err)
	assert.True(t, inserted)
}
