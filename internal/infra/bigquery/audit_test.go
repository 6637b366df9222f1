package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds"
	"github.com/dvloznov/fraud-scoring/internal/frauds/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestNewExportRow(t *testing.T) {
	reviewer := "auditor-1"
	reviewedAt := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	rec := &domain.FraudRecord{
		TransactionID: "tx-1",
		TransactionRecord: domain.TransactionRecord{
			TimeInd: 7, Amount: 200000, TransacType: domain.TransacTransfer,
			SrcBal: 200000, SrcAcc: "C1", DstAcc: "C2",
		},
		PredictionResult: domain.PredictionResult{Probability: 0.93, IsFraud: true, ModelVersion: "v1"},
		Status:           domain.StatusConfirmed,
		CreatedAt:        time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("X", -3600)),
		ReviewedBy:       &reviewer,
		ReviewedAt:       &reviewedAt,
	}
	exported := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	row := NewExportRow(rec, exported)

	assert.Equal(t, "tx-1", row.TransactionID)
	assert.Equal(t, "TRANSFER", row.TransacType)
	assert.Equal(t, "confirmed", row.Status)
	// 23:30 at UTC-1 is the next day in UTC.
	assert.Equal(t, civil.Date{Year: 2024, Month: time.May, Day: 2}, row.CreatedDate)
	assert.Equal(t, bigquery.NullString{StringVal: "auditor-1", Valid: true}, row.ReviewedBy)
	assert.True(t, row.ReviewedAt.Valid)
	assert.Equal(t, exported, row.ExportedAt)
}

func TestNewExportRow_Unreviewed(t *testing.T) {
	row := NewExportRow(&domain.FraudRecord{TransactionID: "tx-2", Status: domain.StatusPendingReview}, time.Now())

	assert.False(t, row.ReviewedBy.Valid)
	assert.False(t, row.ReviewedAt.Valid)
}

func TestExportColumnsMatchSchema(t *testing.T) {
	schema, err := bigquery.InferSchema(ExportRow{})
	require.NoError(t, err)

	names := make([]string, len(schema))
	for i, f := range schema {
		names[i] = f.Name
	}
	assert.Equal(t, exportColumns, names)
	for _, col := range mutableColumns {
		assert.Contains(t, exportColumns, col)
	}
}

func TestMergeQuery(t *testing.T) {
	q := mergeQuery("fraud_audit", "fraud_records")

	assert.Contains(t, q, "MERGE `fraud_audit.fraud_records` T")
	assert.Contains(t, q, "USING UNNEST(@rows) S")
	assert.Contains(t, q, "ON T.transaction_id = S.transaction_id")
	assert.Contains(t, q, "UPDATE SET status = S.status, reviewed_by = S.reviewed_by")
	assert.Contains(t, q, "INSERT (transaction_id, time_ind,")
	assert.NotContains(t, q, "transaction_id = S.transaction_id,")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&googleapi.Error{Code: http.StatusNotFound}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(errors.New("boom")))
}

type recordingSink struct {
	batches [][]ExportRow
	failOn  int
}

func (s *recordingSink) Export(_ context.Context, rows []ExportRow) (int, error) {
	if s.failOn > 0 && len(s.batches)+1 == s.failOn {
		return 0, errors.New("bigquery down")
	}
	s.batches = append(s.batches, rows)
	return len(rows), nil
}

func seed(t *testing.T, n int) *inmemory.Store {
	t.Helper()
	store := inmemory.NewStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		_, err := store.Save(context.Background(), &domain.FraudRecord{
			TransactionID: fmt.Sprintf("tx-%02d", i),
			Status:        domain.StatusPendingReview,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	return store
}

func TestCopyRange(t *testing.T) {
	store := seed(t, 7)
	sink := &recordingSink{}

	n, err := CopyRange(context.Background(), store, sink, frauds.Filter{}, 3, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 7, n)
	require.Len(t, sink.batches, 3)
	assert.Len(t, sink.batches[2], 1)

	seen := map[string]bool{}
	for _, b := range sink.batches {
		for _, r := range b {
			assert.False(t, seen[r.TransactionID], "duplicate %s", r.TransactionID)
			seen[r.TransactionID] = true
		}
	}
	assert.Len(t, seen, 7)
}

func TestCopyRange_Window(t *testing.T) {
	store := seed(t, 10)
	sink := &recordingSink{}
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	n, err := CopyRange(context.Background(), store, sink, frauds.Filter{
		From:  base.Add(2 * time.Minute),
		To:    base.Add(5 * time.Minute),
		Limit: 1,
	}, 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCopyRange_SinkError(t *testing.T) {
	store := seed(t, 5)
	sink := &recordingSink{failOn: 2}

	n, err := CopyRange(context.Background(), store, sink, frauds.Filter{}, 2, time.Now())
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, strings.Contains(err.Error(), "bigquery down"))
}

func TestCopyRange_SourceError(t *testing.T) {
	store := seed(t, 1)
	store.SetFailure(domain.ErrTransientStorage)

	_, err := CopyRange(context.Background(), store, &recordingSink{}, frauds.Filter{}, 10, time.Now())
	assert.ErrorIs(t, err, domain.ErrTransientStorage)
}

func TestSinceLastFrom(t *testing.T) {
	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, SinceLastFrom(time.Time{}, time.Hour).IsZero())
	assert.Equal(t, last.Add(-MinSinceLastOverlap), SinceLastFrom(last, 0))
	assert.Equal(t, last.Add(-MinSinceLastOverlap), SinceLastFrom(last, 13*time.Second))
	assert.Equal(t, last.Add(-time.Hour), SinceLastFrom(last, time.Hour))
}

func TestCopyRange_SinceLastPicksUpLateCommit(t *testing.T) {
	ctx := context.Background()
	store := seed(t, 5)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first := &recordingSink{}
	_, err := CopyRange(ctx, store, first, frauds.Filter{}, 0, time.Now())
	require.NoError(t, err)

	var last time.Time
	for _, b := range first.batches {
		for _, r := range b {
			if r.CreatedAt.After(last) {
				last = r.CreatedAt
			}
		}
	}
	require.Equal(t, base.Add(4*time.Minute), last)

	// Stamped before tx-04 but committed after the first export.
	_, err = store.Save(ctx, &domain.FraudRecord{
		TransactionID: "tx-late",
		Status:        domain.StatusPendingReview,
		CreatedAt:     base.Add(3*time.Minute + 30*time.Second),
	})
	require.NoError(t, err)

	naive := &recordingSink{}
	_, err = CopyRange(ctx, store, naive, frauds.Filter{From: last}, 0, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, exportedIDs(naive), "tx-late")

	second := &recordingSink{}
	_, err = CopyRange(ctx, store, second, frauds.Filter{From: SinceLastFrom(last, 13*time.Second)}, 0, time.Now())
	require.NoError(t, err)
	assert.Contains(t, exportedIDs(second), "tx-late")
}

func exportedIDs(s *recordingSink) []string {
	var ids []string
	for _, b := range s.batches {
		for _, r := range b {
			ids = append(ids, r.TransactionID)
		}
	}
	return ids
}
