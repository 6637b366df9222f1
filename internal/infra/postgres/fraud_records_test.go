package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildListQuery(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	query, args := buildListQuery(frauds.Filter{})
	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "ORDER BY created_at DESC")
	assert.Empty(t, args)

	query, args = buildListQuery(frauds.Filter{
		Status: domain.StatusPendingReview,
		From:   from,
		To:     to,
		Limit:  10,
		Offset: 20,
	})
	assert.Contains(t, query, "WHERE status = $1 AND created_at >= $2 AND created_at < $3")
	assert.Contains(t, query, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{"pending_review", from, to, 10, 20}, args)
}

// testPool connects to FRAUD_TEST_DATABASE_URL and applies migrations.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("FRAUD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FRAUD_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, url, PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrations, err := ReadMigrations(filepath.Join("..", "..", "..", "migrations", "postgres"))
	require.NoError(t, err)
	_, err = NewMigrator(pool, "postgres-test", zerolog.Nop()).Apply(ctx, migrations)
	require.NoError(t, err)

	return pool
}

func flagged(id string, created time.Time) *domain.FraudRecord {
	return &domain.FraudRecord{
		TransactionID: id,
		TransactionRecord: domain.TransactionRecord{
			TimeInd: 10, Amount: 200000, TransacType: domain.TransacTransfer,
			SrcBal: 200000, SrcNewBal: 0, DstBal: 0, DstNewBal: 200000,
			SrcAcc: "A1", DstAcc: "A2",
		},
		PredictionResult: domain.PredictionResult{Probability: 0.93, IsFraud: true, ModelVersion: "v1"},
		Status:           domain.StatusPendingReview,
		CreatedAt:        created,
	}
}

func TestFraudRecordRepository_Integration(t *testing.T) {
	pool := testPool(t)
	repo := NewFraudRecordRepository(pool)
	ctx := context.Background()

	id := "it-" + uuid.NewString()
	created := time.Now().UTC().Truncate(time.Microsecond)

	inserted, err := repo.Save(ctx, flagged(id, created))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Save(ctx, flagged(id, created.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM fraud_records WHERE transaction_id = $1`, id).Scan(&count))
	assert.Equal(t, 1, count)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, got.Status)
	assert.Equal(t, domain.TransacTransfer, got.TransacType)
	assert.Equal(t, created, got.CreatedAt)
	assert.Nil(t, got.ReviewedBy)

	reviewed, err := repo.UpdateStatus(ctx, frauds.Review{
		TransactionID: id, Status: domain.StatusConfirmed, ReviewedBy: "auditor-1", ReviewedAt: created.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "auditor-1", *reviewed.ReviewedBy)

	list, err := repo.List(ctx, frauds.Filter{Status: domain.StatusConfirmed, From: created, To: created.Add(time.Second)})
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.TransactionID)
	}
	assert.Contains(t, ids, id)

	_, err = repo.Get(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.UpdateStatus(ctx, frauds.Review{TransactionID: "missing-" + uuid.NewString(), Status: domain.StatusDismissed, ReviewedBy: "a"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFraudRecordRepository_ConcurrentSave(t *testing.T) {
	pool := testPool(t)
	repo := NewFraudRecordRepository(pool)
	ctx := context.Background()
	id := "it-" + uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Save(ctx, flagged(id, time.Now()))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM fraud_records WHERE transaction_id = $1`, id).Scan(&count))
	assert.Equal(t, 1, count)
}
