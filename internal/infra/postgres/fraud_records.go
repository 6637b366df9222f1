package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds"
	"github.com/jackc/pgx/v5"
)

const fraudRecordColumns = `transaction_id, time_ind, amount, transac_type,
	src_bal, src_new_bal, dst_bal, dst_new_bal, src_acc, dst_acc,
	probability, is_fraud, model_version, status, created_at, reviewed_by, reviewed_at`

// FraudRecordRepository stores flagged transactions in the fraud_records table.
type FraudRecordRepository struct {
	db DBTX
}

// NewFraudRecordRepository creates a repository on db.
func NewFraudRecordRepository(db DBTX) *FraudRecordRepository {
	return &FraudRecordRepository{db: db}
}

// Save inserts rec unless its transaction_id already exists.
func (r *FraudRecordRepository) Save(ctx context.Context, rec *domain.FraudRecord) (bool, error) {
	const query = `
	INSERT INTO fraud_records (` + fraudRecordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (transaction_id) DO NOTHING`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tag, err := r.db.Exec(ctx, query,
		rec.TransactionID, rec.TimeInd, rec.Amount, string(rec.TransacType),
		rec.SrcBal, rec.SrcNewBal, rec.DstBal, rec.DstNewBal, rec.SrcAcc, rec.DstAcc,
		rec.Probability, rec.IsFraud, rec.ModelVersion, string(rec.Status), createdAt.UTC(),
		rec.ReviewedBy, rec.ReviewedAt,
	)
	if err != nil {
		return false, classify(fmt.Errorf("insert fraud record %s: %w", rec.TransactionID, err))
	}

	return tag.RowsAffected() == 1, nil
}

// Get returns the record for transactionID.
func (r *FraudRecordRepository) Get(ctx context.Context, transactionID string) (*domain.FraudRecord, error) {
	query := `SELECT ` + fraudRecordColumns + ` FROM fraud_records WHERE transaction_id = $1`

	rec, err := scanFraudRecord(r.db.QueryRow(ctx, query, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get fraud record %s: %w", transactionID, err))
	}
	return rec, nil
}

// UpdateStatus records an auditor decision.
func (r *FraudRecordRepository) UpdateStatus(ctx context.Context, review frauds.Review) (*domain.FraudRecord, error) {
	if err := review.Validate(); err != nil {
		return nil, err
	}

	query := `
	UPDATE fraud_records
	SET status = $2, reviewed_by = $3, reviewed_at = $4
	WHERE transaction_id = $1
	RETURNING ` + fraudRecordColumns

	reviewedAt := review.ReviewedAt
	if reviewedAt.IsZero() {
		reviewedAt = time.Now()
	}

	rec, err := scanFraudRecord(r.db.QueryRow(ctx, query,
		review.TransactionID, string(review.Status), review.ReviewedBy, reviewedAt.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("update fraud record %s: %w", review.TransactionID, err))
	}
	return rec, nil
}

// List returns records matching filter, newest first.
func (r *FraudRecordRepository) List(ctx context.Context, filter frauds.Filter) ([]*domain.FraudRecord, error) {
	query, args := buildListQuery(filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list fraud records: %w", err))
	}
	defer rows.Close()

	result := []*domain.FraudRecord{}
	for rows.Next() {
		rec, err := scanFraudRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fraud record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate fraud records: %w", err))
	}

	return result, nil
}

func buildListQuery(filter frauds.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= "+arg(filter.From.UTC()))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at < "+arg(filter.To.UTC()))
	}

	var b strings.Builder
	b.WriteString("SELECT " + fraudRecordColumns + " FROM fraud_records")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, transaction_id ASC")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT " + arg(filter.Limit))
	}
	if filter.Offset > 0 {
		b.WriteString(" OFFSET " + arg(filter.Offset))
	}

	return b.String(), args
}

func scanFraudRecord(row pgx.Row) (*domain.FraudRecord, error) {
	var (
		rec        domain.FraudRecord
		kind       string
		status     string
		reviewedBy *string
		reviewedAt *time.Time
	)

	err := row.Scan(
		&rec.TransactionID, &rec.TimeInd, &rec.Amount, &kind,
		&rec.SrcBal, &rec.SrcNewBal, &rec.DstBal, &rec.DstNewBal, &rec.SrcAcc, &rec.DstAcc,
		&rec.Probability, &rec.IsFraud, &rec.ModelVersion, &status, &rec.CreatedAt,
		&reviewedBy, &reviewedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.TransacType = domain.TransacType(kind)
	rec.Status = domain.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ReviewedBy = reviewedBy
	if reviewedAt != nil {
		at := reviewedAt.UTC()
		rec.ReviewedAt = &at
	}

	return &rec, nil
}

// Ensure FraudRecordRepository implements frauds.Repository.
var _ frauds.Repository = (*FraudRecordRepository)(nil)
