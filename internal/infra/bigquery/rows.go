package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/fraud-scoring/internal/domain"
)

// ExportRow is one flagged transaction in the audit export table.
type ExportRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TimeInd     int64   `bigquery:"time_ind"`
	Amount      float64 `bigquery:"amount"`
	TransacType string  `bigquery:"transac_type"`
	SrcBal      float64 `bigquery:"src_bal"`
	SrcNewBal   float64 `bigquery:"src_new_bal"`
	DstBal      float64 `bigquery:"dst_bal"`
	DstNewBal   float64 `bigquery:"dst_new_bal"`
	SrcAcc      string  `bigquery:"src_acc"`
	DstAcc      string  `bigquery:"dst_acc"`

	Probability  float64 `bigquery:"probability"`
	IsFraud      bool    `bigquery:"is_fraud"`
	ModelVersion string  `bigquery:"model_version"`

	Status      string     `bigquery:"status"`
	CreatedAt   time.Time  `bigquery:"created_at"`   // REQUIRED
	CreatedDate civil.Date `bigquery:"created_date"` // partition column

	ReviewedBy bigquery.NullString    `bigquery:"reviewed_by"` // NULLABLE
	ReviewedAt bigquery.NullTimestamp `bigquery:"reviewed_at"` // NULLABLE

	ExportedAt time.Time `bigquery:"exported_at"`
}

// NewExportRow flattens rec for export.
func NewExportRow(rec *domain.FraudRecord, exportedAt time.Time) ExportRow {
	created := rec.CreatedAt.UTC()

	row := ExportRow{
		TransactionID: rec.TransactionID,
		TimeInd:       rec.TimeInd,
		Amount:        rec.Amount,
		TransacType:   string(rec.TransacType),
		SrcBal:        rec.SrcBal,
		SrcNewBal:     rec.SrcNewBal,
		DstBal:        rec.DstBal,
		DstNewBal:     rec.DstNewBal,
		SrcAcc:        rec.SrcAcc,
		DstAcc:        rec.DstAcc,
		Probability:   rec.Probability,
		IsFraud:       rec.IsFraud,
		ModelVersion:  rec.ModelVersion,
		Status:        string(rec.Status),
		CreatedAt:     created,
		CreatedDate:   civil.DateOf(created),
		ExportedAt:    exportedAt.UTC(),
	}
	if rec.ReviewedBy != nil {
		row.ReviewedBy = bigquery.NullString{StringVal: *rec.ReviewedBy, Valid: true}
	}
	if rec.ReviewedAt != nil {
		row.ReviewedAt = bigquery.NullTimestamp{Timestamp: rec.ReviewedAt.UTC(), Valid: true}
	}
	return row
}

// exportColumns lists the table columns in ExportRow field order.
var exportColumns = []string{
	"transaction_id",
	"time_ind",
	"amount",
	"transac_type",
	"src_bal",
	"src_new_bal",
	"dst_bal",
	"dst_new_bal",
	"src_acc",
	"dst_acc",
	"probability",
	"is_fraud",
	"model_version",
	"status",
	"created_at",
	"created_date",
	"reviewed_by",
	"reviewed_at",
	"exported_at",
}

// mutableColumns change after the record is first exported.
var mutableColumns = []string{"status", "reviewed_by", "reviewed_at", "exported_at"}
