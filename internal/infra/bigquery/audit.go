// Package bigquery copies flagged transactions into BigQuery for auditors.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	// DefaultTable is the export table inside the configured dataset.
	DefaultTable = "fraud_records"

	// mergeBatchSize bounds the rows bound to a single MERGE statement.
	mergeBatchSize = 500
)

// AuditExporter merges fraud records into a BigQuery table keyed by
// transaction_id.
type AuditExporter struct {
	client  *bigquery.Client
	dataset string
	table   string
	log     zerolog.Logger
}

// NewAuditExporter creates an exporter with its own BigQuery client.
func NewAuditExporter(ctx context.Context, projectID, datasetID string, log zerolog.Logger, opts ...option.ClientOption) (*AuditExporter, error) {
	if projectID == "" {
		return nil, errors.New("NewAuditExporter: project id is required")
	}
	if datasetID == "" {
		return nil, errors.New("NewAuditExporter: dataset id is required")
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewAuditExporter: creating client: %w", err)
	}

	return &AuditExporter{
		client:  client,
		dataset: datasetID,
		table:   DefaultTable,
		log:     log,
	}, nil
}

// Close closes the BigQuery client connection.
func (e *AuditExporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// EnsureTable creates the export table when it does not exist yet. The table
// is partitioned by created_date and clustered by status.
func (e *AuditExporter) EnsureTable(ctx context.Context) error {
	table := e.client.Dataset(e.dataset).Table(e.table)

	_, err := table.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("EnsureTable: reading metadata: %w", err)
	}

	schema, err := bigquery.InferSchema(ExportRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}

	meta := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: "created_date"},
		Clustering:       &bigquery.Clustering{Fields: []string{"status"}},
		Description:      "Flagged transactions exported for audit",
	}
	if err := table.Create(ctx, meta); err != nil {
		return fmt.Errorf("EnsureTable: creating table: %w", err)
	}

	e.log.Info().Str("dataset", e.dataset).Str("table", e.table).Msg("Created audit export table")
	return nil
}

// Export merges rows into the export table and returns how many were sent.
// Rows already present only have their review columns refreshed, so
// re-exporting a range picks up review decisions made since.
func (e *AuditExporter) Export(ctx context.Context, rows []ExportRow) (int, error) {
	sent := 0
	for start := 0; start < len(rows); start += mergeBatchSize {
		end := min(start+mergeBatchSize, len(rows))
		batch := rows[start:end]

		q := e.client.Query(mergeQuery(e.dataset, e.table))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "rows", Value: batch},
		}

		if err := runQuery(ctx, q); err != nil {
			return sent, fmt.Errorf("Export: merging rows %d-%d: %w", start, end, err)
		}
		sent += len(batch)

		e.log.Debug().Int("rows", len(batch)).Msg("Merged audit export batch")
	}
	return sent, nil
}

// LastExportedAt returns the newest created_at already present in the
// export table, or the zero time when the table is empty.
func (e *AuditExporter) LastExportedAt(ctx context.Context) (time.Time, error) {
	q := e.client.Query(fmt.Sprintf("SELECT MAX(created_at) AS last FROM `%s.%s`", e.dataset, e.table))

	it, err := q.Read(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("LastExportedAt: reading query: %w", err)
	}

	var row struct {
		Last bigquery.NullTimestamp `bigquery:"last"`
	}
	err = it.Next(&row)
	if err == iterator.Done || (err == nil && !row.Last.Valid) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("LastExportedAt: iterating: %w", err)
	}

	return row.Last.Timestamp, nil
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// mergeQuery upserts @rows on transaction_id.
func mergeQuery(dataset, table string) string {
	updates := make([]string, len(mutableColumns))
	for i, col := range mutableColumns {
		updates[i] = fmt.Sprintf("%s = S.%s", col, col)
	}
	source := make([]string, len(exportColumns))
	for i, col := range exportColumns {
		source[i] = "S." + col
	}

	return fmt.Sprintf(`
		MERGE `+"`%s.%s`"+` T
		USING UNNEST(@rows) S
		ON T.transaction_id = S.transaction_id
		WHEN MATCHED THEN
			UPDATE SET %s
		WHEN NOT MATCHED THEN
			INSERT (%s)
			VALUES (%s)
	`, dataset, table,
		strings.Join(updates, ", "),
		strings.Join(exportColumns, ", "),
		strings.Join(source, ", "))
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
