package bigquery

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/frauds"
)

// DefaultPageSize is the number of records read from the repository per page.
const DefaultPageSize = 1000

// MinSinceLastOverlap is the smallest look-back applied to an incremental
// export watermark. It also absorbs clock skew between API replicas.
const MinSinceLastOverlap = 10 * time.Minute

// SinceLastFrom returns the lower bound for an incremental export that last
// saw created_at up to last. created_at is stamped before the insert commits,
// so a record can land after a newer one was already exported; re-reading
// the last overlap catches it. Re-read rows merge idempotently.
// A zero last means nothing was exported yet and yields the zero time.
func SinceLastFrom(last time.Time, overlap time.Duration) time.Time {
	if last.IsZero() {
		return time.Time{}
	}
	return last.Add(-max(overlap, MinSinceLastOverlap))
}

// Sink receives export rows. *AuditExporter satisfies it.
type Sink interface {
	Export(ctx context.Context, rows []ExportRow) (int, error)
}

// CopyRange pages through every record in src matching filter and exports
// it to sink. filter.Limit and filter.Offset are ignored. Callers should set
// filter.To so records arriving mid-copy do not shift the pages.
func CopyRange(ctx context.Context, src frauds.Repository, sink Sink, filter frauds.Filter, pageSize int, now time.Time) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	filter.Limit = pageSize
	filter.Offset = 0

	total := 0
	for {
		records, err := src.List(ctx, filter)
		if err != nil {
			return total, fmt.Errorf("CopyRange: listing records at offset %d: %w", filter.Offset, err)
		}
		if len(records) == 0 {
			return total, nil
		}

		rows := make([]ExportRow, len(records))
		for i, rec := range records {
			rows[i] = NewExportRow(rec, now)
		}

		n, err := sink.Export(ctx, rows)
		total += n
		if err != nil {
			return total, err
		}

		if len(records) < pageSize {
			return total, nil
		}
		filter.Offset += len(records)
	}
}
