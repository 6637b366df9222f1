package main

import (
	"errors"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/infra/bigquery"
	"github.com/dvloznov/fraud-scoring/internal/infra/postgres"
	"github.com/spf13/cobra"
)

func exportCmd(a *app) *cobra.Command {
	var (
		from, to  string
		sinceLast bool
		overlap   time.Duration
		pageSize  int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy flagged transactions into the BigQuery audit table",
		Long: `Merges fraud records created in [--from, --to) into
<gcp.bigquery_dataset>.fraud_records, keyed by transaction_id. Re-exporting a
range refreshes review columns and never duplicates rows.

--since-last resumes from the newest created_at already in BigQuery, minus a
look-back of at least max(--overlap, persistence retry budget plus request
timeout, 10m) so records that committed late are not skipped. It only picks
up new records: review decisions on rows exported earlier are refreshed by
re-exporting their created_at range with --from/--to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if a.cfg.GCP.Project == "" {
				return errors.New("gcp.project is required for export")
			}

			filter, err := buildFilter("", from, to, 0, 0)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if filter.To.IsZero() {
				filter.To = now
			}

			exporter, err := bigquery.NewAuditExporter(ctx, a.cfg.GCP.Project, a.cfg.GCP.BigQueryDataset, a.log, a.cfg.GCP.ClientOptions()...)
			if err != nil {
				return err
			}
			defer exporter.Close()

			if err := exporter.EnsureTable(ctx); err != nil {
				return err
			}

			if sinceLast {
				last, err := exporter.LastExportedAt(ctx)
				if err != nil {
					return err
				}
				lookback := max(overlap, a.cfg.MaxWriteLag())
				filter.From = bigquery.SinceLastFrom(last, lookback)
				a.log.Info().
					Time("last_exported", last).
					Dur("lookback", lookback).
					Msg("Resuming export from watermark")
			}

			pool, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := bigquery.CopyRange(ctx, postgres.NewFraudRecordRepository(pool), exporter, filter, pageSize, now)
			if err != nil {
				a.log.Error().Err(err).Int("exported", n).Msg("Export failed")
				return err
			}

			a.log.Info().
				Int("exported", n).
				Time("from", filter.From).
				Time("to", filter.To).
				Str("dataset", a.cfg.GCP.BigQueryDataset).
				Msg("Export completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Created at or after (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "Created before (RFC3339, default: now)")
	cmd.Flags().BoolVar(&sinceLast, "since-last", false, "Start from the newest created_at already exported")
	cmd.Flags().DurationVar(&overlap, "overlap", bigquery.MinSinceLastOverlap, "Look-back applied to the --since-last watermark")
	cmd.Flags().IntVar(&pageSize, "page-size", bigquery.DefaultPageSize, "Records read per page")
	cmd.MarkFlagsMutuallyExclusive("from", "since-last")

	return cmd
}
