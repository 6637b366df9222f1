package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds"
	"github.com/dvloznov/fraud-scoring/internal/infra/postgres"
	"github.com/spf13/cobra"
)

func recordsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and review flagged transactions",
	}

	cmd.AddCommand(recordsGetCmd(a))
	cmd.AddCommand(recordsListCmd(a))
	cmd.AddCommand(recordsReviewCmd(a))

	return cmd
}

func recordsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get [transaction_id]",
		Short: "Print one fraud record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rec, err := postgres.NewFraudRecordRepository(pool).Get(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func recordsListCmd(a *app) *cobra.Command {
	var (
		status, from, to string
		limit, offset    int
		asJSON           bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fraud records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			filter, err := buildFilter(status, from, to, limit, offset)
			if err != nil {
				return err
			}

			pool, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			records, err := postgres.NewFraudRecordRepository(pool).List(ctx, filter)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			return writeTable(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending_review, confirmed, dismissed)")
	cmd.Flags().StringVar(&from, "from", "", "Created at or after (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "Created before (RFC3339)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum records")
	cmd.Flags().IntVar(&offset, "offset", 0, "Records to skip")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")

	return cmd
}

func recordsReviewCmd(a *app) *cobra.Command {
	var status, reviewer string

	cmd := &cobra.Command{
		Use:   "review [transaction_id]",
		Short: "Confirm or dismiss a flagged transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			review := frauds.Review{
				TransactionID: args[0],
				Status:        domain.Status(status),
				ReviewedBy:    reviewer,
				ReviewedAt:    time.Now().UTC(),
			}
			if err := review.Validate(); err != nil {
				return err
			}

			pool, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rec, err := postgres.NewFraudRecordRepository(pool).UpdateStatus(ctx, review)
			if err != nil {
				return err
			}

			a.log.Info().
				Str("transaction_id", rec.TransactionID).
				Str("status", string(rec.Status)).
				Str("reviewed_by", reviewer).
				Msg("Fraud record reviewed")
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "confirmed or dismissed (required)")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Auditor identity recorded as reviewed_by (required)")
	_ = cmd.MarkFlagRequired("status")
	_ = cmd.MarkFlagRequired("reviewer")

	return cmd
}

// buildFilter validates list flags the same way the HTTP API validates its query.
func buildFilter(status, from, to string, limit, offset int) (frauds.Filter, error) {
	filter := frauds.Filter{Limit: limit, Offset: offset}

	if status != "" {
		filter.Status = domain.Status(status)
		if !filter.Status.Valid() {
			return filter, domain.NewValidationError("status", "must be pending_review, confirmed or dismissed")
		}
	}
	if limit < 0 {
		return filter, domain.NewValidationError("limit", "must be >= 0")
	}
	if offset < 0 {
		return filter, domain.NewValidationError("offset", "must be >= 0")
	}

	var err error
	if filter.From, err = parseTimeFlag("from", from); err != nil {
		return filter, err
	}
	if filter.To, err = parseTimeFlag("to", to); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(name, "must be an RFC3339 timestamp")
	}
	return t, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, records []*domain.FraudRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSACTION_ID\tTYPE\tAMOUNT\tPROBABILITY\tSTATUS\tCREATED_AT\tREVIEWED_BY")
	for _, r := range records {
		reviewer := "-"
		if r.ReviewedBy != nil {
			reviewer = *r.ReviewedBy
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.4f\t%s\t%s\t%s\n",
			r.TransactionID, r.TransacType, r.Amount, r.Probability, r.Status,
			r.CreatedAt.Format(time.RFC3339), reviewer)
	}
	return tw.Flush()
}
