package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds/inmemory"
	"github.com/dvloznov/fraud-scoring/internal/gcs"
	"github.com/dvloznov/fraud-scoring/internal/inference"
	"github.com/dvloznov/fraud-scoring/internal/prediction"
	"github.com/dvloznov/fraud-scoring/internal/validation"
	"github.com/dvloznov/fraud-scoring/internal/workers"
	"github.com/spf13/cobra"
)

// maxLineBytes bounds one JSON-lines payload.
const maxLineBytes = 1 << 20

func scoreCmd(a *app) *cobra.Command {
	var (
		modelPath string
		threshold float64
		workerN   int
	)

	cmd := &cobra.Command{
		Use:   "score [file]",
		Short: "Score JSON-lines transactions offline without touching the database",
		Long: `Reads one scoring payload per line from file (or stdin when omitted or "-")
and writes one verdict per line to stdout. Invalid lines are reported as
{"line": N, "error": "...", "field": "..."} and do not stop the run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if modelPath == "" {
				modelPath = a.cfg.Model.WeightPath
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.Model.Threshold
			}

			engine, err := inference.Load(ctx, modelPath, inference.LoadOptions{
				FeatureCols: a.cfg.Model.FeatureCols,
				Fetcher:     gcs.NewGCSStorageService(a.cfg.GCP.ClientOptions()...),
			})
			if err != nil {
				return err
			}

			pool := workers.NewPool(workerN, workerN*4)
			defer pool.Stop(context.Background())

			validator := validation.New(validation.Options{
				AllowNegativeBalances: a.cfg.Validation.AllowNegativeBalances,
				Vocabulary:            engine.Categories(),
			})

			// Flagged verdicts land in memory only.
			svc, err := prediction.NewService(engine, validator, inmemory.NewStore(), threshold, a.log,
				prediction.WithExecutor(pool),
			)
			if err != nil {
				return err
			}

			in := io.Reader(os.Stdin)
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			summary, err := scoreStream(ctx, validator, svc, in, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			a.log.Info().
				Str("model_version", engine.Version()).
				Int("scored", summary.Scored).
				Int("flagged", summary.Flagged).
				Int("invalid", summary.Invalid).
				Msg("Scoring finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Model artifact path or gs:// URI (default: model.weight_path)")
	cmd.Flags().Float64Var(&threshold, "threshold", prediction.DefaultThreshold, "Flagging threshold (default: model.threshold)")
	cmd.Flags().IntVar(&workerN, "workers", 4, "Scoring workers")

	return cmd
}

type scoreSummary struct {
	Scored  int
	Flagged int
	Invalid int
}

type lineError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// submissionScorer scores payloads that already passed validation.
type submissionScorer interface {
	PredictSubmission(ctx context.Context, sub *domain.Submission) (*prediction.Response, error)
}

// scoreStream validates each non-empty line of in, scores the valid ones and
// writes a JSON line per result to out. Validation failures are written
// inline; any other error aborts the run.
func scoreStream(ctx context.Context, v *validation.Validator, svc submissionScorer, in io.Reader, out io.Writer) (scoreSummary, error) {
	var summary scoreSummary

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	enc := json.NewEncoder(out)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		sub, err := v.Validate(raw)
		if err != nil {
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				err = enc.Encode(lineError{Line: line, Error: vErr.Reason, Field: vErr.Field})
			} else {
				err = enc.Encode(lineError{Line: line, Error: err.Error()})
			}
			if err != nil {
				return summary, err
			}
			summary.Invalid++
			continue
		}

		resp, err := svc.PredictSubmission(ctx, sub)
		if err != nil {
			return summary, fmt.Errorf("line %d: %w", line, err)
		}

		summary.Scored++
		if resp.IsFraud {
			summary.Flagged++
		}
		if err := enc.Encode(resp); err != nil {
			return summary, err
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("reading input: %w", err)
	}

	return summary, nil
}
