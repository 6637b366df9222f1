// Package prediction composes validation, scoring, flagging and persistence
// into a single scoring request.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds"
	"github.com/dvloznov/fraud-scoring/internal/metrics"
	"github.com/dvloznov/fraud-scoring/internal/workers"
	"github.com/rs/zerolog"
)

// DefaultThreshold flags probabilities of 0.5 and above.
const DefaultThreshold = 0.5

// PersistenceWarning is returned with a verdict that could not be saved.
const PersistenceWarning = "verdict not persisted; resubmit with the same transaction_id"

// Scorer produces a fraud probability. *inference.Engine satisfies it.
type Scorer interface {
	Score(rec domain.TransactionRecord) (domain.Score, error)
	Version() string
}

// Validator turns a raw payload into a submission. *validation.Validator satisfies it.
type Validator interface {
	Validate(raw []byte) (*domain.Submission, error)
}

// VerdictCache replays scores for resubmitted transactions. *cache.RedisCache satisfies it.
type VerdictCache interface {
	Get(ctx context.Context, transactionID, modelVersion string) (domain.Score, bool, error)
	Set(ctx context.Context, transactionID string, score domain.Score) error
}

// Recorder receives scoring metrics. *metrics.Collector satisfies it.
type Recorder interface {
	RecordPrediction(outcome string, duration time.Duration)
	ObserveProbability(p float64)
	PersistenceRetry()
	PersistenceFailure()
	CacheHit()
}

// Response is the verdict returned to the caller.
type Response struct {
	TransactionID string  `json:"transaction_id"`
	IsFraud       bool    `json:"is_fraud"`
	Probability   float64 `json:"probability"`
	ModelVersion  string  `json:"model_version"`
	Persisted     bool    `json:"persisted"`
	Warning       string  `json:"warning,omitempty"`
}

// Service runs scoring requests. It holds no request-scoped state and is
// safe for concurrent use.
type Service struct {
	scorer    Scorer
	validator Validator
	repo      frauds.Repository
	executor  workers.Submitter
	cache     VerdictCache
	metrics   Recorder
	log       zerolog.Logger
	threshold float64
	retry     RetryPolicy
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithExecutor runs scoring on s instead of the calling goroutine.
func WithExecutor(s workers.Submitter) Option {
	return func(svc *Service) { svc.executor = s }
}

// WithCache enables verdict replay.
func WithCache(c VerdictCache) Option {
	return func(svc *Service) { svc.cache = c }
}

// WithMetrics records outcomes on r.
func WithMetrics(r Recorder) Option {
	return func(svc *Service) { svc.metrics = r }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(svc *Service) { svc.retry = p }
}

// WithClock overrides time.Now for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// NewService creates a Service. A nil scorer is allowed and makes every
// request fail with domain.ErrEngineUnavailable.
func NewService(scorer Scorer, validator Validator, repo frauds.Repository, threshold float64, log zerolog.Logger, opts ...Option) (*Service, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %v must be in [0,1]", threshold)
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}

	s := &Service{
		scorer:    scorer,
		validator: validator,
		repo:      repo,
		executor:  workers.Inline{},
		metrics:   nopRecorder{},
		log:       log,
		threshold: threshold,
		retry:     DefaultRetryPolicy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ready reports whether a model is loaded.
func (s *Service) Ready() bool {
	return s.scorer != nil
}

// ModelVersion returns the loaded model version or "".
func (s *Service) ModelVersion() string {
	if s.scorer == nil {
		return ""
	}
	return s.scorer.Version()
}

// Threshold returns the flagging cutoff.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Predict validates raw, scores it and persists it when flagged.
//
// When the verdict was computed but could not be saved, Predict returns the
// response together with an error wrapping domain.ErrPersistenceFailure.
func (s *Service) Predict(ctx context.Context, raw []byte) (*Response, error) {
	start := time.Now()

	if s.scorer == nil {
		s.metrics.RecordPrediction(metrics.OutcomeUnavailable, time.Since(start))
		return nil, domain.ErrEngineUnavailable
	}

	sub, err := s.validator.Validate(raw)
	if err != nil {
		s.metrics.RecordPrediction(metrics.OutcomeInvalid, time.Since(start))
		return nil, err
	}

	resp, err := s.predict(ctx, sub)
	s.metrics.RecordPrediction(outcomeFor(resp, err), time.Since(start))
	return resp, err
}

// PredictSubmission scores an already validated submission.
func (s *Service) PredictSubmission(ctx context.Context, sub *domain.Submission) (*Response, error) {
	start := time.Now()

	if s.scorer == nil {
		s.metrics.RecordPrediction(metrics.OutcomeUnavailable, time.Since(start))
		return nil, domain.ErrEngineUnavailable
	}

	resp, err := s.predict(ctx, sub)
	s.metrics.RecordPrediction(outcomeFor(resp, err), time.Since(start))
	return resp, err
}

func (s *Service) predict(ctx context.Context, sub *domain.Submission) (*Response, error) {
	log := s.log.With().Str("transaction_id", sub.TransactionID).Logger()

	score, err := s.score(ctx, sub, log)
	if err != nil {
		return nil, err
	}

	result := domain.Classify(score, s.threshold)
	s.metrics.ObserveProbability(result.Probability)

	resp := &Response{
		TransactionID: sub.TransactionID,
		IsFraud:       result.IsFraud,
		Probability:   result.Probability,
		ModelVersion:  result.ModelVersion,
	}
	if !result.IsFraud {
		return resp, nil
	}

	rec := domain.NewFraudRecord(sub, result, s.now())
	inserted, err := s.save(ctx, rec, log)
	if err != nil {
		s.metrics.PersistenceFailure()
		log.Error().Err(err).
			Float64("probability", result.Probability).
			Str("model_version", result.ModelVersion).
			Msg("Failed to persist flagged transaction")

		resp.Warning = PersistenceWarning
		return resp, fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}

	resp.Persisted = true
	log.Info().
		Float64("probability", result.Probability).
		Bool("duplicate", !inserted).
		Msg("Flagged transaction persisted")

	return resp, nil
}

// score returns a cached verdict or runs the engine on the executor.
func (s *Service) score(ctx context.Context, sub *domain.Submission, log zerolog.Logger) (domain.Score, error) {
	version := s.scorer.Version()

	if s.cache != nil && !sub.Generated {
		cached, ok, err := s.cache.Get(ctx, sub.TransactionID, version)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Verdict cache lookup failed")
		case ok:
			s.metrics.CacheHit()
			return cached, nil
		}
	}

	score, err := workers.Run(ctx, s.executor, func(ctx context.Context) (domain.Score, error) {
		return s.scorer.Score(sub.Transaction)
	})
	if err != nil {
		return domain.Score{}, err
	}

	if s.cache != nil && !sub.Generated {
		if err := s.cache.Set(ctx, sub.TransactionID, score); err != nil {
			log.Warn().Err(err).Msg("Verdict cache store failed")
		}
	}

	return score, nil
}

func (s *Service) save(ctx context.Context, rec *domain.FraudRecord, log zerolog.Logger) (bool, error) {
	var inserted bool
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		inserted, err = s.repo.Save(ctx, rec)
		return err
	}, func(attempt int, err error) {
		s.metrics.PersistenceRetry()
		log.Warn().Err(err).Int("attempt", attempt).Msg("Retrying fraud record save")
	})
	return inserted, err
}

func outcomeFor(resp *Response, err error) string {
	switch {
	case errors.Is(err, domain.ErrPersistenceFailure):
		return metrics.OutcomeDegraded
	case errors.Is(err, domain.ErrBusy):
		return metrics.OutcomeBusy
	case errors.Is(err, domain.ErrEngineUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, domain.ErrInvalidRequest):
		return metrics.OutcomeInvalid
	case err != nil:
		return metrics.OutcomeError
	case resp.IsFraud:
		return metrics.OutcomeFlagged
	}
	return metrics.OutcomeClear
}

type nopRecorder struct{}

func (nopRecorder) RecordPrediction(string, time.Duration) {}
func (nopRecorder) ObserveProbability(float64)             {}
func (nopRecorder) PersistenceRetry()                      {}
func (nopRecorder) PersistenceFailure()                    {}
func (nopRecorder) CacheHit()                              {}
