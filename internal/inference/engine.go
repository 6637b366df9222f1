// Package inference scores transactions against a frozen model artifact.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/fraud-scoring/internal/domain"
)

// numericFields resolves artifact feature names to transaction fields.
var numericFields = map[string]func(domain.TransactionRecord) float64{
	"time_ind":    func(r domain.TransactionRecord) float64 { return float64(r.TimeInd) },
	"amount":      func(r domain.TransactionRecord) float64 { return r.Amount },
	"src_bal":     func(r domain.TransactionRecord) float64 { return r.SrcBal },
	"src_new_bal": func(r domain.TransactionRecord) float64 { return r.SrcNewBal },
	"dst_bal":     func(r domain.TransactionRecord) float64 { return r.DstBal },
	"dst_new_bal": func(r domain.TransactionRecord) float64 { return r.DstNewBal },
}

// ErrFeatureContract is returned when configured feature columns disagree
// with the artifact.
var ErrFeatureContract = errors.New("feature columns do not match artifact")

// Engine holds one fitted pipeline. It is never mutated after construction
// and is safe for concurrent use.
type Engine struct {
	version    string
	getters    []func(domain.TransactionRecord) float64
	mean       []float64
	scale      []float64
	categories []string
	catIndex   map[string]int
	clf        classifier
}

// LoadOptions configures Load.
type LoadOptions struct {
	// FeatureCols, when set, must equal the artifact's numeric features
	// followed by its categorical feature.
	FeatureCols []string

	// Fetcher reads gs:// sources.
	Fetcher Fetcher
}

// Load reads, decodes and validates the artifact at source.
func Load(ctx context.Context, source string, opts LoadOptions) (*Engine, error) {
	raw, err := ReadSource(ctx, source, opts.Fetcher)
	if err != nil {
		return nil, err
	}

	a, err := DecodeArtifact(source, raw)
	if err != nil {
		return nil, err
	}

	if len(opts.FeatureCols) > 0 {
		if err := checkFeatureContract(opts.FeatureCols, a.FeatureColumns()); err != nil {
			return nil, err
		}
	}

	version := a.Version
	if version == "" {
		version = Fingerprint(raw)
	}

	return NewEngine(a, version)
}

// NewEngine builds an engine from a decoded artifact.
func NewEngine(a *Artifact, version string) (*Engine, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if version == "" {
		return nil, errors.New("inference: empty model version")
	}

	e := &Engine{
		version:    version,
		getters:    make([]func(domain.TransactionRecord) float64, len(a.NumericFeatures)),
		mean:       append([]float64(nil), a.Scaler.Mean...),
		scale:      make([]float64, len(a.Scaler.Scale)),
		categories: make([]string, len(a.Categories)),
		catIndex:   make(map[string]int, len(a.Categories)),
		clf:        newClassifier(a.Classifier),
	}

	for i, name := range a.NumericFeatures {
		e.getters[i] = numericFields[name]
	}
	for i, s := range a.Scaler.Scale {
		if s == 0 {
			s = 1
		}
		e.scale[i] = s
	}
	for i, c := range a.Categories {
		norm := strings.ToUpper(strings.TrimSpace(c))
		e.categories[i] = norm
		e.catIndex[norm] = i
	}

	return e, nil
}

// Version returns the model version stamped on every verdict.
func (e *Engine) Version() string {
	return e.version
}

// Categories returns the fitted categorical vocabulary.
func (e *Engine) Categories() []string {
	return append([]string(nil), e.categories...)
}

// Encode builds the feature vector for rec: standardized numerics followed by
// a one-hot block. Kinds outside the vocabulary encode as all zeros.
func (e *Engine) Encode(rec domain.TransactionRecord) []float64 {
	x := make([]float64, len(e.getters)+len(e.categories))
	for i, get := range e.getters {
		x[i] = (get(rec) - e.mean[i]) / e.scale[i]
	}
	if idx, ok := e.catIndex[string(rec.TransacType)]; ok {
		x[len(e.getters)+idx] = 1
	}
	return x
}

// Score returns the fraud probability for rec.
func (e *Engine) Score(rec domain.TransactionRecord) (domain.Score, error) {
	p := e.clf.probability(e.Encode(rec))
	if math.IsNaN(p) {
		return domain.Score{}, fmt.Errorf("inference: non-finite probability for model %s", e.version)
	}
	return domain.Score{Probability: clamp01(p), ModelVersion: e.version}, nil
}

func checkFeatureContract(configured, artifact []string) error {
	mismatch := len(configured) != len(artifact)
	for i := 0; !mismatch && i < len(configured); i++ {
		mismatch = strings.TrimSpace(configured[i]) != artifact[i]
	}
	if mismatch {
		return fmt.Errorf("%w: configured %v, artifact %v", ErrFeatureContract, configured, artifact)
	}
	return nil
}
