package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dvloznov/fraud-scoring/internal/gcs"
	"gopkg.in/yaml.v3"
)

// Classifier kinds.
const (
	KindLogisticRegression = "logistic_regression"
	KindTreeEnsemble       = "tree_ensemble"
)

// Tree ensemble aggregation modes.
const (
	AggregationMeanProbability = "mean_probability"
	AggregationSumLogit        = "sum_logit"
)

// Artifact is the frozen feature pipeline and classifier produced by training.
type Artifact struct {
	Version            string         `json:"version,omitempty" yaml:"version,omitempty"`
	NumericFeatures    []string       `json:"numeric_features" yaml:"numeric_features"`
	Scaler             Scaler         `json:"scaler" yaml:"scaler"`
	CategoricalFeature string         `json:"categorical_feature" yaml:"categorical_feature"`
	Categories         []string       `json:"categories" yaml:"categories"`
	Classifier         ClassifierSpec `json:"classifier" yaml:"classifier"`
}

// Scaler holds the fitted standardization parameters, one per numeric feature.
type Scaler struct {
	Mean  []float64 `json:"mean" yaml:"mean"`
	Scale []float64 `json:"scale" yaml:"scale"`
}

// ClassifierSpec describes either a logistic regression or a tree ensemble.
type ClassifierSpec struct {
	Type string `json:"type" yaml:"type"`

	// logistic_regression
	Coefficients []float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
	Intercept    float64   `json:"intercept,omitempty" yaml:"intercept,omitempty"`

	// tree_ensemble
	Trees       []TreeSpec `json:"trees,omitempty" yaml:"trees,omitempty"`
	Aggregation string     `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	BaseScore   float64    `json:"base_score,omitempty" yaml:"base_score,omitempty"`
}

// TreeSpec is a binary decision tree stored as a flat node list; node 0 is the root.
type TreeSpec struct {
	Nodes []NodeSpec `json:"nodes" yaml:"nodes"`
}

// NodeSpec is a split node when Leaf is nil, otherwise a leaf.
// Split nodes send x[Feature] <= Threshold to Left, everything else to Right.
type NodeSpec struct {
	Feature   int      `json:"feature,omitempty" yaml:"feature,omitempty"`
	Threshold float64  `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Left      int      `json:"left,omitempty" yaml:"left,omitempty"`
	Right     int      `json:"right,omitempty" yaml:"right,omitempty"`
	Leaf      *float64 `json:"leaf,omitempty" yaml:"leaf,omitempty"`
}

// Width returns the length of the encoded feature vector.
func (a *Artifact) Width() int {
	return len(a.NumericFeatures) + len(a.Categories)
}

// FeatureColumns returns the input columns the artifact consumes, in order.
func (a *Artifact) FeatureColumns() []string {
	cols := make([]string, 0, len(a.NumericFeatures)+1)
	cols = append(cols, a.NumericFeatures...)
	return append(cols, a.CategoricalFeature)
}

// Fetcher downloads remote artifacts. gcs.StorageService satisfies it.
type Fetcher interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// ReadSource returns the artifact bytes from a local path or a gs:// URI.
func ReadSource(ctx context.Context, source string, fetcher Fetcher) ([]byte, error) {
	if gcs.IsGCSURI(source) {
		if fetcher == nil {
			return nil, fmt.Errorf("artifact %s: no storage client configured", source)
		}
		return fetcher.FetchFromGCS(ctx, source)
	}

	raw, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return raw, nil
}

// DecodeArtifact parses raw as JSON or YAML. The format is taken from the
// source extension, falling back to sniffing the first byte.
func DecodeArtifact(source string, raw []byte) (*Artifact, error) {
	var a Artifact

	switch formatFor(source, raw) {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("decode artifact json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("decode artifact yaml: %w", err)
		}
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func formatFor(source string, raw []byte) string {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		return "json"
	}
	return "yaml"
}

// Fingerprint returns the content digest used when an artifact carries no version.
func Fingerprint(raw []byte) string {
	return fmt.Sprintf("xxh-%016x", xxhash.Sum64(raw))
}

// Validate checks the artifact is internally consistent.
func (a *Artifact) Validate() error {
	if len(a.NumericFeatures) == 0 {
		return errors.New("artifact: numeric_features is empty")
	}
	for _, name := range a.NumericFeatures {
		if _, ok := numericFields[name]; !ok {
			return fmt.Errorf("artifact: unsupported numeric feature %q", name)
		}
	}
	if len(a.Scaler.Mean) != len(a.NumericFeatures) || len(a.Scaler.Scale) != len(a.NumericFeatures) {
		return fmt.Errorf("artifact: scaler has %d means and %d scales for %d numeric features",
			len(a.Scaler.Mean), len(a.Scaler.Scale), len(a.NumericFeatures))
	}
	if a.CategoricalFeature != "transac_type" {
		return fmt.Errorf("artifact: unsupported categorical feature %q", a.CategoricalFeature)
	}
	if len(a.Categories) == 0 {
		return errors.New("artifact: categories is empty")
	}
	seen := make(map[string]struct{}, len(a.Categories))
	for _, c := range a.Categories {
		norm := strings.ToUpper(strings.TrimSpace(c))
		if norm == "" {
			return errors.New("artifact: empty category")
		}
		if _, dup := seen[norm]; dup {
			return fmt.Errorf("artifact: duplicate category %q", c)
		}
		seen[norm] = struct{}{}
	}

	return a.Classifier.validate(a.Width())
}

func (c *ClassifierSpec) validate(width int) error {
	switch c.Type {
	case KindLogisticRegression:
		if len(c.Coefficients) != width {
			return fmt.Errorf("artifact: logistic_regression has %d coefficients, want %d", len(c.Coefficients), width)
		}
		return nil

	case KindTreeEnsemble:
		if len(c.Trees) == 0 {
			return errors.New("artifact: tree_ensemble has no trees")
		}
		switch c.Aggregation {
		case AggregationMeanProbability, AggregationSumLogit:
		default:
			return fmt.Errorf("artifact: unknown aggregation %q", c.Aggregation)
		}
		for i, tree := range c.Trees {
			if err := tree.validate(width); err != nil {
				return fmt.Errorf("artifact: tree %d: %w", i, err)
			}
		}
		return nil
	}

	return fmt.Errorf("artifact: unknown classifier type %q", c.Type)
}

func (t *TreeSpec) validate(width int) error {
	if len(t.Nodes) == 0 {
		return errors.New("no nodes")
	}
	for i, n := range t.Nodes {
		if n.Leaf != nil {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		// Children always follow their parent, which rules out cycles.
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}
