package inference

import "math"

// classifier maps an encoded feature vector to a positive-class probability.
type classifier interface {
	probability(x []float64) float64
}

type logisticRegression struct {
	coefficients []float64
	intercept    float64
}

func (l logisticRegression) probability(x []float64) float64 {
	z := l.intercept
	for i, c := range l.coefficients {
		z += c * x[i]
	}
	return sigmoid(z)
}

type treeEnsemble struct {
	trees       []TreeSpec
	aggregation string
	baseScore   float64
}

func (e treeEnsemble) probability(x []float64) float64 {
	var sum float64
	for i := range e.trees {
		sum += e.trees[i].predict(x)
	}

	if e.aggregation == AggregationSumLogit {
		return sigmoid(e.baseScore + sum)
	}
	return sum / float64(len(e.trees))
}

func (t *TreeSpec) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf != nil {
			return *n.Leaf
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func newClassifier(spec ClassifierSpec) classifier {
	if spec.Type == KindTreeEnsemble {
		return treeEnsemble{trees: spec.Trees, aggregation: spec.Aggregation, baseScore: spec.BaseScore}
	}
	return logisticRegression{coefficients: spec.Coefficients, intercept: spec.Intercept}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
