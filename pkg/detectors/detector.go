// Package detectors provides the streaming contract shared by all incremental
// anomaly scoring models.
package detectors

import (
	"github.com/pkg/errors"
)

// Model is the common interface for all streaming anomaly detection algorithms.
// A model absorbs one sample at a time and never re-scans its history.
type Model interface {
	// FitPartial incorporates a single sample into the model.
	// It fails with ErrDimensionMismatch if the sample length differs from
	// the feature count established by the first call.
	FitPartial(sample []float64) error

	// ScorePartial returns the anomaly score of a single sample.
	// The range is model defined. It must not mutate the model.
	ScorePartial(sample []float64) (float64, error)
}

// FitScorer is implemented by models that provide their own combined
// fit and score step.
type FitScorer interface {
	FitScorePartial(sample []float64) (float64, error)
}

// WindowSizer is implemented by models that keep a bounded window of recent
// samples.
type WindowSizer interface {
	// Size returns the number of samples the model currently accounts for.
	Size() int
}

// FitScorePartial scores a sample and then fits it, unless the model
// implements FitScorer. The returned score reflects the model state before
// the sample was absorbed.
func FitScorePartial(m Model, sample []float64) (float64, error) {
	if fs, ok := m.(FitScorer); ok {
		return fs.FitScorePartial(sample)
	}

	score, err := m.ScorePartial(sample)
	if err != nil {
		return 0, err
	}
	if err := m.FitPartial(sample); err != nil {
		return 0, err
	}
	return score, nil
}

// Fit feeds every sample to the model in order.
func Fit(m Model, data [][]float64) error {
	for i, sample := range data {
		if err := m.FitPartial(sample); err != nil {
			return errors.Wrapf(err, "fit sample %d", i)
		}
	}
	return nil
}

// Score returns the score of every sample in order.
func Score(m Model, data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))
	for i, sample := range data {
		score, err := m.ScorePartial(sample)
		if err != nil {
			return nil, errors.Wrapf(err, "score sample %d", i)
		}
		scores[i] = score
	}
	return scores, nil
}

// FitScore applies FitScorePartial to every sample in order.
func FitScore(m Model, data [][]float64) ([]float64, error) {
	scores := make([]float64, len(data))
	for i, sample := range data {
		score, err := FitScorePartial(m, sample)
		if err != nil {
			return nil, errors.Wrapf(err, "fit-score sample %d", i)
		}
		scores[i] = score
	}
	return scores, nil
}
