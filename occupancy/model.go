package occupancy

import (
	"fmt"
	"math/rand"
	"sort"
)

// Model wraps one room's isolation forest together with its feature
// schema and decision threshold. A Model is fitted on one room's feature
// matrix and never shared across rooms.
type Model struct {
	cfg   ModelConfig
	cols  []string
	usage float64

	f      *forest
	offset float64
	fitted bool
}

// NewModel constructs an unfitted model. usage is the expected outlier
// fraction from the usage estimator; UsageAuto defers to the configured
// default contamination.
func NewModel(cfg ModelConfig, cols []string, usage float64) *Model {
	return &Model{cfg: cfg, cols: cols, usage: usage}
}

// Columns returns the feature schema the model was constructed with.
func (m *Model) Columns() []string { return m.cols }

// Fitted reports whether Fit has completed at least once.
func (m *Model) Fitted() bool { return m.fitted }

// Fit trains on the feature matrix. Refitting replaces all prior state.
// The decision threshold is placed at the (1-contamination) quantile of
// the training anomaly scores, so roughly the expected outlier fraction
// of training rows scores as anomalous.
func (m *Model) Fit(t FeatureTable) error {
	data, err := t.Matrix(m.cols)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("fit on empty feature table")
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	f := buildForest(data, m.cfg.Trees, m.cfg.SampleSize, rng)

	contamination := m.usage
	if contamination < 0 {
		contamination = m.cfg.DefaultContamination
	}

	scores := make([]float64, len(data))
	for i, x := range data {
		scores[i] = f.anomalyScore(x)
	}

	m.f = f
	m.offset = quantile(scores, 1-contamination)
	m.fitted = true
	return nil
}

// Predict returns 1 for rows the model judges anomalous and 0 otherwise.
// In this domain the anomaly label is read as "in use": the room's
// unoccupied baseline is the normal class.
func (m *Model) Predict(t FeatureTable) ([]int, error) {
	data, err := m.featureData(t)
	if err != nil {
		return nil, err
	}

	preds := make([]int, len(data))
	for i, x := range data {
		if m.f.anomalyScore(x) > m.offset {
			preds[i] = 1
		}
	}
	return preds, nil
}

// Score returns anomaly scores normalized to [0, 1] across the batch,
// 1 being most anomalous. Raw decision values (higher = more normal) are
// min-max interpolated and inverted. A zero-variance batch cannot be
// min-max scaled; every row then gets the mid-scale value 0.5.
func (m *Model) Score(t FeatureTable) ([]float64, error) {
	data, err := m.featureData(t)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	raw := make([]float64, len(data))
	for i, x := range data {
		// Decision value in the estimator's convention: positive for
		// normal rows, negative past the threshold.
		raw[i] = m.offset - m.f.anomalyScore(x)
	}

	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	scores := make([]float64, len(raw))
	if hi == lo {
		for i := range scores {
			scores[i] = 0.5
		}
		return scores, nil
	}
	for i, v := range raw {
		scores[i] = 1 - (v-lo)/(hi-lo)
	}
	return scores, nil
}

func (m *Model) featureData(t FeatureTable) ([][]float64, error) {
	if !m.fitted {
		return nil, fmt.Errorf("model not fitted")
	}
	return t.Matrix(m.cols)
}

// quantile returns the q-quantile (0..1) of values with linear
// interpolation between order statistics.
func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
