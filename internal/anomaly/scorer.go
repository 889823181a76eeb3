package anomaly

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"minewatch/internal/pixels"
	"minewatch/internal/services"
)

// Result carries one label and one score per input row. Lower scores are
// more anomalous; negative scores are labelled anomalous.
type Result struct {
	Labels []pixels.Label
	Scores []float64
}

// Anomalies counts rows labelled anomalous.
func (r Result) Anomalies() int {
	n := 0
	for _, l := range r.Labels {
		if l == pixels.LabelAnomalous {
			n++
		}
	}
	return n
}

// Scorer fits an unsupervised outlier model on a feature matrix and labels
// every row of that same matrix.
type Scorer interface {
	FitPredict(matrix [][]float64) (Result, error)
}

// ValidateMatrix rejects matrices that cannot be scored meaningfully: ragged
// rows, non-finite values, or fewer than two distinct rows.
func ValidateMatrix(matrix [][]float64) error {
	if len(matrix) == 0 {
		return services.Wrap(services.ErrInsufficientData, "scoring", "validate", "empty feature matrix", nil)
	}
	width := len(matrix[0])
	if width == 0 {
		return services.Wrap(services.ErrInsufficientData, "scoring", "validate", "feature matrix has no columns", nil)
	}
	distinct := make(map[string]struct{}, 2)
	var key strings.Builder
	for r, row := range matrix {
		if len(row) != width {
			return services.Wrap(services.ErrValidation, "scoring", "validate", fmt.Sprintf("row %d has %d features, want %d", r, len(row), width), nil)
		}
		key.Reset()
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return services.Wrap(services.ErrInsufficientData, "scoring", "validate", fmt.Sprintf("row %d contains a non-finite value", r), nil)
			}
			key.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
			key.WriteByte(',')
		}
		if len(distinct) < 2 {
			distinct[key.String()] = struct{}{}
		}
	}
	if len(distinct) < 2 {
		return services.Wrap(services.ErrInsufficientData, "scoring", "validate", "fewer than 2 distinct rows", nil)
	}
	return nil
}

// ScoreObservations runs scorer independently for each mine present in obs
// and writes labels and scores back onto the observations. matrix must be
// row-aligned with obs.
func ScoreObservations(scorer Scorer, obs []pixels.Observation, matrix [][]float64) error {
	if scorer == nil {
		return fmt.Errorf("anomaly scorer is nil")
	}
	if len(obs) != len(matrix) {
		return fmt.Errorf("observation count %d does not match matrix rows %d", len(obs), len(matrix))
	}
	mineIDs, groups := pixels.GroupByMine(obs)
	for _, mineID := range mineIDs {
		idx := groups[mineID]
		sub := make([][]float64, len(idx))
		for i, row := range idx {
			sub[i] = matrix[row]
		}
		result, err := scorer.FitPredict(sub)
		if err != nil {
			return fmt.Errorf("mine %d: %w", mineID, err)
		}
		if len(result.Labels) != len(idx) || len(result.Scores) != len(idx) {
			return fmt.Errorf("mine %d: scorer returned %d labels for %d rows", mineID, len(result.Labels), len(idx))
		}
		for i, row := range idx {
			obs[row].Label = result.Labels[i]
			obs[row].Score = result.Scores[i]
		}
	}
	return nil
}
