package preprocess

import (
	"fmt"
	"math"

	"minewatch/internal/pixels"
	"minewatch/internal/services"
)

// Report summarizes what Clean removed.
type Report struct {
	Input        int
	InvalidDates int
	NonFinite    int
	Duplicates   int
	Kept         int
}

// Clean drops observations with missing dates or non-finite values, removes
// duplicate natural keys, and returns the survivors sorted by mine, location,
// and date. The input slice is not modified.
func Clean(obs []pixels.Observation) ([]pixels.Observation, Report) {
	report := Report{Input: len(obs)}
	out := make([]pixels.Observation, 0, len(obs))
	for _, o := range obs {
		if o.Date.IsZero() {
			report.InvalidDates++
			continue
		}
		if !o.Bands.Finite() || !finite(o.Location.Lat) || !finite(o.Location.Lon) {
			report.NonFinite++
			continue
		}
		out = append(out, o)
	}
	pixels.SortByLocationDate(out)
	deduped := pixels.Dedupe(out)
	report.Duplicates = len(out) - len(deduped)
	report.Kept = len(deduped)
	return deduped, report
}

// Scaler standardizes each feature column to zero mean and unit variance.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes per-feature mean and population standard deviation.
// Columns with zero variance get a scale of 1 so they pass through centered.
func FitScaler(obs []pixels.Observation) (*Scaler, error) {
	if len(obs) == 0 {
		return nil, services.Wrap(services.ErrInsufficientData, "preprocess", "fit scaler", "no observations", nil)
	}
	width := len(pixels.FeatureNames)
	mean := make([]float64, width)
	for _, o := range obs {
		for i, v := range o.Bands.Vector() {
			mean[i] += v
		}
	}
	n := float64(len(obs))
	for i := range mean {
		mean[i] /= n
	}

	scale := make([]float64, width)
	for _, o := range obs {
		for i, v := range o.Bands.Vector() {
			d := v - mean[i]
			scale[i] += d * d
		}
	}
	for i := range scale {
		scale[i] = math.Sqrt(scale[i] / n)
		if scale[i] == 0 || !finite(scale[i]) {
			scale[i] = 1
		}
	}
	return &Scaler{Mean: mean, Scale: scale}, nil
}

// Transform returns the standardized feature matrix, one row per observation.
func (s *Scaler) Transform(obs []pixels.Observation) ([][]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("scaler not fitted")
	}
	matrix := make([][]float64, len(obs))
	for r, o := range obs {
		raw := o.Bands.Vector()
		if len(raw) != len(s.Mean) {
			return nil, fmt.Errorf("feature width %d does not match scaler width %d", len(raw), len(s.Mean))
		}
		row := make([]float64, len(raw))
		for i, v := range raw {
			row[i] = (v - s.Mean[i]) / s.Scale[i]
		}
		matrix[r] = row
	}
	return matrix, nil
}

// Features fits a scaler on obs and returns the scaled matrix.
func Features(obs []pixels.Observation) ([][]float64, error) {
	scaler, err := FitScaler(obs)
	if err != nil {
		return nil, err
	}
	return scaler.Transform(obs)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
