package detector

import (
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each feature column to zero mean and unit variance.
// Columns with zero variance are only centered.
type Scaler struct {
	mean  []float64
	scale []float64
}

// FitScaler learns column means and population standard deviations from rows.
func FitScaler(rows [][]float64) *Scaler {
	if len(rows) == 0 {
		return &Scaler{}
	}
	width := len(rows[0])
	s := &Scaler{
		mean:  make([]float64, width),
		scale: make([]float64, width),
	}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.mean[j] = mean
		s.scale[j] = std
	}
	return s
}

// Transform returns standardized copies of rows.
func (s *Scaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.mean[j]) / s.scale[j]
		}
		out[i] = scaled
	}
	return out
}
