package analysis

import (
	"math"

	"github.com/core-tools/hsu-governor/pkg/errors"
)

// ridgeLambda stabilizes the normal equations; features are standardized
// before fitting so one value suits all resource scales
const ridgeLambda = 1e-3

// linearModel is one trained one-step-ahead predictor: target value as a
// linear function of the standardized cross-resource feature vector.
type linearModel struct {
	weights     []float64 // bias followed by one weight per feature
	means       []float64
	stdDevs     []float64 // zero marks a constant, dropped feature
	confidence  float64   // training R-squared, clamped to [0,1]
	importances []float64 // normalized absolute weight share per feature
}

// fitLinearModel fits targets against feature rows by ridge-stabilized
// least squares. Feature columns are standardized; constant columns are
// dropped rather than inverted.
func fitLinearModel(features [][]float64, targets []float64) (*linearModel, error) {
	n := len(features)
	if n < 2 || len(targets) != n {
		return nil, errors.NewAnalysisError("not enough rows to fit model", nil)
	}
	dims := len(features[0])

	means := make([]float64, dims)
	stdDevs := make([]float64, dims)
	for j := 0; j < dims; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += features[i][j]
		}
		means[j] = sum / float64(n)

		var sumSquares float64
		for i := 0; i < n; i++ {
			diff := features[i][j] - means[j]
			sumSquares += diff * diff
		}
		stdDev := math.Sqrt(sumSquares / float64(n))
		if stdDev < 1e-12 {
			stdDev = 0
		}
		stdDevs[j] = stdDev
	}

	standardize := func(row []float64) []float64 {
		z := make([]float64, dims+1)
		z[0] = 1 // bias
		for j := 0; j < dims; j++ {
			if stdDevs[j] > 0 {
				z[j+1] = (row[j] - means[j]) / stdDevs[j]
			}
		}
		return z
	}

	// Normal equations on the standardized design matrix
	size := dims + 1
	a := make([][]float64, size)
	for i := range a {
		a[i] = make([]float64, size)
	}
	b := make([]float64, size)

	for i := 0; i < n; i++ {
		z := standardize(features[i])
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				a[r][c] += z[r] * z[c]
			}
			b[r] += z[r] * targets[i]
		}
	}
	// Ridge term on every weight except the bias
	for j := 1; j < size; j++ {
		a[j][j] += ridgeLambda
	}

	weights, err := solveLinearSystem(a, b)
	if err != nil {
		return nil, err
	}

	model := &linearModel{
		weights: weights,
		means:   means,
		stdDevs: stdDevs,
	}

	// Training R-squared as confidence
	var sumY float64
	for _, y := range targets {
		sumY += y
	}
	meanY := sumY / float64(n)

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		predicted := model.predict(features[i])
		ssRes += (targets[i] - predicted) * (targets[i] - predicted)
		ssTot += (targets[i] - meanY) * (targets[i] - meanY)
	}
	rSquared := 1 - ssRes/ssTot
	if math.IsNaN(rSquared) || math.IsInf(rSquared, 0) || rSquared < 0 {
		rSquared = 0
	}
	if rSquared > 1 {
		rSquared = 1
	}
	model.confidence = rSquared

	// Standardized features make absolute weights directly comparable
	importances := make([]float64, dims)
	var totalWeight float64
	for j := 0; j < dims; j++ {
		importances[j] = math.Abs(weights[j+1])
		totalWeight += importances[j]
	}
	if totalWeight > 0 {
		for j := range importances {
			importances[j] /= totalWeight
		}
	}
	model.importances = importances

	return model, nil
}

// predict applies the model to one raw feature row
func (m *linearModel) predict(row []float64) float64 {
	result := m.weights[0]
	for j := 0; j < len(row) && j+1 < len(m.weights); j++ {
		if m.stdDevs[j] > 0 {
			result += m.weights[j+1] * (row[j] - m.means[j]) / m.stdDevs[j]
		}
	}
	return result
}

// solveLinearSystem solves a*x = b by Gaussian elimination with partial
// pivoting. The inputs are modified in place.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	size := len(a)
	for col := 0; col < size; col++ {
		// Pivot on the largest absolute value in this column
		pivot := col
		for row := col + 1; row < size; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errors.NewAnalysisError("regression system is degenerate", nil).
				WithContext("column", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < size; row++ {
			factor := a[row][col] / a[col][col]
			for c := col; c < size; c++ {
				a[row][c] -= factor * a[col][c]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, size)
	for row := size - 1; row >= 0; row-- {
		sum := b[row]
		for col := row + 1; col < size; col++ {
			sum -= a[row][col] * x[col]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}
