// Package forecast fits ordinary-least-squares regressions over candle and
// indicator series: a stage-1 autoregressive close forecast, and a stage-2
// error-correction regression over the stage-1 residuals.
package forecast

import (
	"errors"
	"fmt"
	"math"
)

// ErrSingularMatrix is returned when the normal-equation matrix cannot be
// inverted (rank-deficient design or too few rows). Callers treat this as a
// recoverable degraded mode, not a fatal error.
var ErrSingularMatrix = errors.New("singular matrix: regression fit infeasible")

// Model is a fitted OLS regression. Diagnostic fields are nil pointers
// when the data is insufficient to compute them — never fabricated zeros.
type Model struct {
	Coefficients []float64  `json:"coefficients"` // [intercept, b1, ..., bk]
	StdErrors    []float64  `json:"std_errors,omitempty"`
	PValues      []float64  `json:"p_values,omitempty"`
	RSquared     *float64   `json:"r_squared,omitempty"`
	FPValue      *float64   `json:"f_p_value,omitempty"`
	Rows         int        `json:"rows"`
	DF           int        `json:"df"` // residual degrees of freedom
}

// Predict evaluates the fitted model on one feature vector (without the
// intercept term, which is applied internally).
func (m *Model) Predict(features []float64) float64 {
	y := m.Coefficients[0]
	for i, f := range features {
		y += m.Coefficients[i+1] * f
	}
	return y
}

// Fit runs OLS of y on the given feature rows. An intercept column is
// prepended to every row. The normal equations are solved by inverting XᵀX
// with Gauss-Jordan elimination under partial pivoting.
func Fit(rows [][]float64, y []float64) (*Model, error) {
	n := len(rows)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrSingularMatrix, n, len(y))
	}
	k := len(rows[0]) + 1 // +1 intercept
	if n < k {
		return nil, fmt.Errorf("%w: %d rows for %d coefficients", ErrSingularMatrix, n, k)
	}

	// Design matrix with intercept column.
	x := make([][]float64, n)
	for i, row := range rows {
		if len(row) != k-1 {
			return nil, fmt.Errorf("%w: ragged feature row %d", ErrSingularMatrix, i)
		}
		x[i] = append([]float64{1}, row...)
	}

	// XᵀX and Xᵀy.
	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for a := 0; a < k; a++ {
		xtx[a] = make([]float64, k)
		for b := 0; b < k; b++ {
			s := 0.0
			for i := 0; i < n; i++ {
				s += x[i][a] * x[i][b]
			}
			xtx[a][b] = s
		}
		s := 0.0
		for i := 0; i < n; i++ {
			s += x[i][a] * y[i]
		}
		xty[a] = s
	}

	inv, err := invert(xtx)
	if err != nil {
		return nil, err
	}

	beta := make([]float64, k)
	for a := 0; a < k; a++ {
		for b := 0; b < k; b++ {
			beta[a] += inv[a][b] * xty[b]
		}
	}

	m := &Model{Coefficients: beta, Rows: n, DF: n - k}

	// Residual and total sums of squares.
	meanY := 0.0
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(n)

	sse, tss := 0.0, 0.0
	for i := 0; i < n; i++ {
		fitted := 0.0
		for a := 0; a < k; a++ {
			fitted += x[i][a] * beta[a]
		}
		r := y[i] - fitted
		sse += r * r
		d := y[i] - meanY
		tss += d * d
	}

	// R² is reported only when the total sum of squares is nonzero; a
	// constant target would otherwise divide by zero.
	if tss > 0 {
		r2 := 1 - sse/tss
		m.RSquared = &r2
	}

	// Standard errors, t-test p-values and the overall F-test require
	// residual degrees of freedom.
	if m.DF > 0 {
		sigma2 := sse / float64(m.DF)
		m.StdErrors = make([]float64, k)
		m.PValues = make([]float64, k)
		for a := 0; a < k; a++ {
			se := math.Sqrt(sigma2 * inv[a][a])
			m.StdErrors[a] = se
			if se > 0 {
				m.PValues[a] = studentTPValue(beta[a]/se, m.DF)
			} else {
				m.PValues[a] = math.NaN()
			}
		}
		if k > 1 && sse > 0 && tss > sse {
			f := ((tss - sse) / float64(k-1)) / sigma2
			p := fPValue(f, k-1, m.DF)
			if !math.IsNaN(p) {
				m.FPValue = &p
			}
		}
	}

	return m, nil
}

// invert returns the inverse of a square matrix using Gauss-Jordan
// elimination with partial pivoting. Returns ErrSingularMatrix when a pivot
// collapses below tolerance.
func invert(a [][]float64) ([][]float64, error) {
	k := len(a)

	// Augmented [A | I], working on a copy.
	aug := make([][]float64, k)
	for i := 0; i < k; i++ {
		aug[i] = make([]float64, 2*k)
		copy(aug[i], a[i])
		aug[i][k+i] = 1
	}

	for col := 0; col < k; col++ {
		// Partial pivoting: swap in the row with the largest magnitude.
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("%w: pivot %d", ErrSingularMatrix, col)
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for j := 0; j < 2*k; j++ {
			aug[col][j] /= pv
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*k; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		inv[i] = aug[i][k:]
	}
	return inv, nil
}
