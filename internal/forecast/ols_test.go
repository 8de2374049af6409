package forecast

import (
	"errors"
	"math"
	"testing"
)

func assertClose(t *testing.T, got, want, tol float64, label string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: expected %.6f, got %.6f", label, want, got)
	}
}

func TestFit_RecoversExactLine(t *testing.T) {
	// y = 2 + 3x, no noise.
	var rows [][]float64
	var y []float64
	for x := 1.0; x <= 6; x++ {
		rows = append(rows, []float64{x})
		y = append(y, 2+3*x)
	}

	m, err := Fit(rows, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	assertClose(t, m.Coefficients[0], 2.0, 1e-9, "intercept")
	assertClose(t, m.Coefficients[1], 3.0, 1e-9, "slope")
	if m.RSquared == nil {
		t.Fatal("expected R² on non-constant target")
	}
	assertClose(t, *m.RSquared, 1.0, 1e-9, "r²")
	if m.Rows != 6 || m.DF != 4 {
		t.Errorf("expected rows=6 df=4, got rows=%d df=%d", m.Rows, m.DF)
	}
	assertClose(t, m.Predict([]float64{10}), 32.0, 1e-9, "predict")
}

func TestFit_NoisyLineDiagnostics(t *testing.T) {
	// y = 1 + 2x with alternating deterministic noise.
	var rows [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		x := float64(i)
		noise := 0.1
		if i%2 == 1 {
			noise = -0.1
		}
		rows = append(rows, []float64{x})
		y = append(y, 1+2*x+noise)
	}

	m, err := Fit(rows, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	assertClose(t, m.Coefficients[0], 1.0, 0.1, "intercept")
	assertClose(t, m.Coefficients[1], 2.0, 0.02, "slope")

	if m.RSquared == nil || *m.RSquared < 0.99 {
		t.Errorf("expected R² near 1, got %v", m.RSquared)
	}
	if len(m.PValues) != 2 {
		t.Fatalf("expected 2 p-values, got %d", len(m.PValues))
	}
	// Slope is overwhelmingly significant.
	if m.PValues[1] > 1e-6 {
		t.Errorf("expected tiny slope p-value, got %g", m.PValues[1])
	}
	if m.FPValue == nil {
		t.Fatal("expected overall F-test p-value")
	}
	if *m.FPValue > 1e-6 {
		t.Errorf("expected tiny F p-value, got %g", *m.FPValue)
	}
	if *m.FPValue < 0 || *m.FPValue > 1 {
		t.Errorf("F p-value out of [0,1]: %g", *m.FPValue)
	}
}

func TestFit_SingularOnDuplicateColumns(t *testing.T) {
	var rows [][]float64
	var y []float64
	for x := 1.0; x <= 8; x++ {
		rows = append(rows, []float64{x, x}) // perfectly collinear
		y = append(y, x)
	}
	_, err := Fit(rows, y)
	if !errors.Is(err, ErrSingularMatrix) {
		t.Fatalf("expected ErrSingularMatrix, got %v", err)
	}
}

func TestFit_RejectsUnderdeterminedSystem(t *testing.T) {
	// 2 rows cannot determine 3 coefficients.
	rows := [][]float64{{1, 2}, {3, 4}}
	y := []float64{1, 2}
	if _, err := Fit(rows, y); !errors.Is(err, ErrSingularMatrix) {
		t.Fatalf("expected ErrSingularMatrix, got %v", err)
	}

	if _, err := Fit(nil, nil); !errors.Is(err, ErrSingularMatrix) {
		t.Fatalf("expected ErrSingularMatrix on empty input, got %v", err)
	}
}

func TestFit_ConstantTargetHasNoRSquared(t *testing.T) {
	var rows [][]float64
	var y []float64
	for x := 1.0; x <= 6; x++ {
		rows = append(rows, []float64{x})
		y = append(y, 5)
	}
	m, err := Fit(rows, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if m.RSquared != nil {
		t.Errorf("expected nil R² for constant target, got %v", *m.RSquared)
	}
	assertClose(t, m.Coefficients[1], 0.0, 1e-9, "slope on constant target")
}

func TestStudentTPValue(t *testing.T) {
	// t=0 is the null itself.
	assertClose(t, studentTPValue(0, 10), 1.0, 1e-9, "p at t=0")
	// Known two-sided value: t=2.228, df=10 is the 5% critical point.
	assertClose(t, studentTPValue(2.228, 10), 0.05, 1e-3, "p at 5% critical t")
	// Symmetry.
	assertClose(t, studentTPValue(-2.228, 10), studentTPValue(2.228, 10), 1e-12, "symmetry")
	// Large |t| drives p toward zero.
	if p := studentTPValue(50, 10); p > 1e-8 {
		t.Errorf("expected vanishing p for huge t, got %g", p)
	}
}

func TestFPValue(t *testing.T) {
	// F(1, df) equals the square of the t distribution: the 5% critical
	// value for F(1,10) is 2.228² ≈ 4.964.
	assertClose(t, fPValue(4.964, 1, 10), 0.05, 1e-3, "F 5% critical")
	if p := fPValue(100, 3, 20); p > 1e-6 {
		t.Errorf("expected vanishing p for huge F, got %g", p)
	}
}
