package forecast

import "math"

// Cumulative distribution helpers for regression diagnostics. The Student-t
// and F CDFs are both expressed through the regularized incomplete beta
// function, evaluated with the Lentz continued-fraction method.

// regIncBeta computes I_x(a, b), the regularized incomplete beta function.
func regIncBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	lbeta, _ := math.Lgamma(a + b)
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	front := math.Exp(lbeta - la - lb + a*math.Log(x) + b*math.Log(1-x))

	// Continued fraction converges fastest for x < (a+1)/(a+b+2);
	// otherwise use the symmetry relation.
	if x < (a+1)/(a+b+2) {
		return front * betaCF(a, b, x) / a
	}
	return 1 - front*betaCF(b, a, 1-x)/b
}

// betaCF evaluates the continued fraction for the incomplete beta function
// (modified Lentz's method).
func betaCF(a, b, x float64) float64 {
	const (
		maxIter = 200
		eps     = 3e-14
		fpmin   = 1e-300
	)
	qab := a + b
	qap := a + 1
	qam := a - 1
	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < fpmin {
		d = fpmin
	}
	d = 1 / d
	h := d
	for m := 1; m <= maxIter; m++ {
		m2 := 2 * m
		aa := float64(m) * (b - float64(m)) * x / ((qam + float64(m2)) * (a + float64(m2)))
		d = 1 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		h *= d * c
		aa = -(a + float64(m)) * (qab + float64(m)) * x / ((a + float64(m2)) * (qap + float64(m2)))
		d = 1 + aa*d
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = 1 + aa/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < eps {
			break
		}
	}
	return h
}

// studentTPValue returns the two-sided p-value for a t statistic with df
// degrees of freedom: P(|T| >= |t|).
func studentTPValue(t float64, df int) float64 {
	if df <= 0 {
		return math.NaN()
	}
	n := float64(df)
	x := n / (n + t*t)
	return regIncBeta(n/2, 0.5, x)
}

// fPValue returns the upper-tail p-value P(F >= f) for an F statistic with
// (df1, df2) degrees of freedom.
func fPValue(f float64, df1, df2 int) float64 {
	if df1 <= 0 || df2 <= 0 || f < 0 {
		return math.NaN()
	}
	d1, d2 := float64(df1), float64(df2)
	x := d2 / (d2 + d1*f)
	return regIncBeta(d2/2, d1/2, x)
}
