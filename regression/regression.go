// Package regression fits ordinary least-squares polynomials, used to model depth bias as a
// function of distance.
package regression

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/volumescan/utils"
)

// MaxConditionNumber is the largest design-matrix condition number accepted before the system
// is considered near-singular.
const MaxConditionNumber = 1e10

// Fit is a fitted polynomial.
type Fit struct {
	// Coefficients are in ascending order of power: c0 + c1*x + c2*x^2 ...
	Coefficients []float64 `json:"coefficients"`
	// MSE is the mean squared residual over the fitted samples.
	MSE float64 `json:"mse"`
}

// Degree returns the polynomial degree.
func (f Fit) Degree() int {
	return len(f.Coefficients) - 1
}

// Evaluate returns the polynomial's value at x.
func (f Fit) Evaluate(x float64) float64 {
	return Evaluate(f.Coefficients, x)
}

// Evaluate evaluates a polynomial with ascending coefficients at x. An empty polynomial is 0.
func Evaluate(coefficients []float64, x float64) float64 {
	var y float64
	for i := len(coefficients) - 1; i >= 0; i-- {
		y = y*x + coefficients[i]
	}
	return y
}

// Linear fits y = a + b*x.
func Linear(x, y []float64) (Fit, bool) {
	return Polynomial(x, y, 1)
}

// Polynomial fits a polynomial of the given degree. It reports false, with no fit, when there are
// fewer than degree+1 samples, any input is non-finite, the design matrix is near-singular, or
// the result is non-finite.
func Polynomial(x, y []float64, degree int) (Fit, bool) {
	n := len(x)
	if degree < 0 || n != len(y) || n < degree+1 || n == 0 {
		return Fit{}, false
	}
	if !utils.AllFinite(x) || !utils.AllFinite(y) {
		return Fit{}, false
	}

	cols := degree + 1
	design := mat.NewDense(n, cols, nil)
	for i, xi := range x {
		v := 1.0
		for j := 0; j < cols; j++ {
			design.Set(i, j, v)
			v *= xi
		}
	}
	if cond := mat.Cond(design, 2); !utils.IsFinite(cond) || cond > MaxConditionNumber {
		return Fit{}, false
	}

	var coef mat.VecDense
	if err := coef.SolveVec(design, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return Fit{}, false
	}
	coefficients := mat.Col(nil, 0, &coef)
	if !utils.AllFinite(coefficients) {
		return Fit{}, false
	}

	var predicted mat.VecDense
	predicted.MulVec(design, &coef)
	residuals := mat.Col(nil, 0, &predicted)
	floats.Sub(residuals, y)
	mse := floats.Dot(residuals, residuals) / float64(n)
	if !utils.IsFinite(mse) {
		return Fit{}, false
	}
	return Fit{Coefficients: coefficients, MSE: mse}, true
}
