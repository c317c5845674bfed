package host

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrTooFewPoints is returned when fewer than 3 points are fitted.
var ErrTooFewPoints = errors.New("at least 3 points required")

// Circle is a circle in the complex impedance plane.
type Circle struct {
	X, Y, R float64
}

// FitCircle fits a circle through the points with linear least squares on
//
//	x² + y² = a·x + b·y + c
//
// The center is (a/2, b/2) and the radius sqrt(c + X² + Y²).
func FitCircle(points []complex64) (Circle, error) {
	if len(points) < 3 {
		return Circle{}, ErrTooFewPoints
	}
	m := mat.NewDense(len(points), 3, nil)
	rhs := mat.NewVecDense(len(points), nil)
	for n, p := range points {
		x, y := float64(real(p)), float64(imag(p))
		m.SetRow(n, []float64{x, y, 1})
		rhs.SetVec(n, x*x+y*y)
	}
	var z mat.VecDense
	if err := z.SolveVec(m, rhs); err != nil {
		return Circle{}, err
	}
	c := Circle{X: z.AtVec(0) / 2, Y: z.AtVec(1) / 2}
	c.R = math.Sqrt(z.AtVec(2) + c.X*c.X + c.Y*c.Y)
	if math.IsNaN(c.R) || math.IsInf(c.R, 0) {
		return Circle{}, mat.ErrSingular
	}
	return c, nil
}

// Arc samples the lower half of the circle from angle 0 to -π, which is
// where capacitive impedances lie.
func (c Circle) Arc(n int) []complex128 {
	if n < 2 {
		n = 2
	}
	pts := make([]complex128, n)
	for i := range pts {
		a := -math.Pi * float64(i) / float64(n-1)
		pts[i] = complex(c.X+c.R*math.Cos(a), c.Y+c.R*math.Sin(a))
	}
	return pts
}
