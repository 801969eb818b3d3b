package sphere

import "math"

// Func is a scalar signal on the sphere.
type Func func(alpha, beta float64) float64

// Basis returns the 2l+1 real spherical harmonics of degree l at (alpha, beta).
// A basis that does not support degree l returns fewer values.
type Basis func(l int, alpha, beta float64) []float64

// HarmonicSignal sums coefficient blocks of size 2l+1 for l = 0, 1, ... while
// coeff still holds a complete block the basis supports. Coefficients past
// that point are ignored; see Used.
func HarmonicSignal(coeff []float64, basis Basis) Func {
	n := Used(coeff, basis)
	return func(alpha, beta float64) float64 {
		var s float64
		for l, i := 0, 0; i < n; l++ {
			y := basis(l, alpha, beta)
			for k := range 2*l + 1 {
				s += coeff[i+k] * y[k]
			}
			i += 2*l + 1
		}
		return s
	}
}

// Used returns how many leading coefficients HarmonicSignal consumes: whole
// degree blocks, stopping at an incomplete block or the first degree the
// basis does not provide.
func Used(coeff []float64, basis Basis) int {
	i := 0
	for l := 0; ; l++ {
		d := 2*l + 1
		if len(coeff) < i+d || len(basis(l, 0, 0)) < d {
			return i
		}
		i += d
	}
}

// LinearBasis provides the orthonormal real harmonics of degree 0 and 1,
// ordered (y, z, x) for l = 1. Higher degrees are not supported.
func LinearBasis(l int, alpha, beta float64) []float64 {
	switch l {
	case 0:
		return []float64{0.5 / math.Sqrt(math.Pi)}
	case 1:
		c := math.Sqrt(3 / (4 * math.Pi))
		sb, cb := math.Sincos(beta)
		sa, ca := math.Sincos(alpha)
		return []float64{c * sb * sa, c * cb, c * sb * ca}
	default:
		return nil
	}
}
