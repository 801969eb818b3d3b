// Package sphere evaluates and renders scalar signals on the unit sphere, such
// as the output of one representation block read as spherical-harmonic
// coefficients.
//
// Angles follow the ZYZ convention of the networks: beta is the polar angle
// from +z and alpha the azimuth from +x.
package sphere

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// poleMargin keeps beta off the poles where the azimuth is undefined.
const poleMargin = 1e-16

// Grid is a 2n x 2n latitude-longitude mesh of the unit sphere.
type Grid struct {
	// Node angles.
	Beta  []float64 // 2n values in [margin, pi-margin]
	Alpha []float64 // 2n values in [0, 2pi]

	// Cartesian node coordinates, indexed [beta][alpha].
	X, Y, Z [][]float64

	// Cell-center angles, (2n-1) values each. A cell [i][j] spans
	// Beta[i]..Beta[i+1] and Alpha[j]..Alpha[j+1].
	CellBeta  []float64
	CellAlpha []float64
}

// Surface builds the mesh with resolution n.
func Surface(n int) (*Grid, error) {
	if n < 1 {
		return nil, fmt.Errorf("sphere surface: resolution %d must be positive", n)
	}
	size := 2 * n
	g := &Grid{
		Beta:  floats.Span(make([]float64, size), poleMargin, math.Pi-poleMargin),
		Alpha: floats.Span(make([]float64, size), 0, 2*math.Pi),
		X:     make([][]float64, size),
		Y:     make([][]float64, size),
		Z:     make([][]float64, size),
	}
	for i, b := range g.Beta {
		g.X[i] = make([]float64, size)
		g.Y[i] = make([]float64, size)
		g.Z[i] = make([]float64, size)
		sb, cb := math.Sincos(b)
		for j, a := range g.Alpha {
			sa, ca := math.Sincos(a)
			g.X[i][j] = sb * ca
			g.Y[i][j] = sb * sa
			g.Z[i][j] = cb
		}
	}
	g.CellBeta = midpoints(g.Beta)
	g.CellAlpha = midpoints(g.Alpha)
	return g, nil
}

// Cell returns the indices of the cell containing (alpha, beta), clamped to the mesh.
func (g *Grid) Cell(alpha, beta float64) (i, j int) {
	return locate(g.Beta, beta), locate(g.Alpha, alpha)
}

func midpoints(v []float64) []float64 {
	out := make([]float64, len(v)-1)
	for i := range out {
		out[i] = 0.5 * (v[i] + v[i+1])
	}
	return out
}

// locate finds the interval of the uniform grid v containing x.
func locate(v []float64, x float64) int {
	step := (v[len(v)-1] - v[0]) / float64(len(v)-1)
	i := int(math.Floor((x - v[0]) / step))
	return max(0, min(i, len(v)-2))
}
