package sphere

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurface(t *testing.T) {
	g, err := Surface(5)
	require.NoError(t, err)
	assert.Len(t, g.Beta, 10)
	assert.Len(t, g.Alpha, 10)
	assert.Len(t, g.CellBeta, 9)
	assert.Len(t, g.CellAlpha, 9)
	assert.InDelta(t, 0, g.Beta[0], 1e-12)
	assert.InDelta(t, math.Pi, g.Beta[9], 1e-12)
	assert.InDelta(t, 2*math.Pi, g.Alpha[9], 1e-12)

	for i := range g.X {
		for j := range g.X[i] {
			r := math.Sqrt(g.X[i][j]*g.X[i][j] + g.Y[i][j]*g.Y[i][j] + g.Z[i][j]*g.Z[i][j])
			assert.InDelta(t, 1, r, 1e-12)
		}
	}

	_, err = Surface(0)
	assert.Error(t, err)
}

func TestCell(t *testing.T) {
	g, err := Surface(4)
	require.NoError(t, err)

	i, j := g.Cell(g.CellAlpha[3], g.CellBeta[5])
	assert.Equal(t, 5, i)
	assert.Equal(t, 3, j)

	i, j = g.Cell(-1, 10)
	assert.Equal(t, len(g.CellBeta)-1, i)
	assert.Equal(t, 0, j)
}

func TestHarmonicSignal(t *testing.T) {
	// degree 0 only
	f := HarmonicSignal([]float64{2}, LinearBasis)
	assert.InDelta(t, 1/math.Sqrt(math.Pi), f(0.3, 1.2), 1e-12)

	// z component of degree 1, plus a dangling coefficient that is ignored
	f = HarmonicSignal([]float64{0, 0, 1, 0, 7}, LinearBasis)
	c := math.Sqrt(3 / (4 * math.Pi))
	assert.InDelta(t, c, f(0, 0), 1e-12)
	assert.InDelta(t, -c, f(1, math.Pi), 1e-12)
	assert.InDelta(t, 0, f(2, math.Pi/2), 1e-12)

	// degrees the basis does not provide stop the sum
	f = HarmonicSignal([]float64{0, 0, 0, 0, 1, 1, 1, 1, 1}, LinearBasis)
	assert.Equal(t, 0.0, f(0.5, 0.5))
}

func TestUsed(t *testing.T) {
	assert.Equal(t, 0, Used(nil, LinearBasis))
	assert.Equal(t, 1, Used([]float64{1, 2}, LinearBasis))
	assert.Equal(t, 4, Used([]float64{1, 2, 3, 4}, LinearBasis))
	assert.Equal(t, 4, Used([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, LinearBasis))
}

func TestNormalize(t *testing.T) {
	f := [][]float64{{-2, 0}, {1, 2}}
	Normalize(f)
	assert.Equal(t, [][]float64{{0, 0.5}, {0.75, 1}}, f)

	z := [][]float64{{0, 0}}
	Normalize(z)
	assert.Equal(t, [][]float64{{0.5, 0.5}}, z)
}

func TestBWR(t *testing.T) {
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, BWR(0))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, BWR(0.5))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, BWR(1))
	assert.Equal(t, BWR(1), BWR(3))
}

func TestRender(t *testing.T) {
	img, err := Render(HarmonicSignal([]float64{0, 0, 1, 0}, LinearBasis), 6, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	// The view looks down +z, where the signal peaks.
	center := img.RGBAAt(50, 50)
	assert.GreaterOrEqual(t, center.R, uint8(250))
	assert.Less(t, center.B, uint8(64))

	corner := img.RGBAAt(0, 0)
	assert.GreaterOrEqual(t, corner.R, uint8(250))
	assert.GreaterOrEqual(t, corner.G, uint8(250))
	assert.GreaterOrEqual(t, corner.B, uint8(250))

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, img))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	_, err = Render(HarmonicSignal(nil, LinearBasis), 6, 0)
	assert.Error(t, err)
}
