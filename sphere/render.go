package sphere

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
)

// Background fills pixels outside the sphere.
var Background = color.RGBA{255, 255, 255, 255}

// Evaluate samples fun at every cell center, indexed [beta][alpha].
func (g *Grid) Evaluate(fun Func) [][]float64 {
	out := make([][]float64, len(g.CellBeta))
	for i, b := range g.CellBeta {
		out[i] = make([]float64, len(g.CellAlpha))
		for j, a := range g.CellAlpha {
			out[i][j] = fun(a, b)
		}
	}
	return out
}

// Normalize maps values into [0, 1] as 0.5 + 0.5*f/max|f|, in place.
// An all-zero signal maps to 0.5.
func Normalize(f [][]float64) {
	var peak float64
	for _, row := range f {
		for _, v := range row {
			peak = math.Max(peak, math.Abs(v))
		}
	}
	for _, row := range f {
		for j, v := range row {
			if peak == 0 {
				row[j] = 0.5
			} else {
				row[j] = 0.5 + 0.5*v/peak
			}
		}
	}
}

// BWR is the diverging blue-white-red colormap on [0, 1].
func BWR(t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	if t < 0.5 {
		c := uint8(math.Round(255 * 2 * t))
		return color.RGBA{c, c, 255, 255}
	}
	c := uint8(math.Round(255 * 2 * (1 - t)))
	return color.RGBA{255, c, c, 255}
}

// Render draws fun on the sphere seen from above the north pole, one flat
// color per mesh cell, into a size x size image.
func Render(fun Func, n, size int) (*image.RGBA, error) {
	if size < 1 {
		return nil, fmt.Errorf("sphere render: image size %d must be positive", size)
	}
	g, err := Surface(n)
	if err != nil {
		return nil, err
	}
	values := g.Evaluate(fun)
	Normalize(values)

	// Rasterize at a working resolution of a few pixels per cell, then resample.
	work := max(64, 8*len(g.CellBeta))
	src := image.NewRGBA(image.Rect(0, 0, work, work))
	half := float64(work) / 2
	for py := 0; py < work; py++ {
		for px := 0; px < work; px++ {
			x := (float64(px) + 0.5 - half) / half
			y := (half - float64(py) - 0.5) / half
			r2 := x*x + y*y
			if r2 > 1 {
				src.SetRGBA(px, py, Background)
				continue
			}
			beta := math.Acos(math.Sqrt(1 - r2))
			alpha := math.Atan2(y, x)
			if alpha < 0 {
				alpha += 2 * math.Pi
			}
			i, j := g.Cell(alpha, beta)
			src.SetRGBA(px, py, BWR(values[i][j]))
		}
	}

	if size == work {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
