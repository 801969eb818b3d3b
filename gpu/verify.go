package gpu

import "github.com/chewxy/math32"

// MaxAbsDiff returns the largest elementwise difference between a and b.
// Slices of different length compare as +Inf.
func MaxAbsDiff(a, b []float32) float32 {
	if len(a) != len(b) {
		return math32.Inf(1)
	}
	var d float32
	for i := range a {
		d = math32.Max(d, math32.Abs(a[i]-b[i]))
	}
	return d
}
