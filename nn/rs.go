package nn

import (
	"fmt"
	"strconv"
	"strings"
)

// Irrep is one entry of a representation list: Mul copies of a representation of size Dim.
type Irrep struct {
	Mul int
	Dim int
}

// Width is the number of channels the entry occupies.
func (ir Irrep) Width() int { return ir.Mul * ir.Dim }

// IsScalar reports whether the entry holds rotation-invariant scalars.
func (ir Irrep) IsScalar() bool { return ir.Dim == 1 }

// Rs partitions a channel axis into contiguous blocks, block i being Rs[i].Width() wide.
type Rs []Irrep

// NewRs builds a representation list, dropping entries of zero width.
func NewRs(pairs ...Irrep) Rs {
	rs := make(Rs, 0, len(pairs))
	for _, p := range pairs {
		if p.Mul*p.Dim == 0 {
			continue
		}
		rs = append(rs, p)
	}
	return rs
}

// Validate rejects negative multiplicities or dimensions.
func (rs Rs) Validate() error {
	for i, ir := range rs {
		if ir.Mul < 0 || ir.Dim < 0 {
			return fmt.Errorf("%w: entry %d is %dx%d", ErrInvalidRs, i, ir.Mul, ir.Dim)
		}
	}
	return nil
}

// Width returns the total channel count.
func (rs Rs) Width() int {
	n := 0
	for _, ir := range rs {
		n += ir.Width()
	}
	return n
}

// NumMul returns the total multiplicity, the length of an affine weight vector.
func (rs Rs) NumMul() int {
	n := 0
	for _, ir := range rs {
		n += ir.Mul
	}
	return n
}

// NumScalarMul returns the multiplicity of scalar entries, the length of an affine bias vector.
func (rs Rs) NumScalarMul() int {
	n := 0
	for _, ir := range rs {
		if ir.IsScalar() {
			n += ir.Mul
		}
	}
	return n
}

// String renders the list as "3x1,4x3,1x5".
func (rs Rs) String() string {
	parts := make([]string, len(rs))
	for i, ir := range rs {
		parts[i] = fmt.Sprintf("%dx%d", ir.Mul, ir.Dim)
	}
	return strings.Join(parts, ",")
}

// ParseRs parses the "MULxDIM,..." form produced by Rs.String.
func ParseRs(s string) (Rs, error) {
	pairs, err := parsePairs(s)
	if err != nil {
		return nil, err
	}
	rs := make(Rs, len(pairs))
	for i, p := range pairs {
		rs[i] = Irrep{Mul: p[0], Dim: p[1]}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return NewRs(rs...), nil
}

// Degree is a representation list entry keyed by rotation degree L; its dimension is 2L+1.
type Degree struct {
	Mul int
	L   int
}

// Degrees is a representation list by degree, as consumed by equivariant convolutions.
type Degrees []Degree

// Rs maps every (Mul, L) to (Mul, 2L+1).
func (ds Degrees) Rs() Rs {
	rs := make(Rs, len(ds))
	for i, d := range ds {
		rs[i] = Irrep{Mul: d.Mul, Dim: 2*d.L + 1}
	}
	return NewRs(rs...)
}

func (ds Degrees) String() string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = fmt.Sprintf("%dx%d", d.Mul, d.L)
	}
	return strings.Join(parts, ",")
}

// ParseDegrees parses "MULxL,..." into a degree list.
func ParseDegrees(s string) (Degrees, error) {
	pairs, err := parsePairs(s)
	if err != nil {
		return nil, err
	}
	ds := make(Degrees, len(pairs))
	for i, p := range pairs {
		if p[0] < 0 || p[1] < 0 {
			return nil, fmt.Errorf("%w: entry %d is %dx%d", ErrInvalidRs, i, p[0], p[1])
		}
		ds[i] = Degree{Mul: p[0], L: p[1]}
	}
	return ds, nil
}

func parsePairs(s string) ([][2]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	pairs := make([][2]int, 0, len(fields))
	for _, f := range fields {
		a, b, ok := strings.Cut(strings.ToLower(strings.TrimSpace(f)), "x")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not MULxDIM", ErrInvalidRs, f)
		}
		m, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("%w: multiplicity %q: %v", ErrInvalidRs, a, err)
		}
		d, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			return nil, fmt.Errorf("%w: dimension %q: %v", ErrInvalidRs, b, err)
		}
		pairs = append(pairs, [2]int{m, d})
	}
	return pairs, nil
}
