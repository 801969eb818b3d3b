package nn

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRs(t *testing.T) {
	cases := []struct {
		in   string
		want Rs
	}{
		{"3x1,4x3,1x5", Rs{{3, 1}, {4, 3}, {1, 5}}},
		{" 2X1 , 1x3 ", Rs{{2, 1}, {1, 3}}},
		{"0x1,2x3,4x0", Rs{{2, 3}}},
		{"", nil},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRs(tc.in)
			require.NoError(t, err)
			if len(tc.want) == 0 {
				assert.Empty(t, got)
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseRs(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestParseRsErrors(t *testing.T) {
	for _, in := range []string{"3", "ax1", "3x", "-1x3", "2x-1"} {
		_, err := ParseRs(in)
		assert.ErrorIs(t, err, ErrInvalidRs, in)
	}
}

func TestRsCounts(t *testing.T) {
	rs := NewRs(Irrep{3, 1}, Irrep{4, 3}, Irrep{1, 5}, Irrep{2, 1})
	assert.Equal(t, 3+12+5+2, rs.Width())
	assert.Equal(t, 3+4+1+2, rs.NumMul())
	assert.Equal(t, 5, rs.NumScalarMul())
	assert.Equal(t, "3x1,4x3,1x5,2x1", rs.String())

	back, err := ParseRs(rs.String())
	require.NoError(t, err)
	assert.Equal(t, rs, back)
}

func TestDegreesRs(t *testing.T) {
	ds, err := ParseDegrees("4x0,2x1,1x2,0x3")
	require.NoError(t, err)
	assert.Equal(t, "4x0,2x1,1x2,0x3", ds.String())
	assert.Equal(t, Rs{{4, 1}, {2, 3}, {1, 5}}, ds.Rs())

	_, err = ParseDegrees("1x-1")
	assert.ErrorIs(t, err, ErrInvalidRs)
}
