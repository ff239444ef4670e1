package poly

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModulus = 536903681

func TestFieldArithmetic(t *testing.T) {
	f := NewField(testModulus)
	a, b := uint64(testModulus-5), uint64(17)
	assert.Equal(t, uint64(12), f.Add(a, b))
	assert.Equal(t, uint64(testModulus-22), f.Sub(a, b))
	assert.Equal(t, (a*b)%testModulus, f.Mul(a, b))
	assert.Equal(t, uint64(0), f.Neg(0))
	assert.Equal(t, uint64(1), f.Pow(12345, 0))
	assert.Equal(t, f.Mul(f.Mul(3, 3), 3), f.Pow(3, 3))
}

func TestCoeffsFromRootsSmall(t *testing.T) {
	f := NewField(97)
	// (X - 2)(X - 3) = X^2 - 5X + 6
	assert.Equal(t, []uint64{6, 92, 1}, CoeffsFromRoots(f, []uint64{2, 3}))
	assert.Equal(t, []uint64{1}, CoeffsFromRoots(f, nil))
}

func TestRootPolynomialLaw(t *testing.T) {
	f := NewField(testModulus)
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 50; trial++ {
		roots := make([]uint64, 8)
		for i := range roots {
			roots[i] = rng.Uint64N(testModulus)
		}
		coeffs := CoeffsFromRoots(f, roots)
		require.Len(t, coeffs, 9)
		assert.Equal(t, uint64(1), coeffs[8])
		for _, r := range roots {
			assert.Zero(t, Evaluate(f, coeffs, r))
		}
	}
}

func TestNonRootIsNonZero(t *testing.T) {
	f := NewField(testModulus)
	coeffs := CoeffsFromRoots(f, []uint64{10, 20, 30})
	assert.NotZero(t, Evaluate(f, coeffs, 11))
}

func TestBuildTable(t *testing.T) {
	p := config.DefaultParams()
	p.OutputBits = 4
	p.PolyModulusDegree = 16
	rng := rand.New(rand.NewPCG(3, 4))

	bins := make([][]uint64, p.NumberOfBins())
	for b := range bins {
		bins[b] = make([]uint64, p.BinCapacity)
		for i := range bins[b] {
			bins[b][i] = rng.Uint64N(1 << 29)
		}
	}

	table, err := BuildTable(context.Background(), p, bins, 3)
	require.NoError(t, err)
	require.Equal(t, 16*8*10, len(table.Coeffs))

	f := NewField(p.PlainModulus)
	for b := range bins {
		for j := 0; j < p.Alpha; j++ {
			mb := table.Minibin(b, j)
			assert.Equal(t, uint64(1), mb[p.MinibinCapacity()])
			for _, r := range bins[b][j*9 : (j+1)*9] {
				assert.Zero(t, Evaluate(f, mb, r))
			}
		}
	}

	col := table.Column(2, 9, 4, 4)
	assert.Equal(t, []uint64{1, 1, 1, 1}, col)
	assert.Equal(t, table.Minibin(5, 3)[2], table.Column(3, 2, 0, 16)[5])
}

func TestBuildTableRejectsShortBin(t *testing.T) {
	p := config.DefaultParams()
	p.OutputBits = 4
	p.PolyModulusDegree = 16
	bins := make([][]uint64, p.NumberOfBins())
	for b := range bins {
		bins[b] = make([]uint64, p.BinCapacity)
	}
	bins[7] = bins[7][:3]
	_, err := BuildTable(context.Background(), p, bins, 2)
	assert.Error(t, err)
}
