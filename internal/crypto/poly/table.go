package poly

import (
	"context"
	"fmt"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/pool"
)

// Table holds one row per server bin. A row is Alpha minibin polynomials of
// MinibinCapacity+1 coefficients each, lowest degree first, stored
// minibin after minibin.
type Table struct {
	Bins     int
	Alpha    int
	Capacity int
	Coeffs   []uint64
}

// RowLen is the number of coefficients in one bin row.
func (t *Table) RowLen() int { return t.Alpha * (t.Capacity + 1) }

func (t *Table) Row(bin int) []uint64 {
	n := t.RowLen()
	return t.Coeffs[bin*n : (bin+1)*n]
}

// Minibin returns the coefficients of minibin j of bin.
func (t *Table) Minibin(bin, j int) []uint64 {
	n := t.Capacity + 1
	return t.Row(bin)[j*n : (j+1)*n]
}

// Column gathers coefficient k of minibin j for every bin in
// [start, start+width), one value per batch slot.
func (t *Table) Column(j, k, start, width int) []uint64 {
	col := make([]uint64, width)
	off := j*(t.Capacity+1) + k
	n := t.RowLen()
	for i := range col {
		col[i] = t.Coeffs[(start+i)*n+off]
	}
	return col
}

// BuildTable turns padded simple-hash bins into the coefficient table.
// Every bin must hold exactly BinCapacity entries.
func BuildTable(ctx context.Context, p config.Params, bins [][]uint64, workers int) (*Table, error) {
	if len(bins) != p.NumberOfBins() {
		return nil, fmt.Errorf("got %d bins, want %d", len(bins), p.NumberOfBins())
	}
	f := NewField(p.PlainModulus)
	t := &Table{
		Bins:     len(bins),
		Alpha:    p.Alpha,
		Capacity: p.MinibinCapacity(),
	}
	t.Coeffs = make([]uint64, t.Bins*t.RowLen())

	err := pool.Each(ctx, workers, len(bins), func(b int) error {
		if len(bins[b]) != p.BinCapacity {
			return fmt.Errorf("bin %d holds %d entries, want %d", b, len(bins[b]), p.BinCapacity)
		}
		for j := 0; j < t.Alpha; j++ {
			roots := bins[b][j*t.Capacity : (j+1)*t.Capacity]
			copy(t.Minibin(b, j), CoeffsFromRoots(f, roots))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build polynomial table: %w", err)
	}
	return t, nil
}
