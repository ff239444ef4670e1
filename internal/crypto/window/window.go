// Package window evaluates high powers of a value with a small
// multiplicative depth. The client sends y^((i+1)·base^j) for every digit
// value and place, and the server rebuilds any other power up to the
// minibin capacity by multiplying one window entry per nonzero digit along
// a balanced tree.
package window

import (
	"fmt"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/poly"
)

// Int2Base writes n in the given base, least significant digit first.
func Int2Base(n, base int) []int {
	if n < base {
		return []int{n}
	}
	return append([]int{n % base}, Int2Base(n/base, base)...)
}

// Windowing describes the shape of a window matrix: Base-1 rows (digit
// values 1..Base-1) by Places columns (digit places).
type Windowing struct {
	Base   int
	Places int
	// Bound is the highest power the server must be able to rebuild.
	Bound int
}

func New(p config.Params) Windowing {
	return Windowing{Base: p.Base(), Places: p.LogBEll(), Bound: p.MinibinCapacity()}
}

// Exponent is the power of y stored at row i, place j.
func (w Windowing) Exponent(i, j int) int {
	e := i + 1
	for ; j > 0; j-- {
		e *= w.Base
	}
	return e
}

// Defined reports whether row i, place j carries a power.
func (w Windowing) Defined(i, j int) bool {
	return w.Exponent(i, j)-1 < w.Bound
}

// Window computes the plaintext window of y modulo the field. Absent
// entries are left at zero; check Defined before reading one.
func (w Windowing) Window(f poly.Field, y uint64) [][]uint64 {
	m := make([][]uint64, w.Base-1)
	for i := range m {
		m[i] = make([]uint64, w.Places)
		for j := range m[i] {
			if w.Defined(i, j) {
				m[i][j] = f.Pow(y, w.Exponent(i, j))
			}
		}
	}
	return m
}

// Multiply returns the product of factors computed along a balanced tree:
// adjacent pairs are multiplied and an unpaired last factor is carried to
// the next level. The returned depth is the number of levels, which is
// ceil(log2(len(factors))).
func Multiply[T any](factors []T, mul func(a, b T) (T, error)) (T, int, error) {
	var zero T
	if len(factors) == 0 {
		return zero, 0, fmt.Errorf("multiply: no factors")
	}
	level := factors
	depth := 0
	for len(level) > 1 {
		next := make([]T, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			v, err := mul(level[i], level[i+1])
			if err != nil {
				return zero, depth, err
			}
			next = append(next, v)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
		depth++
	}
	return level[0], depth, nil
}

// Reconstruct rebuilds y^e from a window of y using one window entry per
// nonzero base digit of e. It also reports the multiplicative depth used.
func Reconstruct[T any](w Windowing, window [][]T, e int, mul func(a, b T) (T, error)) (T, int, error) {
	var zero T
	if e < 1 || e > w.Bound {
		return zero, 0, fmt.Errorf("exponent %d outside [1, %d]", e, w.Bound)
	}
	var factors []T
	for j, x := range Int2Base(e, w.Base) {
		if x == 0 {
			continue
		}
		if j >= w.Places || !w.Defined(x-1, j) {
			return zero, 0, fmt.Errorf("exponent %d needs absent window entry (%d, %d)", e, x-1, j)
		}
		factors = append(factors, window[x-1][j])
	}
	return Multiply(factors, mul)
}

// AllPowers returns y^1..y^Bound indexed from 0, taking each power from the
// window when present and rebuilding it otherwise, together with the
// largest depth any rebuilt power needed.
func AllPowers[T any](w Windowing, window [][]T, mul func(a, b T) (T, error)) ([]T, int, error) {
	powers := make([]T, w.Bound)
	present := make([]bool, w.Bound)
	for i := 0; i < w.Base-1; i++ {
		for j := 0; j < w.Places; j++ {
			if w.Defined(i, j) {
				e := w.Exponent(i, j)
				powers[e-1] = window[i][j]
				present[e-1] = true
			}
		}
	}
	maxDepth := 0
	for k := range powers {
		if present[k] {
			continue
		}
		v, d, err := Reconstruct(w, window, k+1, mul)
		if err != nil {
			return nil, 0, err
		}
		powers[k] = v
		maxDepth = max(maxDepth, d)
	}
	return powers, maxDepth, nil
}
