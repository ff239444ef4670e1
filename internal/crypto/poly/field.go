// Package poly implements root polynomials over the plaintext modulus and
// the per-bin coefficient table the server evaluates queries against.
package poly

import (
	"github.com/tuneinsight/lattigo/v3/ring"
)

// Field is arithmetic modulo a word-sized prime using Barrett reduction.
type Field struct {
	q    uint64
	bred []uint64
}

func NewField(q uint64) Field {
	return Field{q: q, bred: ring.BRedParams(q)}
}

func (f Field) Modulus() uint64 { return f.q }

func (f Field) Reduce(x uint64) uint64 { return x % f.q }

func (f Field) Add(a, b uint64) uint64 {
	s := a + b
	if s >= f.q {
		s -= f.q
	}
	return s
}

func (f Field) Sub(a, b uint64) uint64 {
	if a >= b {
		return a - b
	}
	return a + f.q - b
}

func (f Field) Neg(a uint64) uint64 {
	if a == 0 {
		return 0
	}
	return f.q - a
}

func (f Field) Mul(a, b uint64) uint64 {
	return ring.BRed(a, b, f.q, f.bred)
}

// Pow computes a^e by square and multiply.
func (f Field) Pow(a uint64, e int) uint64 {
	r := uint64(1)
	a = f.Reduce(a)
	for ; e > 0; e >>= 1 {
		if e&1 == 1 {
			r = f.Mul(r, a)
		}
		a = f.Mul(a, a)
	}
	return r
}
