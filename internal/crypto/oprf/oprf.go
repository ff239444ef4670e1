// Package oprf implements the commutative masking used to agree on PRF
// outputs: F_k(x) = truncate(x·k·G) over secp256k1. The server evaluates
// F_ks on its own set directly. The client blinds x·kc·G, the server
// raises it to ks, and the client removes kc by multiplying with its
// inverse modulo the group order before truncating.
package oprf

import (
	"fmt"
	"io"
	"math/big"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/cronokirby/saferith"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	curveOrder = secp256k1.S256().N
	order      = saferith.ModulusFromNat(new(saferith.Nat).SetBig(curveOrder, 256))
)

// Order returns the order of the group.
func Order() *big.Int { return new(big.Int).Set(curveOrder) }

// Key is a party's secret scalar in [1, n).
type Key struct {
	s   secp256k1.ModNScalar
	inv secp256k1.ModNScalar
}

// NewKey draws a uniform key from rand.
func NewKey(rand io.Reader) (*Key, error) {
	buf := make([]byte, 32)
	for {
		if _, err := io.ReadFull(rand, buf); err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		var s secp256k1.ModNScalar
		if overflow := s.SetByteSlice(buf); overflow || s.IsZero() {
			continue
		}
		return newKey(buf), nil
	}
}

// KeyFromBig builds a key from k mod n.
func KeyFromBig(k *big.Int) (*Key, error) {
	r := new(big.Int).Mod(k, curveOrder)
	if r.Sign() == 0 {
		return nil, psierr.InputValidation("key is zero modulo the group order")
	}
	return newKey(r.FillBytes(make([]byte, 32))), nil
}

func newKey(b []byte) *Key {
	k := new(Key)
	k.s.SetByteSlice(b)
	nat := new(saferith.Nat).SetBytes(b)
	inv := new(saferith.Nat).ModInverse(nat, order)
	k.inv.SetByteSlice(inv.FillBytes(make([]byte, 32)))
	return k
}

func (k *Key) String() string { return "oprf.Key(redacted)" }

// BlindedPoint is an affine group element in big-endian coordinates.
type BlindedPoint struct {
	X [32]byte `cbor:"1,keyasint"`
	Y [32]byte `cbor:"2,keyasint"`
}

func toBlinded(p *secp256k1.JacobianPoint) BlindedPoint {
	p.ToAffine()
	return BlindedPoint{X: *p.X.Bytes(), Y: *p.Y.Bytes()}
}

func (b BlindedPoint) jacobian() (secp256k1.JacobianPoint, error) {
	var x, y secp256k1.FieldVal
	var p secp256k1.JacobianPoint
	if x.SetByteSlice(b.X[:]) || y.SetByteSlice(b.Y[:]) {
		return p, psierr.InputValidation("point coordinate exceeds the field prime")
	}
	pub := secp256k1.NewPublicKey(&x, &y)
	if !pub.IsOnCurve() {
		return p, psierr.InputValidation("point is not on the curve")
	}
	pub.AsJacobian(&p)
	return p, nil
}

// Scalar validates x as a set element and returns it as a scalar.
// Zero is rejected because it maps to the identity.
func Scalar(x *big.Int) (secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	if x.Sign() <= 0 || x.Cmp(curveOrder) >= 0 {
		return s, psierr.InputValidation("element outside [1, n)")
	}
	s.SetByteSlice(x.FillBytes(make([]byte, 32)))
	return s, nil
}

// Truncator extracts PRF outputs from x-coordinates.
type Truncator struct {
	shift uint
	mask  *big.Int
}

func NewTruncator(p config.Params) Truncator {
	mask := new(big.Int).Lsh(big.NewInt(1), uint(p.SigmaMax))
	mask.Sub(mask, big.NewInt(1))
	return Truncator{shift: uint(p.PRFShift()), mask: mask}
}

// Truncate returns (X >> shift) & (2^sigma_max - 1).
func (t Truncator) Truncate(x *[32]byte) uint64 {
	v := new(big.Int).SetBytes(x[:])
	v.Rsh(v, t.shift)
	v.And(v, t.mask)
	return v.Uint64()
}

// Evaluate computes F_k(x) directly.
func (k *Key) Evaluate(t Truncator, x *big.Int) (uint64, error) {
	s, err := Scalar(x)
	if err != nil {
		return 0, err
	}
	s.Mul(&k.s)
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &r)
	r.ToAffine()
	return t.Truncate(r.X.Bytes()), nil
}

// Blind computes x·k·G without truncating.
func (k *Key) Blind(x *big.Int) (BlindedPoint, error) {
	s, err := Scalar(x)
	if err != nil {
		return BlindedPoint{}, err
	}
	s.Mul(&k.s)
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &r)
	return toBlinded(&r), nil
}

// Apply multiplies a peer's point by k.
func (k *Key) Apply(b BlindedPoint) (BlindedPoint, error) {
	p, err := b.jacobian()
	if err != nil {
		return BlindedPoint{}, err
	}
	var r secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&k.s, &p, &r)
	return toBlinded(&r), nil
}

// Unblind removes k from a point returned by the peer and truncates.
func (k *Key) Unblind(t Truncator, b BlindedPoint) (uint64, error) {
	p, err := b.jacobian()
	if err != nil {
		return 0, err
	}
	var r secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&k.inv, &p, &r)
	r.ToAffine()
	return t.Truncate(r.X.Bytes()), nil
}
