package he

import (
	"fmt"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/poly"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/fxamacker/cbor/v2"
)

// SchemeClear keeps slot values in the clear. It offers no privacy at all
// and exists to exercise the protocol quickly in tests and benchmarks. It
// enforces the same depth limit a real scheme would.
const SchemeClear = "clear"

func init() {
	register(SchemeClear, newClear, unmarshalClear)
}

type clearCiphertext struct {
	Values []uint64 `cbor:"1,keyasint"`
	Level  int      `cbor:"2,keyasint"`
}

type clearContext struct {
	f     poly.Field
	slots int
	depth int
}

func newClear(p config.Params) (SecretContext, error) {
	n := p.PolyModulusDegree
	if n <= 0 || n&(n-1) != 0 || p.PlainModulus < 2 {
		return nil, psierr.Configuration("invalid clear context %d/%d", p.PolyModulusDegree, p.PlainModulus)
	}
	return &clearContext{f: poly.NewField(p.PlainModulus), slots: p.PolyModulusDegree, depth: p.HEDepth}, nil
}

func unmarshalClear(env envelope) (PublicContext, error) {
	if env.LogN <= 0 || env.LogN > 20 || env.PlainModulus < 2 {
		return nil, psierr.InputValidation("invalid clear context")
	}
	return &clearContext{f: poly.NewField(env.PlainModulus), slots: 1 << env.LogN, depth: env.Depth}, nil
}

func (c *clearContext) Scheme() string        { return SchemeClear }
func (c *clearContext) PlainModulus() uint64  { return c.f.Modulus() }
func (c *clearContext) Slots() int            { return c.slots }
func (c *clearContext) Depth() int            { return c.depth }
func (c *clearContext) Public() PublicContext { return c }

func (c *clearContext) ciphertext(v Ciphertext) (*clearCiphertext, error) {
	ct, ok := v.(*clearCiphertext)
	if !ok || ct == nil || len(ct.Values) != c.slots {
		return nil, fmt.Errorf("not a clear ciphertext: %T", v)
	}
	return ct, nil
}

func (c *clearContext) Encrypt(values []uint64) (Ciphertext, error) {
	if err := checkSlots(values, c.slots, false); err != nil {
		return nil, err
	}
	out := make([]uint64, c.slots)
	for i, v := range values {
		out[i] = c.f.Reduce(v)
	}
	return &clearCiphertext{Values: out}, nil
}

func (c *clearContext) binary(a, b Ciphertext, op func(x, y uint64) uint64) (*clearCiphertext, *clearCiphertext, []uint64, error) {
	x, err := c.ciphertext(a)
	if err != nil {
		return nil, nil, nil, err
	}
	y, err := c.ciphertext(b)
	if err != nil {
		return nil, nil, nil, err
	}
	out := make([]uint64, c.slots)
	for i := range out {
		out[i] = op(x.Values[i], y.Values[i])
	}
	return x, y, out, nil
}

func (c *clearContext) Add(a, b Ciphertext) (Ciphertext, error) {
	x, y, out, err := c.binary(a, b, c.f.Add)
	if err != nil {
		return nil, err
	}
	return &clearCiphertext{Values: out, Level: max(x.Level, y.Level)}, nil
}

func (c *clearContext) Mul(a, b Ciphertext) (Ciphertext, error) {
	x, y, out, err := c.binary(a, b, c.f.Mul)
	if err != nil {
		return nil, err
	}
	level := max(x.Level, y.Level) + 1
	if level > c.depth {
		return nil, psierr.Configuration("product needs depth %d, scheme supports %d", level, c.depth)
	}
	return &clearCiphertext{Values: out, Level: level}, nil
}

func (c *clearContext) plainOp(a Ciphertext, values []uint64, op func(x, y uint64) uint64) (Ciphertext, error) {
	x, err := c.ciphertext(a)
	if err != nil {
		return nil, err
	}
	if err := checkSlots(values, c.slots, true); err != nil {
		return nil, err
	}
	out := make([]uint64, c.slots)
	for i := range out {
		out[i] = op(x.Values[i], c.f.Reduce(values[i]))
	}
	return &clearCiphertext{Values: out, Level: x.Level}, nil
}

func (c *clearContext) AddPlain(a Ciphertext, values []uint64) (Ciphertext, error) {
	return c.plainOp(a, values, c.f.Add)
}

func (c *clearContext) MulPlain(a Ciphertext, values []uint64) (Ciphertext, error) {
	return c.plainOp(a, values, c.f.Mul)
}

func (c *clearContext) MarshalCiphertext(v Ciphertext) ([]byte, error) {
	ct, err := c.ciphertext(v)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(ct)
}

func (c *clearContext) UnmarshalCiphertext(data []byte) (Ciphertext, error) {
	ct := new(clearCiphertext)
	if err := cbor.Unmarshal(data, ct); err != nil {
		return nil, psierr.InputValidation("decode clear ciphertext: %v", err)
	}
	if len(ct.Values) != c.slots {
		return nil, psierr.InputValidation("clear ciphertext has %d slots, want %d", len(ct.Values), c.slots)
	}
	return ct, nil
}

func (c *clearContext) MarshalBinary() ([]byte, error) {
	logN := 0
	for 1<<logN < c.slots {
		logN++
	}
	return cbor.Marshal(envelope{
		Scheme:       SchemeClear,
		LogN:         logN,
		PlainModulus: c.f.Modulus(),
		Depth:        c.depth,
	})
}

func (c *clearContext) Decrypt(v Ciphertext) ([]uint64, error) {
	ct, err := c.ciphertext(v)
	if err != nil {
		return nil, err
	}
	return append([]uint64(nil), ct.Values...), nil
}
