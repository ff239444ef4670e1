package he

import (
	"errors"
	"testing"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/poly"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallParams() config.Params {
	p := config.DefaultParams()
	p.OutputBits = 4
	p.PolyModulusDegree = 16
	return p
}

func TestSchemes(t *testing.T) {
	assert.Equal(t, []string{SchemeBFV, SchemeClear}, Schemes())
	_, err := New("paillier", config.DefaultParams())
	assert.True(t, errors.Is(err, psierr.ErrConfiguration))
}

// exercise runs the operations the server performs on a query and checks
// the decrypted result slot by slot.
func exercise(t *testing.T, sk SecretContext) {
	t.Helper()
	n := sk.Slots()
	f := poly.NewField(sk.PlainModulus())

	x := make([]uint64, n)
	y := make([]uint64, n)
	c := make([]uint64, n)
	for i := range x {
		x[i] = uint64(i*i + 3)
		y[i] = uint64(7*i + 1)
		c[i] = uint64(i + 11)
	}

	blob, err := sk.Public().MarshalBinary()
	require.NoError(t, err)
	pub, err := UnmarshalPublic(blob)
	require.NoError(t, err)
	assert.Equal(t, sk.Scheme(), pub.Scheme())
	assert.Equal(t, sk.PlainModulus(), pub.PlainModulus())
	assert.Equal(t, n, pub.Slots())

	cx, err := sk.Encrypt(x)
	require.NoError(t, err)
	data, err := sk.MarshalCiphertext(cx)
	require.NoError(t, err)
	cx, err = pub.UnmarshalCiphertext(data)
	require.NoError(t, err)
	cy, err := pub.Encrypt(y)
	require.NoError(t, err)

	prod, err := pub.Mul(cx, cy)
	require.NoError(t, err)
	scaled, err := pub.MulPlain(prod, c)
	require.NoError(t, err)
	sum, err := pub.Add(scaled, cy)
	require.NoError(t, err)
	sum, err = pub.AddPlain(sum, c)
	require.NoError(t, err)

	data, err = pub.MarshalCiphertext(sum)
	require.NoError(t, err)
	back, err := sk.UnmarshalCiphertext(data)
	require.NoError(t, err)
	got, err := sk.Decrypt(back)
	require.NoError(t, err)
	require.Len(t, got, n)
	for i := range got {
		want := f.Add(f.Add(f.Mul(f.Mul(x[i], y[i]), c[i]), y[i]), c[i])
		require.Equal(t, want, got[i], "slot %d", i)
	}
}

func TestClearBackend(t *testing.T) {
	sk, err := New(SchemeClear, smallParams())
	require.NoError(t, err)
	exercise(t, sk)
}

func TestClearEnforcesDepth(t *testing.T) {
	p := smallParams()
	p.HEDepth = 1
	sk, err := New(SchemeClear, p)
	require.NoError(t, err)

	a, err := sk.Encrypt([]uint64{2})
	require.NoError(t, err)
	b, err := sk.Mul(a, a)
	require.NoError(t, err)
	_, err = sk.Mul(b, a)
	assert.True(t, errors.Is(err, psierr.ErrConfiguration))

	// plaintext products do not consume depth
	_, err = sk.MulPlain(b, make([]uint64, p.PolyModulusDegree))
	assert.NoError(t, err)
}

func TestClearRejectsBadVectors(t *testing.T) {
	sk, err := New(SchemeClear, smallParams())
	require.NoError(t, err)
	_, err = sk.Encrypt(make([]uint64, 17))
	assert.Error(t, err)

	a, err := sk.Encrypt(nil)
	require.NoError(t, err)
	_, err = sk.AddPlain(a, make([]uint64, 3))
	assert.Error(t, err)
	_, err = sk.UnmarshalCiphertext([]byte{0xff})
	assert.True(t, errors.Is(err, psierr.ErrInputValidation))
	_, err = UnmarshalPublic([]byte("nonsense"))
	assert.True(t, errors.Is(err, psierr.ErrInputValidation))
}

func TestBFVBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("bfv key generation is slow")
	}
	p := config.DefaultParams()
	sk, err := New(SchemeBFV, p)
	require.NoError(t, err)
	assert.Equal(t, 8192, sk.Slots())
	assert.Equal(t, p.PlainModulus, sk.PlainModulus())
	exercise(t, sk)
}

func TestBFVRejectsUnbatchableModulus(t *testing.T) {
	p := config.DefaultParams()
	// 40961 is prime but 40960 is not a multiple of 2·8192
	p.PlainModulus = 40961
	_, err := New(SchemeBFV, p)
	assert.True(t, errors.Is(err, psierr.ErrConfiguration))

	p.PlainModulus = 1<<31 - 1
	_, err = New(SchemeBFV, p)
	assert.True(t, errors.Is(err, psierr.ErrConfiguration))
}

func TestBFVDepthFollowsParameterSet(t *testing.T) {
	p := config.DefaultParams()
	p.HEDepth = 2
	_, err := New(SchemeBFV, p)
	assert.True(t, errors.Is(err, psierr.ErrConfiguration))

	depth, err := bfvDepth(13, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
	depth, err = bfvDepth(14, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
	_, err = bfvDepth(12, 1)
	assert.Error(t, err)
}

func TestBFVRejectsOverstatedEnvelope(t *testing.T) {
	blob, err := cbor.Marshal(envelope{Scheme: SchemeBFV, LogN: 13, PlainModulus: config.DefaultParams().PlainModulus, Depth: 3})
	require.NoError(t, err)
	_, err = UnmarshalPublic(blob)
	assert.True(t, errors.Is(err, psierr.ErrConfiguration))
}

func TestBFVDeepestServerChain(t *testing.T) {
	if testing.Short() {
		t.Skip("bfv key generation is slow")
	}
	p := config.DefaultParams()
	sk, err := New(SchemeBFV, p)
	require.NoError(t, err)
	require.GreaterOrEqual(t, sk.Depth(), p.RequiredDepth())
	f := poly.NewField(p.PlainModulus)

	// x^4 · x^5, then a full-width coefficient, as the minibin evaluation does
	n := sk.Slots()
	x4 := make([]uint64, n)
	x5 := make([]uint64, n)
	coef := make([]uint64, n)
	for i := range x4 {
		v := uint64(i + 2)
		x4[i] = f.Pow(v, 4)
		x5[i] = f.Pow(v, 5)
		coef[i] = p.PlainModulus - 1 - uint64(i)
	}
	a, err := sk.Encrypt(x4)
	require.NoError(t, err)
	b, err := sk.Encrypt(x5)
	require.NoError(t, err)
	prod, err := sk.Mul(a, b)
	require.NoError(t, err)
	prod, err = sk.MulPlain(prod, coef)
	require.NoError(t, err)
	got, err := sk.Decrypt(prod)
	require.NoError(t, err)
	for i := range got {
		require.Equal(t, f.Mul(f.Pow(uint64(i+2), 9), coef[i]), got[i], "slot %d", i)
	}
}
