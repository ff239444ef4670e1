package oprf

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) (server, client *Key) {
	t.Helper()
	server, err := NewKey(rand.Reader)
	require.NoError(t, err)
	client, err = NewKey(rand.Reader)
	require.NoError(t, err)
	return server, client
}

func TestCommutativeAgreement(t *testing.T) {
	p := config.DefaultParams()
	tr := NewTruncator(p)
	server, client := testKeys(t)

	for _, x := range []int64{1, 2, 12345, 1 << 40, 1<<62 + 17} {
		want, err := server.Evaluate(tr, big.NewInt(x))
		require.NoError(t, err)
		require.Less(t, want, uint64(1)<<p.SigmaMax)

		blinded, err := client.Blind(big.NewInt(x))
		require.NoError(t, err)
		raised, err := server.Apply(blinded)
		require.NoError(t, err)
		got, err := client.Unblind(tr, raised)
		require.NoError(t, err)
		assert.Equal(t, want, got, "x=%d", x)
	}
}

func TestDistinctElementsDiffer(t *testing.T) {
	tr := NewTruncator(config.DefaultParams())
	server, _ := testKeys(t)
	a, err := server.Evaluate(tr, big.NewInt(1000))
	require.NoError(t, err)
	b, err := server.Evaluate(tr, big.NewInt(1001))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKeyFromBig(t *testing.T) {
	tr := NewTruncator(config.DefaultParams())
	k1, err := KeyFromBig(big.NewInt(1234567891011121314))
	require.NoError(t, err)
	k2, err := KeyFromBig(new(big.Int).Add(Order(), big.NewInt(1234567891011121314)))
	require.NoError(t, err)

	a, err := k1.Evaluate(tr, big.NewInt(99))
	require.NoError(t, err)
	b, err := k2.Evaluate(tr, big.NewInt(99))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = KeyFromBig(Order())
	assert.True(t, errors.Is(err, psierr.ErrInputValidation))
}

func TestKeyIsRedacted(t *testing.T) {
	k, err := KeyFromBig(big.NewInt(424242))
	require.NoError(t, err)
	assert.NotContains(t, fmt.Sprint(k), "424242")
}

func TestRejectsInvalidElements(t *testing.T) {
	tr := NewTruncator(config.DefaultParams())
	server, _ := testKeys(t)
	for _, x := range []*big.Int{big.NewInt(0), big.NewInt(-3), Order(), new(big.Int).Lsh(big.NewInt(1), 300)} {
		_, err := server.Evaluate(tr, x)
		assert.True(t, errors.Is(err, psierr.ErrInputValidation), "x=%s", x)
		_, err = server.Blind(x)
		assert.True(t, errors.Is(err, psierr.ErrInputValidation), "x=%s", x)
	}
}

func TestRejectsInvalidPoints(t *testing.T) {
	server, _ := testKeys(t)

	_, err := server.Apply(BlindedPoint{})
	assert.True(t, errors.Is(err, psierr.ErrInputValidation))

	good, err := server.Blind(big.NewInt(7))
	require.NoError(t, err)
	bad := good
	bad.Y[31] ^= 1
	_, err = server.Apply(bad)
	assert.True(t, errors.Is(err, psierr.ErrInputValidation))

	var overflow BlindedPoint
	for i := range overflow.X {
		overflow.X[i] = 0xff
	}
	_, err = server.Apply(overflow)
	assert.True(t, errors.Is(err, psierr.ErrInputValidation))
}

func TestBatchTransformsKeepOrder(t *testing.T) {
	tr := NewTruncator(config.DefaultParams())
	server, client := testKeys(t)
	ctx := context.Background()

	set := make([]uint64, 37)
	for i := range set {
		set[i] = uint64(i*7919 + 3)
	}

	direct, err := server.EvaluateAll(ctx, 4, tr, set)
	require.NoError(t, err)

	blinded, err := client.BlindAll(ctx, 4, set)
	require.NoError(t, err)
	raised, err := server.ApplyAll(ctx, 3, blinded)
	require.NoError(t, err)
	unblinded, err := client.UnblindAll(ctx, 5, tr, raised)
	require.NoError(t, err)

	assert.Equal(t, direct, unblinded)

	_, err = server.EvaluateAll(ctx, 4, tr, []uint64{5, 0, 6})
	assert.True(t, errors.Is(err, psierr.ErrInputValidation))
}

func TestBatchCoversFullUint64Range(t *testing.T) {
	tr := NewTruncator(config.DefaultParams())
	server, client := testKeys(t)
	ctx := context.Background()

	// every nonzero uint64 lies below the group order
	set := []uint64{1, 1<<63 - 1, 1 << 63, ^uint64(0)}
	direct, err := server.EvaluateAll(ctx, 2, tr, set)
	require.NoError(t, err)
	for i, x := range set {
		want, err := server.Evaluate(tr, new(big.Int).SetUint64(x))
		require.NoError(t, err)
		assert.Equal(t, want, direct[i], "x=%d", x)
	}

	blinded, err := client.BlindAll(ctx, 2, set)
	require.NoError(t, err)
	raised, err := server.ApplyAll(ctx, 2, blinded)
	require.NoError(t, err)
	unblinded, err := client.UnblindAll(ctx, 2, tr, raised)
	require.NoError(t, err)
	assert.Equal(t, direct, unblinded)
}
