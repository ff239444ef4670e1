package oprf

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zeebo/blake3"
)

// KeyFromBytes builds a key from a 32-byte big-endian scalar.
func KeyFromBytes(b []byte) (*Key, error) {
	if len(b) != 32 {
		return nil, psierr.InputValidation("key must be 32 bytes, got %d", len(b))
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(b); overflow || s.IsZero() {
		return nil, psierr.InputValidation("key outside [1, n)")
	}
	return newKey(b), nil
}

// Bytes returns the scalar in big-endian form. Only key files use it.
func (k *Key) Bytes() []byte {
	b := k.s.Bytes()
	return b[:]
}

// ID identifies the key without revealing it: a digest of k·G. Offline
// artifacts record it so that a table is never used under another key.
func (k *Key) ID() string {
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k.s, &r)
	r.ToAffine()
	pub := secp256k1.NewPublicKey(&r.X, &r.Y)
	sum := blake3.Sum256(pub.SerializeCompressed())
	return hex.EncodeToString(sum[:8])
}

// LoadOrCreateKey reads a hex key from path, creating the file with a
// fresh key from rand when it does not exist.
func LoadOrCreateKey(path string, rand io.Reader) (*Key, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		b, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, psierr.InputValidation("key file %s: %v", path, err)
		}
		return KeyFromBytes(b)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	k, err := NewKey(rand)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(k.Bytes())+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return k, nil
}
