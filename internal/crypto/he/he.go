// Package he is the homomorphic encryption layer used by the query round.
// A SecretContext belongs to the client; its Public half is shipped to the
// server, which can encrypt, add and multiply but not decrypt.
package he

import (
	"fmt"
	"sort"
	"sync"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/fxamacker/cbor/v2"
)

// Ciphertext is a backend-specific encrypted vector.
type Ciphertext any

// PublicContext evaluates on ciphertexts of one scheme instance. Vectors
// hold one value per slot, modulo PlainModulus.
type PublicContext interface {
	Scheme() string
	PlainModulus() uint64
	Slots() int
	// Depth is the number of sequential ciphertext products supported.
	Depth() int

	Encrypt(values []uint64) (Ciphertext, error)
	Add(a, b Ciphertext) (Ciphertext, error)
	AddPlain(a Ciphertext, values []uint64) (Ciphertext, error)
	MulPlain(a Ciphertext, values []uint64) (Ciphertext, error)
	Mul(a, b Ciphertext) (Ciphertext, error)

	MarshalCiphertext(c Ciphertext) ([]byte, error)
	UnmarshalCiphertext(data []byte) (Ciphertext, error)
	// MarshalBinary encodes the context without any secret material.
	MarshalBinary() ([]byte, error)
}

// SecretContext adds decryption.
type SecretContext interface {
	PublicContext
	Public() PublicContext
	Decrypt(c Ciphertext) ([]uint64, error)
}

// envelope is the serialized form of a public context.
type envelope struct {
	Scheme       string `cbor:"1,keyasint"`
	LogN         int    `cbor:"2,keyasint"`
	PlainModulus uint64 `cbor:"3,keyasint"`
	Depth        int    `cbor:"4,keyasint"`
	PublicKey    []byte `cbor:"5,keyasint,omitempty"`
	RelinKey     []byte `cbor:"6,keyasint,omitempty"`
}

type (
	newFunc       func(p config.Params) (SecretContext, error)
	unmarshalFunc func(env envelope) (PublicContext, error)
)

type backend struct {
	create    newFunc
	unmarshal unmarshalFunc
}

var (
	mu       sync.RWMutex
	backends = map[string]backend{}
)

func register(scheme string, create newFunc, unmarshal unmarshalFunc) {
	mu.Lock()
	defer mu.Unlock()
	backends[scheme] = backend{create: create, unmarshal: unmarshal}
}

// Schemes lists the registered backends.
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a fresh key set for scheme under p.
func New(scheme string, p config.Params) (SecretContext, error) {
	mu.RLock()
	b, ok := backends[scheme]
	mu.RUnlock()
	if !ok {
		return nil, psierr.Configuration("unknown encryption scheme %q", scheme)
	}
	return b.create(p)
}

// UnmarshalPublic decodes a context produced by PublicContext.MarshalBinary.
func UnmarshalPublic(data []byte) (PublicContext, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, psierr.InputValidation("decode encryption context: %v", err)
	}
	mu.RLock()
	b, ok := backends[env.Scheme]
	mu.RUnlock()
	if !ok {
		return nil, psierr.InputValidation("unknown encryption scheme %q", env.Scheme)
	}
	return b.unmarshal(env)
}

// checkSlots validates a plaintext vector for a context with n slots.
func checkSlots(values []uint64, n int, exact bool) error {
	if len(values) > n || (exact && len(values) != n) {
		return fmt.Errorf("vector of %d values for %d slots", len(values), n)
	}
	return nil
}
