package he

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/fxamacker/cbor/v2"
	"github.com/tuneinsight/lattigo/v3/bfv"
	"github.com/tuneinsight/lattigo/v3/rlwe"
)

const SchemeBFV = "bfv"

func init() {
	register(SchemeBFV, newBFV, unmarshalBFV)
}

var bfvLiterals = map[int]bfv.ParametersLiteral{
	12: bfv.PN12QP109,
	13: bfv.PN13QP218,
	14: bfv.PN14QP438,
	15: bfv.PN15QP880,
}

// bfvMaxPlainBits bounds the plaintext modulus the depth table holds for.
const bfvMaxPlainBits = 30

// bfvDepths is the number of ciphertext products, followed by one
// plaintext product, each literal evaluates within its noise budget.
var bfvDepths = map[int]int{
	12: 0,
	13: 1,
	14: 2,
	15: 3,
}

// bfvDepth checks a declared depth against what the literal for 2^logN
// slots can evaluate.
func bfvDepth(logN, declared int) (int, error) {
	supported := bfvDepths[logN]
	if declared > supported {
		return 0, psierr.Configuration("depth %d exceeds the %d supported by BFV degree 2^%d", declared, supported, logN)
	}
	return supported, nil
}

// bfvParameters builds the default lattigo parameter set for 2^logN slots
// with the plaintext modulus replaced by t.
func bfvParameters(logN int, t uint64) (params bfv.Parameters, err error) {
	lit, ok := bfvLiterals[logN]
	if !ok {
		return params, psierr.Configuration("no BFV parameter set for degree 2^%d", logN)
	}
	if bits.Len64(t) > bfvMaxPlainBits {
		return params, psierr.Configuration("plain modulus %d wider than %d bits", t, bfvMaxPlainBits)
	}
	if (t-1)%uint64(2<<logN) != 0 {
		return params, psierr.Configuration("plain modulus %d does not support batching for degree 2^%d", t, logN)
	}
	lit.T = t
	defer func() {
		if r := recover(); r != nil {
			err = psierr.Configuration("lattigo rejected parameters: %v", r)
		}
	}()
	params, err = bfv.NewParametersFromLiteral(lit)
	if err != nil {
		return params, psierr.Configuration("bfv parameters: %v", err)
	}
	return params, nil
}

type bfvPublic struct {
	params bfv.Parameters
	depth  int
	pk     *rlwe.PublicKey
	rlk    *rlwe.RelinearizationKey

	mu        sync.Mutex
	encoder   bfv.Encoder
	encryptor bfv.Encryptor
	evals     sync.Pool
}

type bfvSecret struct {
	*bfvPublic
	sk        *rlwe.SecretKey
	decryptor bfv.Decryptor
}

func newBFVPublic(params bfv.Parameters, depth int, pk *rlwe.PublicKey, rlk *rlwe.RelinearizationKey) *bfvPublic {
	c := &bfvPublic{
		params:    params,
		depth:     depth,
		pk:        pk,
		rlk:       rlk,
		encoder:   bfv.NewEncoder(params),
		encryptor: bfv.NewEncryptor(params, pk),
	}
	eval := bfv.NewEvaluator(params, rlwe.EvaluationKey{Rlk: rlk})
	c.evals.New = func() any { return eval.ShallowCopy() }
	return c
}

func newBFV(p config.Params) (SecretContext, error) {
	if p.PolyModulusDegree <= 0 || p.PolyModulusDegree&(p.PolyModulusDegree-1) != 0 {
		return nil, psierr.Configuration("poly modulus degree %d is not a power of two", p.PolyModulusDegree)
	}
	logN := bits.Len(uint(p.PolyModulusDegree)) - 1
	params, err := bfvParameters(logN, p.PlainModulus)
	if err != nil {
		return nil, err
	}
	depth, err := bfvDepth(logN, p.HEDepth)
	if err != nil {
		return nil, err
	}
	kgen := bfv.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPair()
	rlk := kgen.GenRelinearizationKey(sk, 1)
	return &bfvSecret{
		bfvPublic: newBFVPublic(params, depth, pk, rlk),
		sk:        sk,
		decryptor: bfv.NewDecryptor(params, sk),
	}, nil
}

func unmarshalBFV(env envelope) (PublicContext, error) {
	params, err := bfvParameters(env.LogN, env.PlainModulus)
	if err != nil {
		return nil, err
	}
	depth, err := bfvDepth(env.LogN, env.Depth)
	if err != nil {
		return nil, err
	}
	pk := bfv.NewPublicKey(params)
	if err := pk.UnmarshalBinary(env.PublicKey); err != nil {
		return nil, psierr.InputValidation("decode public key: %v", err)
	}
	rlk := bfv.NewRelinearizationKey(params, 1)
	if err := rlk.UnmarshalBinary(env.RelinKey); err != nil {
		return nil, psierr.InputValidation("decode relinearization key: %v", err)
	}
	return newBFVPublic(params, depth, pk, rlk), nil
}

func (c *bfvPublic) Scheme() string       { return SchemeBFV }
func (c *bfvPublic) PlainModulus() uint64 { return c.params.T() }
func (c *bfvPublic) Slots() int           { return c.params.N() }
func (c *bfvPublic) Depth() int           { return c.depth }

func (c *bfvPublic) ciphertext(v Ciphertext) (*bfv.Ciphertext, error) {
	ct, ok := v.(*bfv.Ciphertext)
	if !ok || ct == nil {
		return nil, fmt.Errorf("not a bfv ciphertext: %T", v)
	}
	return ct, nil
}

func (c *bfvPublic) plaintext(values []uint64) (*bfv.Plaintext, error) {
	if err := checkSlots(values, c.Slots(), false); err != nil {
		return nil, err
	}
	full := make([]uint64, c.Slots())
	copy(full, values)
	pt := bfv.NewPlaintext(c.params)
	c.mu.Lock()
	c.encoder.Encode(full, pt)
	c.mu.Unlock()
	return pt, nil
}

func (c *bfvPublic) Encrypt(values []uint64) (Ciphertext, error) {
	pt, err := c.plaintext(values)
	if err != nil {
		return nil, err
	}
	ct := bfv.NewCiphertext(c.params, 1)
	c.mu.Lock()
	c.encryptor.Encrypt(pt, ct)
	c.mu.Unlock()
	return ct, nil
}

func (c *bfvPublic) evaluator() bfv.Evaluator { return c.evals.Get().(bfv.Evaluator) }

func (c *bfvPublic) Add(a, b Ciphertext) (Ciphertext, error) {
	x, err := c.ciphertext(a)
	if err != nil {
		return nil, err
	}
	y, err := c.ciphertext(b)
	if err != nil {
		return nil, err
	}
	eval := c.evaluator()
	defer c.evals.Put(eval)
	return eval.AddNew(x, y), nil
}

func (c *bfvPublic) AddPlain(a Ciphertext, values []uint64) (Ciphertext, error) {
	x, err := c.ciphertext(a)
	if err != nil {
		return nil, err
	}
	if err := checkSlots(values, c.Slots(), true); err != nil {
		return nil, err
	}
	pt, err := c.plaintext(values)
	if err != nil {
		return nil, err
	}
	eval := c.evaluator()
	defer c.evals.Put(eval)
	return eval.AddNew(x, pt), nil
}

func (c *bfvPublic) MulPlain(a Ciphertext, values []uint64) (Ciphertext, error) {
	x, err := c.ciphertext(a)
	if err != nil {
		return nil, err
	}
	if err := checkSlots(values, c.Slots(), true); err != nil {
		return nil, err
	}
	pt := bfv.NewPlaintextMul(c.params)
	c.mu.Lock()
	c.encoder.EncodeMul(values, pt)
	c.mu.Unlock()
	eval := c.evaluator()
	defer c.evals.Put(eval)
	return eval.MulNew(x, pt), nil
}

func (c *bfvPublic) Mul(a, b Ciphertext) (Ciphertext, error) {
	x, err := c.ciphertext(a)
	if err != nil {
		return nil, err
	}
	y, err := c.ciphertext(b)
	if err != nil {
		return nil, err
	}
	eval := c.evaluator()
	defer c.evals.Put(eval)
	prod := eval.MulNew(x, y)
	out := bfv.NewCiphertext(c.params, 1)
	eval.Relinearize(prod, out)
	return out, nil
}

func (c *bfvPublic) MarshalCiphertext(v Ciphertext) ([]byte, error) {
	ct, err := c.ciphertext(v)
	if err != nil {
		return nil, err
	}
	return ct.MarshalBinary()
}

func (c *bfvPublic) UnmarshalCiphertext(data []byte) (Ciphertext, error) {
	ct := bfv.NewCiphertext(c.params, 1)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, psierr.InputValidation("decode bfv ciphertext: %v", err)
	}
	return ct, nil
}

func (c *bfvPublic) MarshalBinary() ([]byte, error) {
	pk, err := c.pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	rlk, err := c.rlk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal relinearization key: %w", err)
	}
	return cbor.Marshal(envelope{
		Scheme:       SchemeBFV,
		LogN:         c.params.LogN(),
		PlainModulus: c.params.T(),
		Depth:        c.depth,
		PublicKey:    pk,
		RelinKey:     rlk,
	})
}

func (s *bfvSecret) Public() PublicContext { return s.bfvPublic }

func (s *bfvSecret) Decrypt(v Ciphertext) ([]uint64, error) {
	ct, err := s.ciphertext(v)
	if err != nil {
		return nil, err
	}
	pt := bfv.NewPlaintext(s.params)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decryptor.Decrypt(ct, pt)
	return s.encoder.DecodeUintNew(pt), nil
}
