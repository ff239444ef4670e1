package config

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Params is the protocol parameter record. A Params value is built once and
// passed by value to every component; nothing mutates it after Validate.
type Params struct {
	OutputBits        int      `cbor:"1,keyasint"`
	NumberOfHashes    int      `cbor:"2,keyasint"`
	BinCapacity       int      `cbor:"3,keyasint"`
	Alpha             int      `cbor:"4,keyasint"`
	Ell               int      `cbor:"5,keyasint"`
	PlainModulus      uint64   `cbor:"6,keyasint"`
	PolyModulusDegree int      `cbor:"7,keyasint"`
	SigmaMax          int      `cbor:"8,keyasint"`
	HashSeeds         []uint32 `cbor:"9,keyasint"`
	// HEDepth is the number of sequential ciphertext products the
	// encryption scheme can absorb.
	HEDepth int `cbor:"10,keyasint"`
}

// GroupBits is the bit length of the field prime of the OPRF group.
const GroupBits = 256

// DefaultParams returns the reference parameter set: 2^13 bins, three
// hashes, bins of 72 split into 8 minibins of 9 and a 30-bit plaintext
// modulus. A window base of 4 keeps every power of a minibin within one
// ciphertext product.
func DefaultParams() Params {
	p := Params{
		OutputBits:        13,
		NumberOfHashes:    3,
		BinCapacity:       72,
		Alpha:             8,
		Ell:               2,
		PlainModulus:      536903681,
		PolyModulusDegree: 8192,
		HashSeeds:         []uint32{123456789, 860126732, 2051028223},
		HEDepth:           1,
	}
	p.SigmaMax = DefaultSigmaMax(p.PlainModulus, p.OutputBits, p.NumberOfHashes)
	return p
}

// DefaultSigmaMax sizes PRF outputs so that a packed Cuckoo entry is one
// bit wider than the plaintext modulus allows for real values, leaving
// room for the dummies.
func DefaultSigmaMax(plainModulus uint64, outputBits, numberOfHashes int) int {
	return log2Floor(plainModulus) + outputBits - logNoHashes(numberOfHashes)
}

func log2Floor(v uint64) int {
	return bits.Len64(v) - 1
}

func logNoHashes(numberOfHashes int) int {
	return log2Floor(uint64(numberOfHashes)) + 1
}

// NumberOfBins is the width of both bucket tables.
func (p Params) NumberOfBins() int { return 1 << p.OutputBits }

// LogNoHashes is the number of bits reserved for the hash index in a packed
// table entry.
func (p Params) LogNoHashes() int { return logNoHashes(p.NumberOfHashes) }

func (p Params) MinibinCapacity() int { return p.BinCapacity / p.Alpha }

func (p Params) Base() int { return 1 << p.Ell }

// LogBEll is the number of digit places needed to write any exponent up to
// the minibin capacity in base 2^ell.
func (p Params) LogBEll() int {
	return int(math.Log2(float64(p.MinibinCapacity()))/float64(p.Ell)) + 1
}

func (p Params) NumberOfBatches() int { return p.NumberOfBins() / p.PolyModulusDegree }

// DummyClient pads empty Cuckoo slots. It is one past the largest packed
// value a PRF output can produce.
func (p Params) DummyClient() uint64 {
	return 1 << uint(p.SigmaMax-p.OutputBits+p.LogNoHashes())
}

// DummyServer pads simple-hash bins and differs from DummyClient.
func (p Params) DummyServer() uint64 { return p.DummyClient() + 1 }

// PRFShift is the right shift applied to an x-coordinate before masking it
// down to SigmaMax bits.
func (p Params) PRFShift() int { return GroupBits - p.SigmaMax - 10 }

// RequiredDepth is the multiplicative depth of the deepest power
// reconstruction.
func (p Params) RequiredDepth() int {
	return bits.Len(uint(p.LogBEll() - 1))
}

// Validate reports every structural problem with p as an ErrConfiguration.
func (p Params) Validate() error {
	switch {
	case p.OutputBits <= 0 || p.OutputBits > 24:
		return psierr.Configuration("output_bits %d out of range", p.OutputBits)
	case p.NumberOfHashes < 2:
		return psierr.Configuration("need at least 2 hash functions, got %d", p.NumberOfHashes)
	case len(p.HashSeeds) != p.NumberOfHashes:
		return psierr.Configuration("%d hash seeds for %d hash functions", len(p.HashSeeds), p.NumberOfHashes)
	case p.Alpha <= 0 || p.BinCapacity <= 0 || p.BinCapacity%p.Alpha != 0:
		return psierr.Configuration("alpha %d does not divide bin capacity %d", p.Alpha, p.BinCapacity)
	case p.Ell <= 0:
		return psierr.Configuration("ell must be positive, got %d", p.Ell)
	case p.PolyModulusDegree <= 0 || p.NumberOfBins()%p.PolyModulusDegree != 0:
		return psierr.Configuration("%d bins cannot be split into batches of %d slots", p.NumberOfBins(), p.PolyModulusDegree)
	case p.SigmaMax <= p.OutputBits || p.SigmaMax+10 > GroupBits:
		return psierr.Configuration("sigma_max %d out of range", p.SigmaMax)
	case p.PlainModulus < 3:
		return psierr.Configuration("plain modulus %d too small", p.PlainModulus)
	}
	seen := make(map[uint32]bool, len(p.HashSeeds))
	for _, s := range p.HashSeeds {
		if seen[s] {
			return psierr.Configuration("duplicate hash seed %d", s)
		}
		seen[s] = true
	}
	if p.DummyServer() >= p.PlainModulus {
		return psierr.Configuration("packed values up to %d do not fit plain modulus %d", p.DummyServer(), p.PlainModulus)
	}
	if p.RequiredDepth() > p.HEDepth {
		return psierr.Configuration("reconstructing %d digit places needs depth %d, scheme supports %d",
			p.LogBEll(), p.RequiredDepth(), p.HEDepth)
	}
	return nil
}

// Fingerprint identifies a parameter set. Persisted artifacts carry it so a
// table built for one set is never loaded under another.
func (p Params) Fingerprint() string {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	data, err := enc.Marshal(p)
	if err != nil {
		panic(err)
	}
	h := blake3.New()
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}

func (p Params) String() string {
	return fmt.Sprintf("bins=2^%d hashes=%d B=%d alpha=%d ell=%d t=%d N=%d sigma=%d depth=%d",
		p.OutputBits, p.NumberOfHashes, p.BinCapacity, p.Alpha, p.Ell,
		p.PlainModulus, p.PolyModulusDegree, p.SigmaMax, p.HEDepth)
}
