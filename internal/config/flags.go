package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// ParamFlags binds the protocol parameters to fs, starting from the
// defaults. Call Params after fs.Parse.
type ParamFlags struct {
	p     Params
	sigma int
}

func BindParams(fs *flag.FlagSet) *ParamFlags {
	f := &ParamFlags{p: DefaultParams()}
	fs.IntVar(&f.p.OutputBits, "output-bits", f.p.OutputBits, "log2 of the number of bins")
	fs.IntVar(&f.p.NumberOfHashes, "hashes", f.p.NumberOfHashes, "number of Cuckoo hash functions")
	fs.IntVar(&f.p.BinCapacity, "bin-capacity", f.p.BinCapacity, "simple hash bin capacity B")
	fs.IntVar(&f.p.Alpha, "alpha", f.p.Alpha, "minibins per bin")
	fs.IntVar(&f.p.Ell, "ell", f.p.Ell, "window parameter (base 2^ell)")
	fs.Uint64Var(&f.p.PlainModulus, "plain-modulus", f.p.PlainModulus, "BFV plaintext modulus")
	fs.IntVar(&f.p.PolyModulusDegree, "poly-degree", f.p.PolyModulusDegree, "BFV ring degree N")
	fs.IntVar(&f.p.HEDepth, "depth", f.p.HEDepth, "multiplicative depth; the BFV ring degree caps it")
	fs.IntVar(&f.sigma, "sigma", 0, "PRF output bits (0 derives it from the modulus)")
	fs.Func("seeds", "comma-separated hash seeds", func(s string) error {
		seeds, err := ParseSeeds(s)
		if err != nil {
			return err
		}
		f.p.HashSeeds = seeds
		return nil
	})
	return f
}

// Params returns the validated parameter set.
func (f *ParamFlags) Params() (Params, error) {
	p := f.p
	p.HashSeeds = append([]uint32(nil), p.HashSeeds...)
	p.SigmaMax = f.sigma
	if p.SigmaMax == 0 {
		p.SigmaMax = DefaultSigmaMax(p.PlainModulus, p.OutputBits, p.NumberOfHashes)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func ParseSeeds(s string) ([]uint32, error) {
	var seeds []uint32
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid hash seed %q: %w", field, err)
		}
		seeds = append(seeds, uint32(v))
	}
	return seeds, nil
}

// BindFlags lets command line flags override the values c was loaded with.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Network.Address, "addr", c.Network.Address, "protocol address")
	fs.DurationVar(&c.Network.IOTimeout, "io-timeout", c.Network.IOTimeout, "per-message read/write timeout")
	fs.IntVar(&c.Network.MaxFrame, "max-frame", c.Network.MaxFrame, "largest accepted message in bytes")
	fs.DurationVar(&c.Network.DialTimeout, "dial-timeout", c.Network.DialTimeout, "connect timeout")
	fs.StringVar(&c.Database.Driver, "db-driver", c.Database.Driver, "checkpoint database driver (sqlite3 or postgres)")
	fs.StringVar(&c.Database.DSN, "db", c.Database.DSN, "checkpoint database DSN, empty disables checkpoints")
	fs.StringVar(&c.PSI.Scheme, "scheme", c.PSI.Scheme, "homomorphic scheme (bfv or clear)")
	fs.IntVar(&c.PSI.MaxWorkers, "workers", c.PSI.MaxWorkers, "worker goroutines (0 = all cores)")
	fs.IntVar(&c.PSI.SecurityBits, "security-bits", c.PSI.SecurityBits, "bin overflow security level checked before the offline phase (0 skips)")
	fs.StringVar(&c.Admin.Address, "admin", c.Admin.Address, "admin API address, empty disables it")
	fs.StringVar(&c.Admin.JWTSecret, "jwt-secret", c.Admin.JWTSecret, "HS256 secret for admin API tokens, empty disables auth")
}
