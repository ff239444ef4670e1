// Package psi runs the two-party intersection protocol. The server encodes
// its set as root polynomials over simple-hash bins; the client places its
// PRF outputs in a Cuckoo table, sends encrypted windowed powers of every
// slot, and learns which slots zero one of the server polynomials.
//
// A run is two round trips on one connection: the OPRF exchange, then the
// encrypted query and its answer.
package psi

import (
	"context"
	"math/rand/v2"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/he"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/window"
	"github.com/SanthoshCheemala/PolyPSI/internal/jobs"
	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/SanthoshCheemala/PolyPSI/internal/storage"
	"github.com/SanthoshCheemala/PolyPSI/internal/transport"
	"github.com/SanthoshCheemala/PolyPSI/internal/wire"
)

type options struct {
	workers      int
	store        *storage.Store
	rng          *rand.Rand
	securityBits int
	schemes      []string
}

// Option configures a Server or Client.
type Option func(*options)

// WithWorkers bounds the goroutines used for per-element work. Zero uses
// every core.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithStore checkpoints offline artifacts in s.
func WithStore(s *storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRand sets the source of Cuckoo index choices.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithSecurityBits makes the server refuse sets whose simple-hash overflow
// probability exceeds 2^-bits. Zero disables the check.
func WithSecurityBits(bits int) Option {
	return func(o *options) { o.securityBits = bits }
}

// WithSchemes lists the encryption schemes a server accepts from clients.
// The default is BFV only.
func WithSchemes(schemes ...string) Option {
	return func(o *options) { o.schemes = schemes }
}

func newOptions(opts []Option) options {
	o := options{schemes: []string{he.SchemeBFV}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// queryShape is the message layout implied by p.
func queryShape(p config.Params) wire.Shape {
	w := window.New(p)
	return wire.Shape{
		Batches: p.NumberOfBatches(),
		Rows:    w.Base - 1,
		Places:  w.Places,
		Alpha:   p.Alpha,
		Defined: w.Defined,
	}
}

// checkContext verifies that a peer's encryption context fits p.
func checkContext(p config.Params, pub he.PublicContext) error {
	switch {
	case pub.PlainModulus() != p.PlainModulus:
		return psierr.InputValidation("context plain modulus %d, want %d", pub.PlainModulus(), p.PlainModulus)
	case pub.Slots() != p.PolyModulusDegree:
		return psierr.InputValidation("context has %d slots, want %d", pub.Slots(), p.PolyModulusDegree)
	case pub.Depth() < p.RequiredDepth():
		return psierr.Configuration("context depth %d below the %d needed", pub.Depth(), p.RequiredDepth())
	}
	return nil
}

// track returns run, or a detached run when the caller does not observe
// progress.
func track(run *jobs.Run, role jobs.Role) *jobs.Run {
	if run != nil {
		return run
	}
	return jobs.NewRun("local", role)
}

// closeOnDone unblocks conn when ctx ends.
func closeOnDone(ctx context.Context, conn *transport.Conn) func() bool {
	return context.AfterFunc(ctx, func() { conn.Close() })
}
