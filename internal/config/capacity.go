package config

import (
	"math"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
)

// DefaultSecurityBits bounds the probability that any simple-hash bin
// overflows by 2^-30.
const DefaultSecurityBits = 30

// EstimateBinCapacity returns the smallest bin capacity B such that, with
// numberOfHashes·serverSize balls thrown into 2^outputBits bins,
// bins·P(load > B) <= 2^-securityBits.
func EstimateBinCapacity(serverSize, numberOfHashes, outputBits, securityBits int) int {
	m := float64(int(1) << outputBits)
	d := numberOfHashes * serverSize
	if d == 0 {
		return 0
	}
	limit := -float64(securityBits) - math.Log2(m)
	for k := d / int(m); k < d; k++ {
		if log2Tail(d, 1/m, k) <= limit {
			return k
		}
	}
	return d
}

// log2Tail returns log2 P(X > k) for X ~ Binomial(d, p).
func log2Tail(d int, p float64, k int) float64 {
	lgD, _ := math.Lgamma(float64(d + 1))
	lq := math.Log1p(-p)
	lp := math.Log(p)
	logPMF := func(i int) float64 {
		a, _ := math.Lgamma(float64(i + 1))
		b, _ := math.Lgamma(float64(d - i + 1))
		return lgD - a - b + float64(i)*lp + float64(d-i)*lq
	}

	top := logPMF(k + 1)
	sum := 0.0
	for i := k + 1; i <= d; i++ {
		v := logPMF(i) - top
		if v < -50 {
			break
		}
		sum += math.Exp(v)
	}
	return (top + math.Log(sum)) / math.Ln2
}

// CheckServerLoad fails when a server set of serverSize elements is likely
// to overflow a bin under p.
func (p Params) CheckServerLoad(serverSize, securityBits int) error {
	need := EstimateBinCapacity(serverSize, p.NumberOfHashes, p.OutputBits, securityBits)
	if need > p.BinCapacity {
		return psierr.Configuration("%d server elements need bin capacity %d for 2^-%d overflow probability, have %d",
			serverSize, need, securityBits, p.BinCapacity)
	}
	return nil
}
