package poly

// CoeffsFromRoots returns the coefficients of the monic polynomial
// prod (X - r) mod q, lowest degree first. The result has len(roots)+1
// entries and its last entry is 1.
func CoeffsFromRoots(f Field, roots []uint64) []uint64 {
	coeffs := make([]uint64, 1, len(roots)+1)
	coeffs[0] = 1
	for _, r := range roots {
		negR := f.Neg(f.Reduce(r))
		coeffs = append(coeffs, 0)
		for k := len(coeffs) - 1; k > 0; k-- {
			coeffs[k] = f.Add(coeffs[k-1], f.Mul(negR, coeffs[k]))
		}
		coeffs[0] = f.Mul(negR, coeffs[0])
	}
	return coeffs
}

// Evaluate computes sum coeffs[k]·x^k mod q.
func Evaluate(f Field, coeffs []uint64, x uint64) uint64 {
	x = f.Reduce(x)
	var acc uint64
	for k := len(coeffs) - 1; k >= 0; k-- {
		acc = f.Add(f.Mul(acc, x), coeffs[k])
	}
	return acc
}
