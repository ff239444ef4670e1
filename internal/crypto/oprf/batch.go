package oprf

import (
	"context"
	"fmt"
	"math/big"

	"github.com/SanthoshCheemala/PolyPSI/internal/pool"
)

// EvaluateAll runs Evaluate over a set, keeping input order.
func (k *Key) EvaluateAll(ctx context.Context, workers int, t Truncator, set []uint64) ([]uint64, error) {
	out, err := pool.Map(ctx, workers, set, func(x uint64) (uint64, error) {
		return k.Evaluate(t, new(big.Int).SetUint64(x))
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate prf: %w", err)
	}
	return out, nil
}

// BlindAll runs Blind over a set, keeping input order.
func (k *Key) BlindAll(ctx context.Context, workers int, set []uint64) ([]BlindedPoint, error) {
	out, err := pool.Map(ctx, workers, set, func(x uint64) (BlindedPoint, error) {
		return k.Blind(new(big.Int).SetUint64(x))
	})
	if err != nil {
		return nil, fmt.Errorf("blind set: %w", err)
	}
	return out, nil
}

// ApplyAll runs Apply over received points, keeping input order.
func (k *Key) ApplyAll(ctx context.Context, workers int, points []BlindedPoint) ([]BlindedPoint, error) {
	out, err := pool.Map(ctx, workers, points, k.Apply)
	if err != nil {
		return nil, fmt.Errorf("apply key: %w", err)
	}
	return out, nil
}

// UnblindAll runs Unblind over returned points, keeping input order.
func (k *Key) UnblindAll(ctx context.Context, workers int, t Truncator, points []BlindedPoint) ([]uint64, error) {
	out, err := pool.Map(ctx, workers, points, func(b BlindedPoint) (uint64, error) {
		return k.Unblind(t, b)
	})
	if err != nil {
		return nil, fmt.Errorf("unblind points: %w", err)
	}
	return out, nil
}
