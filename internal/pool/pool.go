// Package pool runs per-element transforms over a fixed number of workers.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Chunks splits n elements into contiguous [start, end) ranges: workers
// ranges of n/workers elements each, plus one trailing range holding the
// remainder when n is not a multiple of workers.
func Chunks(n, workers int) [][2]int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if n == 0 {
		return nil
	}
	size := n / workers
	if size == 0 {
		return [][2]int{{0, n}}
	}
	chunks := make([][2]int, 0, workers+1)
	for start := 0; start+size <= n && len(chunks) < workers; start += size {
		chunks = append(chunks, [2]int{start, start + size})
	}
	if last := chunks[len(chunks)-1][1]; last < n {
		chunks = append(chunks, [2]int{last, n})
	}
	return chunks
}

// Map applies fn to every element of in. Each chunk is processed by its own
// goroutine and writes only its own index range of the output, so out[i]
// always corresponds to in[i]. The first error cancels the remaining work.
func Map[In, Out any](ctx context.Context, workers int, in []In, fn func(In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(in))
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range Chunks(len(in), workers) {
		start, end := c[0], c[1]
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i&0xff == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				v, err := fn(in[i])
				if err != nil {
					return err
				}
				out[i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Each runs fn for every index in [0, n) across the workers.
func Each(ctx context.Context, workers, n int, fn func(i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range Chunks(n, workers) {
		start, end := c[0], c[1]
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
