package psi

import (
	"context"
	"crypto/rand"
	"slices"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/crypto/oprf"
	"github.com/SanthoshCheemala/PolyPSI/internal/transport"
	"golang.org/x/sync/errgroup"
)

// RunLocal runs both parties in process over an in-memory pipe with fresh
// random keys.
func RunLocal(ctx context.Context, p config.Params, scheme string, serverSet, clientSet []uint64, opts ...Option) (*Result, error) {
	serverKey, err := oprf.NewKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	clientKey, err := oprf.NewKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	server, err := NewServer(p, serverKey, append(slices.Clone(opts), WithSchemes(scheme))...)
	if err != nil {
		return nil, err
	}
	client, err := NewClient(p, clientKey, scheme, opts...)
	if err != nil {
		return nil, err
	}
	if err := server.Offline(ctx, serverSet, nil); err != nil {
		return nil, err
	}
	if err := client.Offline(ctx, clientSet, nil); err != nil {
		return nil, err
	}

	sc, cc := transport.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sc.Close()
		return server.Serve(gctx, sc, nil)
	})
	var res *Result
	g.Go(func() error {
		defer cc.Close()
		var err error
		res, err = client.Run(gctx, cc, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
