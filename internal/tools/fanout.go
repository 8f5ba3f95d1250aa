package tools

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut runs independent reads concurrently and returns the first
// error. The context passed to each function is cancelled as soon as any
// of them fails.
func fanOut(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
