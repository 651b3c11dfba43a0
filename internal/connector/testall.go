package connector

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TestAll probes every supplied connector concurrently and returns the first
// failure. A nil error means every backend answered.
func TestAll(ctx context.Context, conns map[string]Connector) error {
	g, ctx := errgroup.WithContext(ctx)
	for key, c := range conns {
		key, c := key, c
		g.Go(func() error {
			if err := c.TestConnection(ctx); err != nil {
				return WrapErr(key, "test", err)
			}
			return nil
		})
	}
	return g.Wait()
}
