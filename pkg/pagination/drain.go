package pagination

import (
	"context"
	"fmt"

	"github.com/Sternrassler/timeseries-pager/pkg/query"
	"golang.org/x/sync/errgroup"
)

// Opener starts a pagination run for a request.
type Opener func(ctx context.Context, req query.Request) *Stream

// Drain consumes s and returns its last emission. Intermediate emissions are
// discarded. The error is the stream's error, if any.
func Drain(s *Stream) (*query.Response, error) {
	var last *query.Response
	for resp := range s.Responses() {
		last = resp
	}
	if err := s.Err(); err != nil {
		return last, err
	}
	return last, nil
}

// DrainAll runs independent pagination runs concurrently, at most limit at a
// time (no limit when limit <= 0), and returns their final emissions in
// request order. The first failing run cancels the others.
func DrainAll(ctx context.Context, reqs []query.Request, limit int, open Opener) ([]*query.Response, error) {
	results := make([]*query.Response, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, req := range reqs {
		g.Go(func() error {
			s := open(gctx, req)
			defer s.Close()

			resp, err := Drain(s)
			if err != nil {
				return fmt.Errorf("request %s: %w", req.RequestID, err)
			}
			results[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
