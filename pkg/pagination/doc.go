// Package pagination drives multi-page time-series queries.
//
// The backend answers a query in bounded pages. Frames of a page that has more
// data carry a continuation cursor (meta.custom.nextToken, optionally with an
// entryId when a target fans out into several backend entries). The engine
// re-queries those targets page after page, merges every page into a running
// accumulation and streams that accumulation to the caller, so partial results
// can be rendered before the query finishes.
//
// Example usage:
//
//	engine := pagination.NewEngine(backend.Fetch, pagination.DefaultConfig())
//	stream := engine.Paginate(ctx, req, &pagination.CachedSection{Start: cachedStart})
//	defer stream.Close()
//	for resp := range stream.Responses() {
//		render(resp.Data, resp.State)
//	}
//	if err := stream.Err(); err != nil {
//		return err
//	}
//
// The engine:
//   - Emits a cached start section first (Streaming)
//   - Fetches pages strictly one after another
//   - Emits the accumulation after every page (Streaming, then Done)
//   - Splices a cached end section after the last page
//   - Stops on a backend Error response and emits what it has so far
//   - Stops fetching as soon as the consumer detaches
//
// Emitted frame sets are snapshots: frame.Merge never modifies its inputs, so
// an emission is never changed by later pages.
package pagination
