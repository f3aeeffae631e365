// Package cache stores completed query results and turns them into cached
// sections for later queries over an overlapping time range.
//
// Dashboards typically re-run the same query over a sliding window
// ("last 15 minutes", refreshed every few seconds). Most of the new window was
// already fetched by the previous run; only the edge has to be queried again.
//
// # Basic Usage
//
//	// Create cache manager (redis is optional, the memory layer is always on)
//	manager := cache.NewManager(redisClient, cache.DefaultConfig())
//
//	key := cache.CacheKey{Datasource: "sitewise", Targets: req.Targets}
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// Cache miss - fetch everything
//	}
//
// # Planning Cached Sections
//
//	plan := cache.PlanSections(entry, req.Range, req.LastObservation)
//	if plan.Complete {
//		// entry covers the whole range, plan.Section.Start holds the data
//	}
//	stream := engine.Paginate(ctx, req.WithRange(plan.Fetch), &plan.Section)
//
// The cached frames are bounded with frame.TrimAll before they are handed to
// the engine, so a section never holds rows outside the requested range.
//
// # Storing Results
//
//	entry := cache.NewEntry(final, req.Range, cache.DefaultTTL)
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Layers
//
// Lookups go to an in-process expirable LRU first ("memory") and then to
// Redis ("redis"). Redis hits are promoted into the memory layer.
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - pager_cache_hits_total{layer} - Cache hits by layer
//   - pager_cache_misses_total - Cache misses
//   - pager_cache_size_bytes{layer="redis"} - Bytes written to Redis
//   - pager_cache_entries{layer="memory"} - Entries held in memory
//   - pager_cache_errors_total{operation} - Cache operation errors
//   - pager_cache_plans_total{kind} - Planned sections by kind
package cache
