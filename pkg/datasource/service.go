// Package datasource serves paginated queries through the result cache.
//
// A query first looks up the last completed result for the same targets.
// Whatever part of the requested range that result covers is emitted from
// the cache; only the rest is paginated from the backend. Completed runs are
// stored back for the next query.
package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/cache"
	"github.com/Sternrassler/timeseries-pager/pkg/frame"
	"github.com/Sternrassler/timeseries-pager/pkg/logging"
	"github.com/Sternrassler/timeseries-pager/pkg/pagination"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
	"github.com/rs/zerolog"
)

// Config holds service configuration.
type Config struct {
	// Name namespaces cache keys
	Name string

	// CacheTTL is how long completed results are reused
	CacheTTL time.Duration

	// Concurrency bounds the runs QueryAll starts at once, zero means no bound
	Concurrency int

	Engine pagination.Config
}

// DefaultConfig returns the default configuration for a datasource.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		CacheTTL:    cache.DefaultTTL,
		Concurrency: 4,
		Engine:      pagination.DefaultConfig(),
	}
}

// Service runs cached pagination for one backend.
type Service struct {
	fetch  pagination.FetchFunc
	cache  *cache.Manager
	config Config
	logger zerolog.Logger

	// runLogger is handed to the engine of every run
	runLogger zerolog.Logger
}

// New creates a service paging through fetch. A nil manager disables caching.
func New(fetch pagination.FetchFunc, manager *cache.Manager, cfg Config) *Service {
	if fetch == nil {
		panic("fetch function cannot be nil")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	return &Service{
		fetch:     fetch,
		cache:     manager,
		config:    cfg,
		logger:    logging.NewLogger("datasource"),
		runLogger: logging.NewLogger("pagination"),
	}
}

// Query starts a run for req. Emissions carry req.RequestID as key; a
// request without id gets a random one.
func (s *Service) Query(ctx context.Context, req query.Request) *pagination.Stream {
	if req.RequestID == "" {
		req.RequestID = query.NewRequestID()
	}
	logger := logging.WithRequest(s.logger, req.RequestID)

	key := cache.CacheKey{Datasource: s.config.Name, Targets: req.Targets, LastObservation: req.LastObservation}
	plan := cache.PlanSections(s.lookup(ctx, key, req, logger), req.Range, req.LastObservation)

	if plan.Complete() {
		logger.Debug().
			Str("range", req.Range.String()).
			Msg("Serving query from cache")
		start := plan.Section.Start
		return pagination.Completed(start.With(start.Data, query.StateDone, req.RequestID))
	}

	fetchReq := req.WithRange(plan.Fetch)
	fetchReq.LastObservation = plan.LastObservation

	logger.Debug().
		Str("plan", plan.Kind).
		Str("fetch", plan.Fetch.String()).
		Msg("Paginating query")

	engine := pagination.NewEngine(s.fetch, s.config.Engine,
		pagination.WithLogger(s.runLogger),
		pagination.WithCompletionHook(s.store(key, req)),
	)
	return engine.Paginate(ctx, fetchReq, &plan.Section)
}

// QueryAll runs reqs concurrently and returns their final responses in
// request order.
func (s *Service) QueryAll(ctx context.Context, reqs []query.Request) ([]*query.Response, error) {
	reqs = append([]query.Request(nil), reqs...)
	for i := range reqs {
		if reqs[i].RequestID == "" {
			reqs[i].RequestID = query.NewRequestID()
		}
	}
	return pagination.DrainAll(ctx, reqs, s.config.Concurrency, s.Query)
}

// Ping checks the cache backend.
func (s *Service) Ping(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

// lookup returns the cached entry for key, or nil.
func (s *Service) lookup(ctx context.Context, key cache.CacheKey, req query.Request, logger zerolog.Logger) *cache.CacheEntry {
	if s.cache == nil || req.Range.IsZero() {
		return nil
	}
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache lookup failed, querying backend")
		}
		return nil
	}
	return entry
}

// store returns the completion hook saving the final response of a run
// over req.Range.
func (s *Service) store(key cache.CacheKey, req query.Request) pagination.CompletionHook {
	return func(ctx context.Context, _ query.Request, final *query.Response) {
		if s.cache == nil || req.Range.IsZero() {
			return
		}

		trimmed := frame.TrimAll(final.Data, req.Range, req.LastObservation)
		for i, f := range trimmed {
			trimmed[i] = f.Clone()
		}

		entry := cache.NewEntry(final.With(trimmed, query.StateDone, final.Key), req.Range, s.config.CacheTTL)
		if err := s.cache.Set(context.WithoutCancel(ctx), key, entry); err != nil {
			logger := logging.WithRequest(s.logger, req.RequestID)
			logger.Warn().
				Err(err).
				Msg("Failed to cache query result")
		}
	}
}
