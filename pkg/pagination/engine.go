package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/frame"
	"github.com/Sternrassler/timeseries-pager/pkg/logging"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
	"github.com/rs/zerolog"
)

// ErrNilResponse is returned when a fetch reports neither a response nor an error.
var ErrNilResponse = errors.New("fetch returned no response")

// FetchFunc performs one backend call. It is called once per page, never
// concurrently within a run, and is not retried by the engine.
type FetchFunc func(ctx context.Context, req query.Request) (*query.Response, error)

// CompletionHook is called after a run emitted its final Done response.
type CompletionHook func(ctx context.Context, req query.Request, final *query.Response)

// CachedSection holds already known data spliced around the fetched pages.
type CachedSection struct {
	// Start is emitted first and seeds the accumulation.
	Start *query.Response

	// End is merged after the last fetched page.
	End *query.Response
}

// Config holds engine configuration
type Config struct {
	// BufferSize is the number of emissions buffered ahead of the consumer
	BufferSize int
	// Timeout per page fetch, zero leaves timeouts to the fetch function
	Timeout time.Duration
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		BufferSize: 1,
		Timeout:    0,
	}
}

// Engine runs pagination loops. An Engine holds no per-run state and may
// serve any number of concurrent runs.
type Engine struct {
	fetch  FetchFunc
	config Config
	logger zerolog.Logger
	onDone CompletionHook
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCompletionHook registers a hook fired after each Done terminal emission.
func WithCompletionHook(hook CompletionHook) Option {
	return func(e *Engine) {
		e.onDone = hook
	}
}

// NewEngine creates a new pagination engine
func NewEngine(fetch FetchFunc, config Config, opts ...Option) *Engine {
	if fetch == nil {
		panic("fetch function cannot be nil")
	}
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}

	e := &Engine{
		fetch:  fetch,
		config: config,
		logger: logging.NewLogger("pagination"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Paginate starts a run for req and returns the stream of its emissions.
//
// Every emission carries Key = req.RequestID. A cached Start is emitted first
// as Streaming, followed by one emission per fetched page holding everything
// accumulated so far, followed by the merged cached End. The last emission
// is Done, or Error when the backend reported an error; in that case no
// further page is fetched and End is not appended. A failing fetch ends the
// stream without a terminal emission and is reported by Stream.Err.
//
// Cancelling ctx or closing the stream stops the run before its next fetch
// or emission.
func (e *Engine) Paginate(ctx context.Context, req query.Request, cached *CachedSection) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel, e.config.BufferSize)
	if cached == nil {
		cached = &CachedSection{}
	}
	go e.run(ctx, s, req, *cached)
	return s
}

// Open starts a run without cached sections.
func (e *Engine) Open(ctx context.Context, req query.Request) *Stream {
	return e.Paginate(ctx, req, nil)
}

func (e *Engine) run(ctx context.Context, s *Stream, req query.Request, cached CachedSection) {
	defer close(s.done)
	defer close(s.ch)
	defer s.cancel()

	key := req.RequestID
	start := time.Now()
	logger := logging.WithRequest(e.logger, key)

	outcome := outcomeCancelled
	pages := 0
	defer func() {
		RunsTotal.WithLabelValues(outcome).Inc()
		logger.Debug().
			Str("outcome", outcome).
			Int("pages", pages).
			Dur("duration", time.Since(start)).
			Msg("Pagination run finished")
	}()

	cancelled := func() {
		s.err = ctx.Err()
		logger.Debug().Int("pages", pages).Msg("Consumer detached, stopping pagination")
	}

	var acc []*frame.Frame
	seeded := false

	if cached.Start != nil {
		if !s.emit(ctx, cached.Start.With(cached.Start.Data, query.StateStreaming, key)) {
			cancelled()
			return
		}
		acc = cached.Start.Data
		seeded = true
	}

	current := req
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			cancelled()
			return
		}

		resp, err := e.fetchPage(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				cancelled()
				return
			}
			outcome = outcomeFailed
			s.err = fmt.Errorf("fetch page %d: %w", page, err)
			logger.Warn().Err(err).Int("page", page).Msg("Page fetch failed")
			return
		}
		pages = page
		PagesFetched.WithLabelValues(string(resp.State)).Inc()

		if seeded {
			acc, err = frame.Merge(acc, resp.Data)
			if err != nil {
				outcome = outcomeFailed
				s.err = fmt.Errorf("merge page %d: %w", page, err)
				logger.Error().Err(err).Int("page", page).Msg("Page could not be merged")
				return
			}
		} else {
			acc = resp.Data
			seeded = true
		}

		if resp.State == query.StateError {
			logger.Warn().
				Int("page", page).
				Str("error", resp.Error).
				Msg("Backend reported an error, stopping pagination")
			if !s.emit(ctx, resp.With(acc, query.StateError, key)) {
				cancelled()
				return
			}
			outcome = outcomeError
			return
		}

		next := NextTargets(current, resp)
		state := query.StateDone
		if next != nil || cached.End != nil {
			state = query.StateStreaming
		}

		emission := resp.With(acc, state, key)
		if !s.emit(ctx, emission) {
			cancelled()
			return
		}

		logger.Debug().
			Int("page", page).
			Int("frames", len(resp.Data)).
			Int("next_targets", len(next)).
			Msg("Page accumulated")

		if next == nil {
			if cached.End == nil {
				outcome = outcomeDone
				e.complete(ctx, req, emission)
				return
			}
			break
		}

		ContinuationTargets.Add(float64(len(next)))
		current = req.NextPage(key, page+1, next)
	}

	acc, err := frame.Merge(acc, cached.End.Data)
	if err != nil {
		outcome = outcomeFailed
		s.err = fmt.Errorf("merge cached end: %w", err)
		logger.Error().Err(err).Msg("Cached end section could not be merged")
		return
	}
	final := cached.End.With(acc, query.StateDone, key)
	if !s.emit(ctx, final) {
		cancelled()
		return
	}
	outcome = outcomeDone
	e.complete(ctx, req, final)
}

// fetchPage performs one fetch, applying the configured page timeout.
func (e *Engine) fetchPage(ctx context.Context, req query.Request) (*query.Response, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.fetch(ctx, req)
	FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrNilResponse
	}
	return resp, nil
}

func (e *Engine) complete(ctx context.Context, req query.Request, final *query.Response) {
	if e.onDone != nil {
		e.onDone(ctx, req, final)
	}
}
