package pagination

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/frame"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedFetcher answers fetches from a fixed list of pages and records the
// requests it saw.
type scriptedFetcher struct {
	mu       sync.Mutex
	pages    []*query.Response
	errs     []error
	requests []query.Request
}

func (f *scriptedFetcher) Fetch(ctx context.Context, req query.Request) (*query.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.requests)
	f.requests = append(f.requests, req)
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	if n >= len(f.pages) {
		return nil, errors.New("unexpected fetch")
	}
	return f.pages[n], nil
}

func (f *scriptedFetcher) calls() []query.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]query.Request(nil), f.requests...)
}

func pageFrame(t int64, v float64, token string) *frame.Frame {
	f := &frame.Frame{
		Name:  "Demo Turbine Asset 1",
		RefID: "A",
		Fields: []*frame.Field{
			{Name: frame.TimeFieldName, Type: frame.FieldTypeTime, Values: []any{t}},
			{Name: "Wind Speed", Type: frame.FieldTypeNumber, Values: []any{v}},
			{Name: "quality", Type: frame.FieldTypeString, Values: []any{"GOOD"}},
		},
	}
	if token != "" {
		f.Meta = &frame.Meta{Custom: &frame.CustomMeta{NextToken: token}}
	}
	return f
}

func page(state query.State, frames ...*frame.Frame) *query.Response {
	return &query.Response{Data: frames, State: state}
}

func baseRequest() query.Request {
	return query.Request{
		RequestID: "SQR-1",
		Targets:   []query.Target{{RefID: "A", Params: map[string]any{"assetId": "turbine-1"}}},
		Range: frame.TimeRange{
			From: time.UnixMilli(1716931540000),
			To:   time.UnixMilli(1716931560000),
		},
	}
}

func collect(t *testing.T, s *Stream) []*query.Response {
	t.Helper()
	var out []*query.Response
	for resp := range s.Responses() {
		out = append(out, resp)
	}
	return out
}

func newTestEngine(f FetchFunc, opts ...Option) *Engine {
	return NewEngine(f, DefaultConfig(), opts...)
}

func TestPaginate_SinglePage(t *testing.T) {
	only := page(query.StateDone, pageFrame(1716931549000, 1, ""))
	fetcher := &scriptedFetcher{pages: []*query.Response{only}}

	s := newTestEngine(fetcher.Fetch).Paginate(context.Background(), baseRequest(), nil)
	got := collect(t, s)
	require.NoError(t, s.Err())

	require.Len(t, got, 1)
	assert.Equal(t, query.StateDone, got[0].State)
	assert.Equal(t, "SQR-1", got[0].Key)
	assert.Equal(t, only.Data, got[0].Data)
	assert.Len(t, fetcher.calls(), 1)
	assert.Empty(t, only.Key, "fetched page must not be modified")
}

func TestPaginate_MultiPageMerge(t *testing.T) {
	fetcher := &scriptedFetcher{pages: []*query.Response{
		page(query.StateDone, pageFrame(1716931549000, 1, "next-1")),
		page(query.StateDone, pageFrame(1716931550000, 0.45253960150485795, "")),
	}}

	s := newTestEngine(fetcher.Fetch).Paginate(context.Background(), baseRequest(), nil)
	got := collect(t, s)
	require.NoError(t, s.Err())

	require.Len(t, got, 2)
	assert.Equal(t, query.StateStreaming, got[0].State)
	assert.Equal(t, 1, got[0].Rows())

	final := got[1]
	assert.Equal(t, query.StateDone, final.State)
	assert.Equal(t, "SQR-1", final.Key)
	require.Len(t, final.Data, 1)
	assert.Equal(t, 2, final.Data[0].Len())
	assert.Equal(t, []any{int64(1716931549000), int64(1716931550000)}, final.Data[0].Field(frame.TimeFieldName).Values)
	assert.Equal(t, []any{1.0, 0.45253960150485795}, final.Data[0].Field("Wind Speed").Values)

	// the first emission is a snapshot
	assert.Equal(t, 1, got[0].Data[0].Len())

	calls := fetcher.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "SQR-1", calls[0].RequestID)
	assert.Equal(t, "SQR-1.2", calls[1].RequestID)
	assert.Equal(t, NextTargets(calls[0], fetcher.pages[0]), calls[1].Targets)
	assert.Equal(t, "next-1", calls[1].Targets[0].NextToken)
	assert.Equal(t, calls[0].Range, calls[1].Range)
}

func TestPaginate_RequestIDSequence(t *testing.T) {
	fetcher := &scriptedFetcher{pages: []*query.Response{
		page(query.StateDone, pageFrame(1, 1, "a")),
		page(query.StateDone, pageFrame(2, 2, "b")),
		page(query.StateDone, pageFrame(3, 3, "c")),
		page(query.StateDone, pageFrame(4, 4, "")),
	}}

	s := newTestEngine(fetcher.Fetch).Paginate(context.Background(), baseRequest(), nil)
	got := collect(t, s)
	require.NoError(t, s.Err())
	require.Len(t, got, 4)

	ids := make([]string, 0, 4)
	for _, req := range fetcher.calls() {
		ids = append(ids, req.RequestID)
	}
	assert.Equal(t, []string{"SQR-1", "SQR-1.2", "SQR-1.3", "SQR-1.4"}, ids)

	for i, resp := range got {
		assert.Equal(t, "SQR-1", resp.Key)
		assert.Equal(t, i+1, resp.Rows(), "accumulation grows monotonically")
	}
	assert.Equal(t, query.StateDone, got[3].State)
}

func TestPaginate_ErrorShortCircuit(t *testing.T) {
	failing := &query.Response{
		Data:  []*frame.Frame{pageFrame(1716931549000, 1, "more")},
		State: query.StateError,
		Error: "ThrottlingException",
	}
	fetcher := &scriptedFetcher{pages: []*query.Response{failing}}
	cached := &CachedSection{End: page(query.StateDone, pageFrame(1716931560000, 9, ""))}

	s := newTestEngine(fetcher.Fetch).Paginate(context.Background(), baseRequest(), cached)
	got := collect(t, s)
	require.NoError(t, s.Err())

	require.Len(t, got, 1)
	assert.Equal(t, query.StateError, got[0].State)
	assert.Equal(t, "ThrottlingException", got[0].Error)
	assert.Equal(t, failing.Data, got[0].Data)
	assert.Equal(t, "SQR-1", got[0].Key)
	assert.Len(t, fetcher.calls(), 1)
}

func TestPaginate_ErrorKeepsAccumulation(t *testing.T) {
	fetcher := &scriptedFetcher{pages: []*query.Response{
		page(query.StateDone, pageFrame(1, 1, "next")),
		{Data: []*frame.Frame{pageFrame(2, 2, "")}, State: query.StateError, Error: "boom"},
	}}

	s := newTestEngine(fetcher.Fetch).Paginate(context.Background(), baseRequest(), nil)
	got := collect(t, s)
	require.NoError(t, s.Err())

	require.Len(t, got, 2)
	last := got[1]
	assert.Equal(t, query.StateError, last.State)
	assert.Equal(t, 2, last.Rows())
}

func TestPaginate_CachedSplice(t *testing.T) {
	start := page(query.StateDone, pageFrame(1716931540000, 0.1, ""))
	end := page(query.StateDone, pageFrame(1716931560000, 0.3, ""))
	fetcher := &scriptedFetcher{pages: []*query.Response{
		page(query.StateDone, pageFrame(1716931550000, 0.2, "")),
	}}

	var hooked *query.Response
	engine := newTestEngine(fetcher.Fetch, WithCompletionHook(func(_ context.Context, _ query.Request, final *query.Response) {
		hooked = final
	}))

	s := engine.Paginate(context.Background(), baseRequest(), &CachedSection{Start: start, End: end})
	got := collect(t, s)
	require.NoError(t, s.Err())

	require.Len(t, got, 3)
	assert.Equal(t, query.StateStreaming, got[0].State)
	assert.Equal(t, start.Data, got[0].Data)

	assert.Equal(t, query.StateStreaming, got[1].State)
	assert.Equal(t, 2, got[1].Rows())

	final := got[2]
	assert.Equal(t, query.StateDone, final.State)
	require.Len(t, final.Data, 1)
	assert.Equal(t,
		[]any{int64(1716931540000), int64(1716931550000), int64(1716931560000)},
		final.Data[0].Field(frame.TimeFieldName).Values)
	assert.Same(t, final, hooked)

	for _, resp := range got {
		assert.Equal(t, "SQR-1", resp.Key)
	}
	assert.Len(t, fetcher.calls(), 1)
	assert.Equal(t, query.StateDone, start.State, "cached section must not be modified")
}

func TestPaginate_FetchFailure(t *testing.T) {
	boom := errors.New("connection reset")
	fetcher := &scriptedFetcher{
		pages: []*query.Response{page(query.StateDone, pageFrame(1, 1, "next"))},
		errs:  []error{nil, boom},
	}
	var hooked bool
	engine := newTestEngine(fetcher.Fetch, WithCompletionHook(func(context.Context, query.Request, *query.Response) {
		hooked = true
	}))

	s := engine.Paginate(context.Background(), baseRequest(),
		&CachedSection{End: page(query.StateDone, pageFrame(9, 9, ""))})
	got := collect(t, s)

	require.Len(t, got, 1)
	assert.Equal(t, query.StateStreaming, got[0].State)
	err := s.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, hooked)
}

func TestPaginate_NilResponse(t *testing.T) {
	fetch := func(context.Context, query.Request) (*query.Response, error) { return nil, nil }

	s := newTestEngine(fetch).Paginate(context.Background(), baseRequest(), nil)
	assert.Empty(t, collect(t, s))
	assert.ErrorIs(t, s.Err(), ErrNilResponse)
}

func TestPaginate_SchemaMismatchFailsFast(t *testing.T) {
	odd := pageFrame(2, 2, "")
	odd.Fields[2].Name = "status"
	fetcher := &scriptedFetcher{pages: []*query.Response{
		page(query.StateDone, pageFrame(1, 1, "next")),
		page(query.StateDone, odd),
	}}

	s := newTestEngine(fetcher.Fetch).Paginate(context.Background(), baseRequest(), nil)
	got := collect(t, s)
	assert.Len(t, got, 1)
	assert.ErrorIs(t, s.Err(), frame.ErrSchemaMismatch)
}

func TestPaginate_CancelStopsFetching(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	fetch := func(ctx context.Context, req query.Request) (*query.Response, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		return page(query.StateDone, pageFrame(int64(n), float64(n), "more")), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := NewEngine(fetch, Config{BufferSize: 0}).Paginate(ctx, baseRequest(), nil)

	first := <-s.Responses()
	require.NotNil(t, first)
	cancel()

	for range s.Responses() {
	}
	assert.ErrorIs(t, s.Err(), context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, calls, 2, "at most the in-flight fetch completes after cancellation")
}

func TestPaginate_CloseWaitsForInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context, req query.Request) (*query.Response, error) {
		close(started)
		<-release
		return page(query.StateDone, pageFrame(1, 1, "")), nil
	}

	s := newTestEngine(fetch).Paginate(context.Background(), baseRequest(), nil)
	<-started

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()
	close(release)
	<-closed

	for resp := range s.Responses() {
		t.Fatalf("unexpected emission after Close: %+v", resp)
	}
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestPaginate_PageTimeout(t *testing.T) {
	fetch := func(ctx context.Context, req query.Request) (*query.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	s := NewEngine(fetch, Config{BufferSize: 1, Timeout: 10 * time.Millisecond}).
		Paginate(context.Background(), baseRequest(), nil)
	assert.Empty(t, collect(t, s))
	assert.ErrorIs(t, s.Err(), context.DeadlineExceeded)
}

func TestPaginate_ConcurrentRunsAreIndependent(t *testing.T) {
	fetch := func(ctx context.Context, req query.Request) (*query.Response, error) {
		token := ""
		if req.Targets[0].NextToken == "" {
			token = "next"
		}
		return page(query.StateDone, pageFrame(1, 1, token)), nil
	}
	engine := newTestEngine(fetch)

	var wg sync.WaitGroup
	finals := make([]*query.Response, 8)
	for i := range finals {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := baseRequest()
			req.RequestID = query.NewRequestID()
			finals[i], _ = Drain(engine.Paginate(context.Background(), req, nil))
		}()
	}
	wg.Wait()

	for _, final := range finals {
		require.NotNil(t, final)
		assert.Equal(t, query.StateDone, final.State)
		assert.Equal(t, 2, final.Rows())
	}
}

func TestNewEngine_NilFetchPanics(t *testing.T) {
	assert.Panics(t, func() { NewEngine(nil, DefaultConfig()) })
}
