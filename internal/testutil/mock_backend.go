// Package testutil provides testing utilities for the time-series pager.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/frame"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
	"github.com/goccy/go-json"
)

// MockResponse defines a canned answer of the mock backend.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockBackend is a configurable mock time-series backend for testing.
//
// Every target is answered with one sample per Step in the requested range,
// plus the sample preceding it when the request asks for the last
// observation, split into pages of PageSize rows. A page that leaves rows behind carries
// a nextToken; the token is the row offset of the following page.
type MockBackend struct {
	server *httptest.Server
	mu     sync.RWMutex

	pageSize int
	step     time.Duration
	delay    time.Duration

	// queued canned responses, served before any generated page
	queued []MockResponse

	// errorAfter makes requests after the given count answer State=Error
	errorAfter int
	errorMsg   string

	// Tracking
	RequestCount      int
	Requests          []query.Request
	LastRequestHeader http.Header
}

// NewMockBackend creates a new mock backend paging pageSize rows with one
// sample per step.
func NewMockBackend(pageSize int, step time.Duration) *MockBackend {
	if pageSize <= 0 {
		pageSize = 10
	}
	if step <= 0 {
		step = time.Second
	}
	mock := &MockBackend{
		pageSize: pageSize,
		step:     step,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears tracking counters and queued responses.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
	m.LastRequestHeader = nil
	m.queued = nil
	m.errorAfter = 0
	m.errorMsg = ""
}

// Enqueue serves resp for the next request instead of a generated page.
func (m *MockBackend) Enqueue(resp ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, resp...)
}

// SetDelay delays every answer.
func (m *MockBackend) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// ErrorAfter answers State=Error with msg once n requests were served.
func (m *MockBackend) ErrorAfter(n int, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorAfter = n
	m.errorMsg = msg
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBackend) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequestHeader returns the headers of the last request.
func (m *MockBackend) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// GetRequests returns a copy of the decoded requests.
func (m *MockBackend) GetRequests() []query.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]query.Request(nil), m.Requests...)
}

func (m *MockBackend) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/query" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.RequestCount++
	m.Requests = append(m.Requests, req)
	m.LastRequestHeader = r.Header.Clone()
	count := m.RequestCount
	delay := m.delay
	var canned *MockResponse
	if len(m.queued) > 0 {
		canned = &m.queued[0]
		m.queued = m.queued[1:]
	}
	errorAfter, errorMsg := m.errorAfter, m.errorMsg
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if canned != nil {
		for key, value := range canned.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(canned.StatusCode)
		if canned.Body != "" {
			w.Write([]byte(canned.Body))
		}
		return
	}

	var resp *query.Response
	if errorAfter > 0 && count > errorAfter {
		resp = &query.Response{State: query.StateError, Error: errorMsg}
	} else {
		resp = m.page(req)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// page generates the page for req.
func (m *MockBackend) page(req query.Request) *query.Response {
	resp := &query.Response{State: query.StateDone}
	for _, target := range req.Targets {
		offset := 0
		if target.NextToken != "" {
			offset, _ = strconv.Atoi(target.NextToken)
		}
		resp.Data = append(resp.Data, m.frame(target.RefID, req.Range, req.LastObservation, offset))
	}
	return resp
}

func (m *MockBackend) frame(refID string, r frame.TimeRange, lastObservation bool, offset int) *frame.Frame {
	times := Timestamps(r, m.step)
	if lastObservation {
		times = append([]int64{Preceding(r, m.step)}, times...)
	}

	end := offset + m.pageSize
	if end > len(times) {
		end = len(times)
	}
	if offset > end {
		offset = end
	}

	timeValues := make([]any, 0, end-offset)
	values := make([]any, 0, end-offset)
	for _, ts := range times[offset:end] {
		timeValues = append(timeValues, ts)
		values = append(values, SampleValue(ts))
	}

	f := &frame.Frame{
		Name:  "series " + refID,
		RefID: refID,
		Fields: []*frame.Field{
			{Name: frame.TimeFieldName, Type: frame.FieldTypeTime, Values: timeValues},
			{Name: "value", Type: frame.FieldTypeNumber, Values: values},
		},
	}
	if end < len(times) {
		f.Meta = &frame.Meta{Custom: &frame.CustomMeta{NextToken: strconv.Itoa(end)}}
	}
	return f
}

// Timestamps returns the epoch milliseconds of the samples the mock serves
// for r: every multiple of step after r.From up to and including r.To.
func Timestamps(r frame.TimeRange, step time.Duration) []int64 {
	stepMs := step.Milliseconds()
	from, to := r.From.UnixMilli(), r.To.UnixMilli()

	first := (from/stepMs + 1) * stepMs
	if from < 0 && from%stepMs != 0 {
		first = (from / stepMs) * stepMs
	}

	var out []int64
	for ts := first; ts <= to; ts += stepMs {
		out = append(out, ts)
	}
	return out
}

// Preceding returns the last sample time at or before r.From.
func Preceding(r frame.TimeRange, step time.Duration) int64 {
	next := Timestamps(frame.TimeRange{From: r.From, To: r.From.Add(step)}, step)
	return next[0] - step.Milliseconds()
}

// SampleValue is the value the mock serves at ts.
func SampleValue(ts int64) float64 {
	return float64(ts) / 1000
}
