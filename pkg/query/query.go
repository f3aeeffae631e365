// Package query holds the request and response values exchanged with the
// time-series backend during a pagination run.
package query

import (
	"fmt"
	"maps"

	"github.com/Sternrassler/timeseries-pager/pkg/frame"
	"github.com/google/uuid"
)

// State is the lifecycle state carried by a Response.
type State string

const (
	// StateStreaming means more emissions follow.
	StateStreaming State = "Streaming"

	// StateDone is a successful terminal state.
	StateDone State = "Done"

	// StateError is a backend-signaled terminal failure.
	StateError State = "Error"
)

// Target is one backend query descriptor.
//
// NextToken and NextTokens carry pagination state. When a target fans out
// into several backend entries, NextTokens[entryID] is the cursor for that
// entry and takes precedence over NextToken; entries without a mapping use
// NextToken.
type Target struct {
	RefID string `json:"refId"`

	NextToken  string            `json:"nextToken,omitempty"`
	NextTokens map[string]string `json:"nextTokens,omitempty"`

	// Params is the backend-specific query (asset ids, property, aggregates, ...).
	Params map[string]any `json:"params,omitempty"`
}

// Clone returns a copy of the target with its own maps.
func (t Target) Clone() Target {
	t.NextTokens = maps.Clone(t.NextTokens)
	t.Params = maps.Clone(t.Params)
	return t
}

// WithoutCursors returns the target stripped of pagination state.
func (t Target) WithoutCursors() Target {
	t = t.Clone()
	t.NextToken = ""
	t.NextTokens = nil
	return t
}

// CursorFor returns the cursor that applies to a backend entry.
func (t Target) CursorFor(entryID string) string {
	if tok, ok := t.NextTokens[entryID]; ok && entryID != "" {
		return tok
	}
	return t.NextToken
}

// Request is one backend query covering a set of targets over a time range.
type Request struct {
	// RequestID correlates emissions and cancellation.
	RequestID string `json:"requestId"`

	Targets []Target `json:"targets"`

	Range frame.TimeRange `json:"range"`

	// LastObservation asks trimming layers to keep the sample preceding the range.
	LastObservation bool `json:"lastObservation,omitempty"`
}

// NewRequestID returns a random request id.
func NewRequestID() string {
	return uuid.NewString()
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	targets := make([]Target, len(r.Targets))
	for i, t := range r.Targets {
		targets[i] = t.Clone()
	}
	r.Targets = targets
	return r
}

// NextPage returns the request for page n (n >= 2) of the run started with
// originalID, querying the given targets.
func (r Request) NextPage(originalID string, n int, targets []Target) Request {
	next := r.Clone()
	next.RequestID = fmt.Sprintf("%s.%d", originalID, n)
	next.Targets = targets
	return next
}

// WithRange returns a copy of the request querying r.
func (r Request) WithRange(tr frame.TimeRange) Request {
	next := r.Clone()
	next.Range = tr
	return next
}

// Target returns the target with the given refId.
func (r Request) Target(refID string) (Target, bool) {
	for _, t := range r.Targets {
		if t.RefID == refID {
			return t, true
		}
	}
	return Target{}, false
}

// Response is one backend page, or one emission of a pagination run.
type Response struct {
	Data []*frame.Frame `json:"data"`

	State State `json:"state"`

	// Key is the id of the request that started the run.
	Key string `json:"key,omitempty"`

	// Error describes a StateError response.
	Error string `json:"error,omitempty"`
}

// With returns a copy of the response carrying data, state and key.
func (r Response) With(data []*frame.Frame, state State, key string) *Response {
	r.Data = data
	r.State = state
	r.Key = key
	return &r
}

// Rows returns the total row count across frames.
func (r *Response) Rows() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range r.Data {
		n += f.Len()
	}
	return n
}
