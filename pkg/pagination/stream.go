package pagination

import (
	"context"

	"github.com/Sternrassler/timeseries-pager/pkg/query"
)

// Stream is the consumer side of one pagination run.
//
//	s := engine.Paginate(ctx, req, nil)
//	defer s.Close()
//	for resp := range s.Responses() {
//		render(resp)
//	}
//	if err := s.Err(); err != nil {
//		// the run failed or was cancelled before its terminal emission
//	}
type Stream struct {
	ch     chan *query.Response
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

func newStream(cancel context.CancelFunc, buffer int) *Stream {
	return &Stream{
		ch:     make(chan *query.Response, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Completed returns a finished stream that yields resp once.
func Completed(resp *query.Response) *Stream {
	s := newStream(func() {}, 1)
	s.ch <- resp
	close(s.ch)
	close(s.done)
	return s
}

// Responses returns the emissions of the run. The channel is closed when the
// run ends.
func (s *Stream) Responses() <-chan *query.Response {
	return s.ch
}

// Err waits for the run to end and returns why it ended early: the fetch or
// merge failure, or the context error when the consumer detached. It is nil
// when the run reached a terminal emission.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Close detaches the consumer. No fetch is started afterwards; a fetch in
// flight is left to finish and its page is dropped. Close returns once the
// run has stopped.
func (s *Stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// emit hands resp to the consumer unless it detached.
func (s *Stream) emit(ctx context.Context, resp *query.Response) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.ch <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}
