package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/metrics"
	"github.com/Sternrassler/timeseries-pager/pkg/pagination"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// maxRequestBody bounds query request bodies.
const maxRequestBody = 1 << 20

// querier is the part of datasource.Service the handlers use.
type querier interface {
	Query(ctx context.Context, req query.Request) *pagination.Stream
	QueryAll(ctx context.Context, reqs []query.Request) ([]*query.Response, error)
	Ping(ctx context.Context) error
}

func newHandler(svc querier, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(svc))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /query", queryHandler(svc, logger))
	mux.HandleFunc("POST /query/batch", batchHandler(svc, logger))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(svc querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := svc.Ping(ctx); err != nil {
			http.Error(w, fmt.Sprintf("cache not ready: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// queryHandler streams every emission of a run as one JSON line. A run that
// fails after the stream started ends with an Error line.
func queryHandler(svc querier, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req query.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
			return
		}
		if err := validate(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		stream := svc.Query(r.Context(), req)
		defer stream.Close()

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		enc := json.NewEncoder(w)
		key := req.RequestID
		for resp := range stream.Responses() {
			key = resp.Key
			if err := enc.Encode(resp); err != nil {
				logger.Debug().Err(err).Str("request_id", key).Msg("Client went away")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if err := stream.Err(); err != nil && r.Context().Err() == nil {
			logger.Warn().Err(err).Str("request_id", key).Msg("Query failed")
			if err := enc.Encode(&query.Response{State: query.StateError, Key: key, Error: err.Error()}); err != nil {
				logger.Debug().Err(err).Str("request_id", key).Msg("Client went away")
			}
		}
	}
}

// batchHandler runs several queries and answers with their final responses.
func batchHandler(svc querier, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqs []query.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&reqs); err != nil {
			http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
			return
		}
		for i, req := range reqs {
			if err := validate(req); err != nil {
				http.Error(w, fmt.Sprintf("request %d: %v", i, err), http.StatusBadRequest)
				return
			}
		}

		results, err := svc.QueryAll(r.Context(), reqs)
		if err != nil {
			logger.Warn().Err(err).Int("requests", len(reqs)).Msg("Batch query failed")
			http.Error(w, fmt.Sprintf("query failed: %v", err), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(results); err != nil {
			logger.Debug().Err(err).Msg("Client went away")
		}
	}
}

func validate(req query.Request) error {
	if len(req.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	for i, t := range req.Targets {
		if t.RefID == "" {
			return fmt.Errorf("target %d: refId is required", i)
		}
	}
	if req.Range.To.Before(req.Range.From) {
		return fmt.Errorf("range end %s is before start %s", req.Range.To, req.Range.From)
	}
	return nil
}
