package cache

import (
	"github.com/Sternrassler/timeseries-pager/pkg/frame"
	"github.com/Sternrassler/timeseries-pager/pkg/pagination"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
)

// Plan kinds, used as metric labels.
const (
	PlanMiss     = "miss"
	PlanStart    = "start"
	PlanEnd      = "end"
	PlanComplete = "complete"
)

// Plan describes how a request is served from a cache entry.
type Plan struct {
	// Kind is one of PlanMiss, PlanStart, PlanEnd or PlanComplete
	Kind string

	// Section holds the cached data to splice around the fetched pages
	Section pagination.CachedSection

	// Fetch is the range still to be queried; zero when Complete
	Fetch frame.TimeRange

	// LastObservation applies to the fetched range. It is dropped when the
	// fetched range continues cached data.
	LastObservation bool
}

// Complete reports whether the entry covers the whole requested range.
func (p Plan) Complete() bool {
	return p.Kind == PlanComplete
}

// Hit reports whether any cached data is used.
func (p Plan) Hit() bool {
	return p.Kind != PlanMiss
}

// PlanSections splits requested into a cached part taken from entry and a
// remaining part to fetch.
//
//   - entry covers requested: Complete, Section.Start holds the trimmed frames
//   - entry covers the beginning: Start is (from, cachedTo], fetch (cachedTo, to]
//   - entry covers the end: End is (cachedFrom, to], fetch (from, cachedFrom]
//   - otherwise, including entries strictly inside requested: miss
//
// Cached frames are trimmed, the entry itself is never modified.
func PlanSections(entry *CacheEntry, requested frame.TimeRange, lastObservation bool) Plan {
	plan := planSections(entry, requested, lastObservation)
	SectionPlans.WithLabelValues(plan.Kind).Inc()
	return plan
}

func planSections(entry *CacheEntry, requested frame.TimeRange, lastObservation bool) Plan {
	miss := Plan{Kind: PlanMiss, Fetch: requested, LastObservation: lastObservation}
	if entry == nil || entry.Response == nil || entry.IsExpired() {
		return miss
	}

	cached := entry.Range
	from, to := requested.From, requested.To
	if !cached.To.After(from) || !to.After(cached.From) {
		// disjoint
		return miss
	}

	coversStart := !cached.From.After(from)
	coversEnd := !to.After(cached.To)

	switch {
	case coversStart && coversEnd:
		return Plan{
			Kind: PlanComplete,
			Section: pagination.CachedSection{
				Start: section(entry, requested, lastObservation),
			},
		}
	case coversStart:
		return Plan{
			Kind: PlanStart,
			Section: pagination.CachedSection{
				Start: section(entry, frame.TimeRange{From: from, To: cached.To}, lastObservation),
			},
			Fetch: frame.TimeRange{From: cached.To, To: to},
		}
	case coversEnd:
		return Plan{
			Kind: PlanEnd,
			Section: pagination.CachedSection{
				End: section(entry, frame.TimeRange{From: cached.From, To: to}, false),
			},
			Fetch:           frame.TimeRange{From: from, To: cached.From},
			LastObservation: lastObservation,
		}
	default:
		return miss
	}
}

// section trims the cached frames to r, dropping continuation cursors so a
// cached section never restarts pagination.
func section(entry *CacheEntry, r frame.TimeRange, lastObservation bool) *query.Response {
	trimmed := frame.TrimAll(entry.Frames(), r, lastObservation)
	for i, f := range trimmed {
		if tok, _ := f.NextToken(); tok != "" {
			f = f.Clone()
			f.Meta.Custom = nil
			trimmed[i] = f
		}
	}
	return entry.Response.With(trimmed, query.StateDone, "")
}
