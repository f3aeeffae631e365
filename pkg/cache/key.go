package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sternrassler/timeseries-pager/pkg/query"
	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// CacheKey represents a unique identifier for a cached query result.
type CacheKey struct {
	// Datasource namespaces keys of different backends
	Datasource string

	// Targets are the queried targets; cursors are ignored
	Targets []query.Target

	// LastObservation separates results that keep the sample preceding
	// their range from those that do not
	LastObservation bool
}

// String generates a deterministic cache key string.
// Format: pager:datasource:refA=<hash>:refB=<hash>[:lastobs]
//
// Example:
//
//	pager:sitewise:A=5d1f0a3c8e7b2a91
func (k CacheKey) String() string {
	parts := []string{"pager"}

	if ds := strings.TrimSpace(k.Datasource); ds != "" {
		parts = append(parts, ds)
	}

	// Targets sorted by refId for determinism
	targets := make([]query.Target, len(k.Targets))
	copy(targets, k.Targets)
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].RefID < targets[j].RefID
	})

	for _, t := range targets {
		parts = append(parts, fmt.Sprintf("%s=%016x", t.RefID, fingerprint(t)))
	}

	if k.LastObservation {
		parts = append(parts, "lastobs")
	}

	return strings.Join(parts, ":")
}

// fingerprint hashes a target's query parameters. Map keys are encoded in
// sorted order, so equal parameters always hash the same.
func fingerprint(t query.Target) uint64 {
	data, err := json.Marshal(t.WithoutCursors().Params)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", t.Params))
	}
	return xxhash.Sum64(data)
}
