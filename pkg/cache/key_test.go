package cache

import (
	"strings"
	"testing"

	"github.com/Sternrassler/timeseries-pager/pkg/query"
)

func TestCacheKey_String(t *testing.T) {
	a := query.Target{RefID: "A", Params: map[string]any{"assetId": "turbine-1", "property": "wind"}}
	b := query.Target{RefID: "B", Params: map[string]any{"assetId": "turbine-2"}}

	tests := []struct {
		name       string
		key        CacheKey
		wantPrefix string
		wantParts  int
	}{
		{
			name:       "single target",
			key:        CacheKey{Datasource: "sitewise", Targets: []query.Target{a}},
			wantPrefix: "pager:sitewise:A=",
			wantParts:  3,
		},
		{
			name:       "targets sorted by refId",
			key:        CacheKey{Datasource: "sitewise", Targets: []query.Target{b, a}},
			wantPrefix: "pager:sitewise:A=",
			wantParts:  4,
		},
		{
			name:       "no datasource",
			key:        CacheKey{Targets: []query.Target{a}},
			wantPrefix: "pager:A=",
			wantParts:  2,
		},
		{
			name:       "no targets",
			key:        CacheKey{Datasource: "sitewise"},
			wantPrefix: "pager:sitewise",
			wantParts:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("String() = %q, want prefix %q", got, tt.wantPrefix)
			}
			if parts := len(strings.Split(got, ":")); parts != tt.wantParts {
				t.Errorf("String() = %q has %d parts, want %d", got, parts, tt.wantParts)
			}
		})
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	a := query.Target{RefID: "A", Params: map[string]any{"assetId": "turbine-1", "property": "wind", "resolution": "1m"}}
	b := query.Target{RefID: "B", Params: map[string]any{"assetId": "turbine-2"}}

	key1 := CacheKey{Datasource: "sitewise", Targets: []query.Target{a, b}}
	key2 := CacheKey{Datasource: "sitewise", Targets: []query.Target{b, a}}

	for i := 0; i < 10; i++ {
		if key1.String() != key2.String() {
			t.Errorf("Keys not deterministic: %q != %q", key1.String(), key2.String())
		}
	}
}

func TestCacheKey_IgnoresCursors(t *testing.T) {
	plain := query.Target{RefID: "A", Params: map[string]any{"assetId": "turbine-1"}}
	paged := plain.Clone()
	paged.NextToken = "token-2"
	paged.NextTokens = map[string]string{"entry-1": "token-3"}

	k1 := CacheKey{Datasource: "sitewise", Targets: []query.Target{plain}}
	k2 := CacheKey{Datasource: "sitewise", Targets: []query.Target{paged}}

	if k1.String() != k2.String() {
		t.Errorf("cursor changed key: %q != %q", k1.String(), k2.String())
	}
}

func TestCacheKey_DistinctParams(t *testing.T) {
	tests := []struct {
		name string
		a, b query.Target
	}{
		{
			name: "different asset",
			a:    query.Target{RefID: "A", Params: map[string]any{"assetId": "turbine-1"}},
			b:    query.Target{RefID: "A", Params: map[string]any{"assetId": "turbine-2"}},
		},
		{
			name: "extra param",
			a:    query.Target{RefID: "A", Params: map[string]any{"assetId": "turbine-1"}},
			b:    query.Target{RefID: "A", Params: map[string]any{"assetId": "turbine-1", "aggregate": "avg"}},
		},
		{
			name: "different refId",
			a:    query.Target{RefID: "A", Params: map[string]any{"assetId": "turbine-1"}},
			b:    query.Target{RefID: "B", Params: map[string]any{"assetId": "turbine-1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k1 := CacheKey{Datasource: "sitewise", Targets: []query.Target{tt.a}}
			k2 := CacheKey{Datasource: "sitewise", Targets: []query.Target{tt.b}}
			if k1.String() == k2.String() {
				t.Errorf("String() = %q for both targets", k1.String())
			}
		})
	}
}

func TestCacheKey_DistinctDatasource(t *testing.T) {
	target := query.Target{RefID: "A"}
	k1 := CacheKey{Datasource: "sitewise", Targets: []query.Target{target}}
	k2 := CacheKey{Datasource: "timestream", Targets: []query.Target{target}}

	if k1.String() == k2.String() {
		t.Errorf("String() = %q for both datasources", k1.String())
	}
}

func TestCacheKey_DistinctLastObservation(t *testing.T) {
	target := query.Target{RefID: "A"}
	plain := CacheKey{Datasource: "sitewise", Targets: []query.Target{target}}
	withPrev := CacheKey{Datasource: "sitewise", Targets: []query.Target{target}, LastObservation: true}

	if plain.String() == withPrev.String() {
		t.Errorf("String() = %q with and without last observation", plain.String())
	}
	if !strings.HasSuffix(withPrev.String(), ":lastobs") {
		t.Errorf("String() = %q, want lastobs suffix", withPrev.String())
	}
}
