package pagination

import (
	"maps"

	"github.com/Sternrassler/timeseries-pager/pkg/query"
)

// continuation collects the cursors seen for one target.
type continuation struct {
	target  query.Target
	token   string
	entries map[string]string
}

// NextTargets inspects a page and returns the targets to query for the next
// page, or nil when no target has more data.
//
// Every frame whose metadata carries a cursor continues the target sharing
// its refId. The first cursor seen for a target becomes its NextToken; frames
// that also carry an entry id record per-entry cursors in NextTokens. Cursors
// for refIds missing from req are ignored. Targets are returned in the order
// their first frame appears in resp.
func NextTargets(req query.Request, resp *query.Response) []query.Target {
	if resp == nil {
		return nil
	}

	var order []string
	found := make(map[string]*continuation)

	for _, f := range resp.Data {
		token, entryID := f.NextToken()
		if token == "" {
			continue
		}

		c, ok := found[f.RefID]
		if !ok {
			target, exists := req.Target(f.RefID)
			if !exists {
				continue
			}
			c = &continuation{target: target, token: token}
			found[f.RefID] = c
			order = append(order, f.RefID)
		}
		if entryID != "" {
			c.entries = withEntry(c.entries, entryID, token)
		}
	}

	if len(order) == 0 {
		return nil
	}

	targets := make([]query.Target, 0, len(order))
	for _, refID := range order {
		c := found[refID]
		next := c.target.Clone()
		next.NextToken = c.token
		// Entry cursors of the previous page never carry over.
		next.NextTokens = c.entries
		targets = append(targets, next)
	}
	return targets
}

// withEntry returns a copy of entries with entryID mapped to token.
func withEntry(entries map[string]string, entryID, token string) map[string]string {
	out := maps.Clone(entries)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[entryID] = token
	return out
}
