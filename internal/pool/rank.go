package pool

import "sort"

type ranked struct {
	ep   *Endpoint
	info EndpointInfo
}

func snapshot(eps []*Endpoint) []ranked {
	out := make([]ranked, len(eps))
	for i, ep := range eps {
		out[i] = ranked{ep: ep, info: ep.info()}
	}
	return out
}

func unwrap(items []ranked) []*Endpoint {
	out := make([]*Endpoint, len(items))
	for i, item := range items {
		out[i] = item.ep
	}
	return out
}

// rank orders endpoints for a sequential failover pass. While any endpoint has fewer than
// minRequests calls, the least used go first so every endpoint gets tested. After that:
// priority first, broken last, then by ok/fail ratio.
func rank(eps []*Endpoint, minRequests int64) []*Endpoint {
	items := snapshot(eps)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].info.total() < items[j].info.total()
	})
	if len(items) == 0 || items[0].info.total() < minRequests {
		return unwrap(items)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].info, items[j].info
		if a.Priority != b.Priority {
			return a.Priority
		}
		if a.broken() != b.broken() {
			return !a.broken()
		}
		return a.ratio() > b.ratio()
	})
	return unwrap(items)
}

// priorityFirst keeps insertion order within the priority and non-priority groups.
func priorityFirst(eps []*Endpoint) []*Endpoint {
	out := make([]*Endpoint, 0, len(eps))
	for _, ep := range eps {
		if ep.Priority {
			out = append(out, ep)
		}
	}
	for _, ep := range eps {
		if !ep.Priority {
			out = append(out, ep)
		}
	}
	return out
}
