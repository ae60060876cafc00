package aggregation

import "math"

// Bucket is the aggregate state of one (device, interface, metric, period).
type Bucket struct {
	Avg   float64
	Min   float64
	Max   float64
	Count int64
}

// Combine merges incoming into existing the way the stores' upsert does:
// count-weighted average, elementwise min and max, summed count. An empty
// side yields the other unchanged.
func Combine(existing, incoming Bucket) Bucket {
	switch {
	case existing.Count <= 0:
		return incoming
	case incoming.Count <= 0:
		return existing
	}
	n := existing.Count + incoming.Count
	return Bucket{
		Avg:   (existing.Avg*float64(existing.Count) + incoming.Avg*float64(incoming.Count)) / float64(n),
		Min:   math.Min(existing.Min, incoming.Min),
		Max:   math.Max(existing.Max, incoming.Max),
		Count: n,
	}
}
