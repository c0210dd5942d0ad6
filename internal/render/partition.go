package render

import "framecast/internal/frame"

// Partition splits r into workers contiguous sub-ranges in worker order.
// Each worker gets len/workers frames and the last one also takes the
// remainder, ending exactly at r.End. When there are fewer frames than
// workers the leading sub-ranges are empty; they are returned so that the
// slice index is the worker index, and callers skip them.
func Partition(r frame.Range, workers int) []frame.Range {
	if workers < 1 {
		workers = 1
	}
	if r.End < r.Start {
		r.End = r.Start
	}

	base := r.Len() / uint32(workers)
	parts := make([]frame.Range, workers)
	for i := range parts {
		start := r.Start + uint32(i)*base
		end := start + base
		if i == workers-1 {
			end = r.End
		}
		parts[i] = frame.Range{Start: start, End: end}
	}
	return parts
}
