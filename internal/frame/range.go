package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a half-open interval of frame indices [Start, End).
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Len returns the number of frames in the range.
func (r Range) Len() uint32 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range holds no frames.
func (r Range) Empty() bool {
	return r.Len() == 0
}

// Contains reports whether i is inside the range.
func (r Range) Contains(i uint32) bool {
	return i >= r.Start && i < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// ParseRange parses "start-end", "start:end" or "start,end".
// An end of 0 is kept as-is; callers resolve it against the composition length.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, fmt.Errorf("empty frame range")
	}

	sep := strings.IndexAny(s, "-:,")
	if sep <= 0 || sep == len(s)-1 {
		return Range{}, fmt.Errorf("invalid frame range %q: want start-end", s)
	}

	start, err := strconv.ParseUint(strings.TrimSpace(s[:sep]), 10, 32)
	if err != nil {
		return Range{}, fmt.Errorf("invalid frame range start %q: %w", s[:sep], err)
	}
	end, err := strconv.ParseUint(strings.TrimSpace(s[sep+1:]), 10, 32)
	if err != nil {
		return Range{}, fmt.Errorf("invalid frame range end %q: %w", s[sep+1:], err)
	}

	return Range{Start: uint32(start), End: uint32(end)}, nil
}

// FormatIndices renders a sorted index list as compact runs, e.g. "3, 7-9".
func FormatIndices(indices []uint32) string {
	if len(indices) == 0 {
		return ""
	}

	var b strings.Builder
	runStart := indices[0]
	prev := indices[0]
	flush := func() {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		if runStart == prev {
			b.WriteString(strconv.FormatUint(uint64(runStart), 10))
			return
		}
		fmt.Fprintf(&b, "%d-%d", runStart, prev)
	}

	for _, i := range indices[1:] {
		if i == prev+1 {
			prev = i
			continue
		}
		flush()
		runStart, prev = i, i
	}
	flush()
	return b.String()
}

// FormatRanges renders a list of ranges as compact inclusive runs.
func FormatRanges(rs []Range) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		switch r.Len() {
		case 0:
			continue
		case 1:
			parts = append(parts, strconv.FormatUint(uint64(r.Start), 10))
		default:
			parts = append(parts, fmt.Sprintf("%d-%d", r.Start, r.End-1))
		}
	}
	return strings.Join(parts, ", ")
}
