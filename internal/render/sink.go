package render

import (
	"fmt"
	"sort"

	"framecast/internal/frame"
)

// Ingester receives frames in ascending index order.
type Ingester interface {
	Ingest(f frame.Captured) error
}

// OrderingError reports frames that could not be delivered in order.
type OrderingError struct {
	Missing    []frame.Range
	Duplicates []uint32
	OutOfRange []uint32
}

func (e *OrderingError) Error() string {
	switch {
	case len(e.Duplicates) > 0:
		return fmt.Sprintf("duplicate frames: %s", frame.FormatIndices(e.Duplicates))
	case len(e.OutOfRange) > 0:
		return fmt.Sprintf("frames outside render range: %s", frame.FormatIndices(e.OutOfRange))
	default:
		return fmt.Sprintf("missing frames: %s", frame.FormatRanges(e.Missing))
	}
}

// Sink is a reorder buffer. Frames arrive in any order and leave for the
// ingester strictly in index order, each exactly once. A Sink is used
// from one goroutine.
type Sink struct {
	r       frame.Range
	dst     Ingester
	pending map[uint32]frame.Captured
	next    uint32
}

// NewSink returns a sink expecting every index of r.
func NewSink(r frame.Range, dst Ingester) *Sink {
	return &Sink{
		r:       r,
		dst:     dst,
		pending: make(map[uint32]frame.Captured),
		next:    r.Start,
	}
}

// Push buffers f and forwards the contiguous run starting at the next
// expected index. Indices outside the range or already seen are rejected.
func (s *Sink) Push(f frame.Captured) error {
	if !s.r.Contains(f.Index) {
		return &OrderingError{OutOfRange: []uint32{f.Index}}
	}
	if _, dup := s.pending[f.Index]; dup || f.Index < s.next {
		return &OrderingError{Duplicates: []uint32{f.Index}}
	}

	s.pending[f.Index] = f
	for {
		next, ok := s.pending[s.next]
		if !ok {
			return nil
		}
		delete(s.pending, s.next)
		if err := s.dst.Ingest(next); err != nil {
			return err
		}
		s.next++
	}
}

// Finalize fails when any index of the range was never delivered.
func (s *Sink) Finalize() error {
	if s.next == s.r.End {
		return nil
	}
	return &OrderingError{Missing: s.Missing()}
}

// Forwarded is the number of frames handed to the ingester.
func (s *Sink) Forwarded() uint32 { return s.next - s.r.Start }

// Buffered is the number of frames waiting for an earlier index.
func (s *Sink) Buffered() int { return len(s.pending) }

// Missing lists the indices neither forwarded nor buffered, as ranges.
func (s *Sink) Missing() []frame.Range {
	held := make([]uint32, 0, len(s.pending))
	for i := range s.pending {
		held = append(held, i)
	}
	sort.Slice(held, func(a, b int) bool { return held[a] < held[b] })

	var missing []frame.Range
	cursor := s.next
	for _, i := range held {
		if i > cursor {
			missing = append(missing, frame.Range{Start: cursor, End: i})
		}
		cursor = i + 1
	}
	if cursor < s.r.End {
		missing = append(missing, frame.Range{Start: cursor, End: s.r.End})
	}
	return missing
}
