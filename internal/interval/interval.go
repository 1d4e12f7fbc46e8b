// Package interval implements the time-interval arithmetic behind the
// availability engine: merging unavailable intervals and computing the free
// complement within a bounded window. All functions are pure; inputs are
// never mutated.
package interval

import (
	"fmt"
	"sort"
	"time"
)

// Span is a half-open time interval [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

// New validates and constructs a Span. Zero-length and inverted spans are
// rejected so they never reach the merge sweep.
func New(start, end time.Time) (Span, error) {
	if !start.Before(end) {
		return Span{}, fmt.Errorf("interval [%s, %s): start must be before end", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Span{Start: start, End: end}, nil
}

// Duration returns the span length.
func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether two half-open spans share at least one time point.
func (s Span) Overlaps(other Span) bool {
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// Clip bounds the span to the given window. The second return value is false
// when the span and window do not intersect.
func (s Span) Clip(window Span) (Span, bool) {
	if !s.Overlaps(window) {
		return Span{}, false
	}
	clipped := s
	if clipped.Start.Before(window.Start) {
		clipped.Start = window.Start
	}
	if clipped.End.After(window.End) {
		clipped.End = window.End
	}
	return clipped, true
}

// Merge collapses overlapping and touching spans into a minimal disjoint set,
// sorted ascending by start. Touching spans (one ending exactly where the
// next starts) are merged. The input may be unordered; the result is
// independent of input order.
func Merge(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := make([]Span, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if next.Start.After(current.End) {
			merged = append(merged, current)
			current = next
			continue
		}
		if next.End.After(current.End) {
			current.End = next.End
		}
	}
	merged = append(merged, current)

	return merged
}

// FreeWithin returns the sub-spans of window not covered by any busy span.
// Busy spans need not be disjoint or sorted; they are clipped to the window
// before the cursor walk. When nothing overlaps the window, the whole window
// is returned as a single free span.
func FreeWithin(window Span, busy []Span) []Span {
	overlapping := make([]Span, 0, len(busy))
	for _, b := range busy {
		if clipped, ok := b.Clip(window); ok {
			overlapping = append(overlapping, clipped)
		}
	}
	if len(overlapping) == 0 {
		return []Span{window}
	}

	sort.Slice(overlapping, func(i, j int) bool {
		return overlapping[i].Start.Before(overlapping[j].Start)
	})

	free := make([]Span, 0, len(overlapping)+1)
	cursor := window.Start
	for _, b := range overlapping {
		if cursor.Before(b.Start) {
			free = append(free, Span{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Span{Start: cursor, End: window.End})
	}

	return free
}

// Longest picks the span with the greatest duration, breaking ties in favour
// of the earliest start. The second return value is false for empty input.
func Longest(spans []Span) (Span, bool) {
	if len(spans) == 0 {
		return Span{}, false
	}
	best := spans[0]
	for _, s := range spans[1:] {
		if s.Duration() > best.Duration() {
			best = s
			continue
		}
		if s.Duration() == best.Duration() && s.Start.Before(best.Start) {
			best = s
		}
	}
	return best, true
}
