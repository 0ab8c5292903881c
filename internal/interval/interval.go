// Package interval provides half-open time intervals and an immutable,
// sorted interval set.
//
// Every Set operation returns a new Set; the receiver is never modified.
// Sets are normalised on construction: empty intervals are dropped and
// overlapping or touching intervals are merged, so two sets covering the
// same instants always have identical Intervals().
package interval

import (
	"fmt"
	"slices"
	"time"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New returns the interval [start, end).
func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Duration returns End - Start. Negative for inverted intervals.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// IsEmpty reports whether the interval contains no instants.
func (i Interval) IsEmpty() bool {
	return !i.Start.Before(i.End)
}

// Overlaps reports whether the two intervals share at least one instant:
// i.Start < o.End && o.Start < i.End.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Encloses reports whether o lies entirely within i (bounds inclusive).
func (i Interval) Encloses(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Equal reports whether both bounds are the same instants.
func (i Interval) Equal(o Interval) bool {
	return i.Start.Equal(o.Start) && i.End.Equal(o.End)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.UTC().Format(time.RFC3339Nano), i.End.UTC().Format(time.RFC3339Nano))
}

// Set is an immutable, sorted list of disjoint, non-touching intervals.
// The zero value is the empty set.
type Set struct {
	ivs []Interval
}

// Of builds a normalised Set from arbitrary intervals.
func Of(ivs ...Interval) Set {
	kept := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if !iv.IsEmpty() {
			kept = append(kept, iv)
		}
	}
	if len(kept) == 0 {
		return Set{}
	}

	slices.SortFunc(kept, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	merged := kept[:1]
	for _, iv := range kept[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return Set{ivs: merged}
}

// Intervals returns a copy of the set's intervals in ascending order.
func (s Set) Intervals() []Interval {
	return slices.Clone(s.ivs)
}

// Len returns the number of disjoint intervals.
func (s Set) Len() int {
	return len(s.ivs)
}

// IsEmpty reports whether the set covers no instants.
func (s Set) IsEmpty() bool {
	return len(s.ivs) == 0
}

// Union returns the instants covered by s or o.
func (s Set) Union(o Set) Set {
	all := make([]Interval, 0, len(s.ivs)+len(o.ivs))
	all = append(all, s.ivs...)
	all = append(all, o.ivs...)
	return Of(all...)
}

// Subtract returns s with every instant of iv removed.
func (s Set) Subtract(iv Interval) Set {
	if iv.IsEmpty() || s.IsEmpty() {
		return s
	}

	out := make([]Interval, 0, len(s.ivs)+1)
	for _, a := range s.ivs {
		if !a.Overlaps(iv) {
			out = append(out, a)
			continue
		}
		if a.Start.Before(iv.Start) {
			out = append(out, Interval{Start: a.Start, End: iv.Start})
		}
		if iv.End.Before(a.End) {
			out = append(out, Interval{Start: iv.End, End: a.End})
		}
	}
	return Set{ivs: out}
}

// SubtractSet returns s with every instant covered by o removed.
func (s Set) SubtractSet(o Set) Set {
	out := s
	for _, iv := range o.ivs {
		out = out.Subtract(iv)
	}
	return out
}

// Gaps returns the parts of within that s does not cover.
func (s Set) Gaps(within Interval) Set {
	return Of(within).SubtractSet(s)
}

// Longer keeps only the intervals whose duration is strictly greater than d.
func (s Set) Longer(d time.Duration) Set {
	out := make([]Interval, 0, len(s.ivs))
	for _, iv := range s.ivs {
		if iv.Duration() > d {
			out = append(out, iv)
		}
	}
	return Set{ivs: out}
}

// Covers reports whether every instant of iv is in s.
func (s Set) Covers(iv Interval) bool {
	if iv.IsEmpty() {
		return true
	}
	return Of(iv).SubtractSet(s).IsEmpty()
}

// Span returns the smallest interval containing the whole set.
// ok is false for the empty set.
func (s Set) Span() (span Interval, ok bool) {
	if s.IsEmpty() {
		return Interval{}, false
	}
	return Interval{Start: s.ivs[0].Start, End: s.ivs[len(s.ivs)-1].End}, true
}
