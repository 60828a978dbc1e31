// Package freedays canonicalizes the holiday/break calendar and answers
// per-date free-day queries. Two distinct algorithms run over the same
// ranges: acceptance during normalization (sort order wins, overlapping
// later entries are dropped) and match resolution for display (shortest
// span wins among all stored overlapping ranges). They must not be
// conflated.
package freedays

import (
	"sort"
	"time"

	"freilog/api/internal/normalize"
)

// Range is one inclusive free-day span. End >= Start always holds after
// normalization.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

// Info describes why a date is free.
type Info struct {
	Type  string `json:"type"` // "holiday" or "weekend"
	Label string `json:"label"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Conflict pairs an input range with the earlier-sorted range it overlaps.
type Conflict struct {
	Range    Range `json:"range"`
	Overlaps Range `json:"overlaps"`
}

// Normalize concatenates primary and fallback, canonicalizes each entry
// (invalid dates dropped, inverted bounds swapped, missing end defaulted to
// start), sorts by (start, end) and greedily accepts only ranges that do
// not overlap an already-accepted one.
func Normalize(primary, fallback []Range) []Range {
	cleaned := cleanRanges(append(append([]Range{}, primary...), fallback...))
	sortRanges(cleaned)

	accepted := []Range{}
	for _, r := range cleaned {
		clash := false
		for _, a := range accepted {
			if overlaps(a, r) {
				clash = true
				break
			}
		}
		if !clash {
			accepted = append(accepted, r)
		}
	}
	return accepted
}

// MergeImported adds imported ranges into existing without ever displacing
// a stored one: existing is normalized first, then cleaned imported
// candidates are accepted in sort order only when they overlap neither a
// stored range nor an already-accepted import. Returns the merged set and
// the number of imports accepted, which is never negative.
func MergeImported(existing, imported []Range) ([]Range, int) {
	merged := Normalize(existing, nil)
	kept := len(merged)

	candidates := cleanRanges(imported)
	sortRanges(candidates)
	for _, r := range candidates {
		clash := false
		for _, a := range merged {
			if overlaps(a, r) {
				clash = true
				break
			}
		}
		if !clash {
			merged = append(merged, r)
		}
	}
	sortRanges(merged)
	return merged, len(merged) - kept
}

// FindMatch returns the range covering date, resolving overlaps by shortest
// span first, then lexicographic (start, end). Acceptance order plays no
// role here.
func FindMatch(date string, ranges []Range) (Range, bool) {
	if !normalize.ValidDate(date) {
		return Range{}, false
	}
	var best Range
	found := false
	for _, r := range ranges {
		if date < r.Start || date > r.End {
			continue
		}
		if !found || betterMatch(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

// Conflicts reports, for each cleaned input range in input order, the first
// earlier range (by sort order) it overlaps. Read-only diagnostic; nothing
// is filtered.
func Conflicts(input []Range) []Conflict {
	cleaned := cleanRanges(input)
	sorted := append([]Range{}, cleaned...)
	sortRanges(sorted)

	position := make(map[Range]int, len(sorted))
	for i, r := range sorted {
		if _, ok := position[r]; !ok {
			position[r] = i
		}
	}

	out := []Conflict{}
	for _, r := range cleaned {
		for _, earlier := range sorted {
			if position[earlier] >= position[r] {
				break
			}
			if overlaps(earlier, r) {
				out = append(out, Conflict{Range: r, Overlaps: earlier})
				break
			}
		}
	}
	return out
}

// IsWeekend reports whether the UTC weekday of date is Saturday or Sunday.
func IsWeekend(date string) bool {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false
	}
	wd := t.UTC().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// GetInfo returns the holiday match for date if any range covers it, else a
// synthetic weekend record, else nil.
func GetInfo(date string, ranges []Range) *Info {
	if match, ok := FindMatch(date, ranges); ok {
		return &Info{Type: "holiday", Label: match.Label, Start: match.Start, End: match.End}
	}
	if IsWeekend(date) {
		return &Info{Type: "weekend", Label: "Wochenende"}
	}
	return nil
}

// IsFree is the boolean projection of GetInfo.
func IsFree(date string, ranges []Range) bool {
	return GetInfo(date, ranges) != nil
}

func cleanRanges(input []Range) []Range {
	out := make([]Range, 0, len(input))
	for _, r := range input {
		start := normalize.Text(r.Start)
		end := normalize.Text(r.End)
		if end == "" {
			end = start
		}
		if !normalize.ValidDate(start) || !normalize.ValidDate(end) {
			continue
		}
		if end < start {
			start, end = end, start
		}
		out = append(out, Range{Start: start, End: end, Label: normalize.Text(r.Label)})
	}
	return out
}

func sortRanges(ranges []Range) {
	sort.SliceStable(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].End < ranges[j].End
	})
}

func overlaps(a, b Range) bool {
	return a.Start <= b.End && b.Start <= a.End
}

func spanDays(r Range) int {
	start, _ := time.Parse("2006-01-02", r.Start)
	end, _ := time.Parse("2006-01-02", r.End)
	return int(end.Sub(start).Hours() / 24)
}

func betterMatch(candidate, current Range) bool {
	cs, bs := spanDays(candidate), spanDays(current)
	if cs != bs {
		return cs < bs
	}
	if candidate.Start != current.Start {
		return candidate.Start < current.Start
	}
	return candidate.End < current.End
}
