// Package assign reconciles a per-module offer assignment map against the
// modules currently derived from the timetable. Stale module ids are
// dropped, missing modules gain empty lists, and legacy un-bucketed data is
// funneled into the first module.
package assign

import (
	"freilog/api/internal/normalize"
	"freilog/api/internal/timetable"
)

// Reconcile produces the normalized assignment map for the given modules.
//
// Entries whose module id is no longer derived are dropped (timetable
// changes invalidate stale assignments). Every current module ends up with
// an entry. When no module holds anything and a non-empty fallback list
// exists, the fallback is merged into the first module's list: un-bucketed
// legacy data lands in the first bucket. That default is deliberate, not a
// guess.
func Reconcile(modules []timetable.Module, assignments map[string][]string, fallback []string) map[string][]string {
	out := make(map[string][]string, len(modules))
	if len(modules) == 0 {
		return out
	}

	hasAssignments := false
	for _, m := range modules {
		list := normalize.UniqueSortedStrings(assignments[m.ID])
		out[m.ID] = list
		if len(list) > 0 {
			hasAssignments = true
		}
	}

	if !hasAssignments {
		if flat := normalize.UniqueSortedStrings(fallback); len(flat) > 0 {
			first := modules[0].ID
			out[first] = normalize.UniqueSortedStrings(append(out[first], flat...))
		}
	}
	return out
}

// Flatten returns the sorted unique union of every assignment list plus any
// extras.
func Flatten(assignments map[string][]string, extras []string) []string {
	all := append([]string{}, extras...)
	for _, list := range assignments {
		all = append(all, list...)
	}
	return normalize.UniqueSortedStrings(all)
}

// MergePatch overlays a partial assignment update onto an existing map.
// Each patched key replaces that module's list wholly, not additively.
// Callers re-run Reconcile on the result.
func MergePatch(existing, patch map[string][]string) map[string][]string {
	out := make(map[string][]string, len(existing)+len(patch))
	for id, list := range existing {
		out[id] = append([]string{}, list...)
	}
	for id, list := range patch {
		out[id] = normalize.UniqueSortedStrings(list)
	}
	return out
}

// Redistribute reconciles a changed flat offer list against the existing
// per-module membership: offers no longer selected are removed from
// whichever module holds them, still-selected offers keep their module, and
// newly-added offers land in the first module.
func Redistribute(modules []timetable.Module, assignments map[string][]string, flat []string) map[string][]string {
	if len(modules) == 0 {
		return map[string][]string{}
	}
	selected := make(map[string]struct{})
	for _, offer := range normalize.UniqueSortedStrings(flat) {
		selected[offer] = struct{}{}
	}

	kept := make(map[string][]string, len(modules))
	placed := make(map[string]struct{})
	for _, m := range modules {
		list := []string{}
		for _, offer := range normalize.UniqueSortedStrings(assignments[m.ID]) {
			if _, ok := selected[offer]; !ok {
				continue
			}
			list = append(list, offer)
			placed[offer] = struct{}{}
		}
		kept[m.ID] = list
	}

	first := modules[0].ID
	for offer := range selected {
		if _, ok := placed[offer]; !ok {
			kept[first] = append(kept[first], offer)
		}
	}
	kept[first] = normalize.UniqueSortedStrings(kept[first])
	return Reconcile(modules, kept, nil)
}
