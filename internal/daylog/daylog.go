// Package daylog canonicalizes single-day records and applies the
// merge-patch update semantics. Every mutation re-derives the entry
// invariants: angebote is the flattened module union, absent children carry
// no observations, and free days force all observations empty.
package daylog

import (
	"encoding/json"

	"freilog/api/internal/assign"
	"freilog/api/internal/normalize"
	"freilog/api/internal/timetable"
)

// MaxAngebotNotesLen caps the free-text note attached to the day's offers.
const MaxAngebotNotesLen = 2000

// Entry is one calendar day's record, keyed by its YYYY-MM-DD date.
type Entry struct {
	Date             string              `json:"date"`
	Angebote         []string            `json:"angebote"`
	AngebotModules   map[string][]string `json:"angebotModules"`
	AngebotNotes     string              `json:"angebotNotes"`
	Observations     map[string][]string `json:"observations"`
	ObservationNotes map[string]string   `json:"observationNotes"`
	AbsentChildIDs   []string            `json:"absentChildIds"`
	Notes            string              `json:"notes"`
}

// Context carries the live surroundings an entry is normalized against.
type Context struct {
	Roster  []string
	Modules []timetable.Module
	FreeDay bool
}

// ObservationPatch is the union type accepted for per-child observation
// updates: a bare string tag, a tag array, {preset, tags}, or
// {items, replace}. The shape is resolved once, here at the JSON boundary.
type ObservationPatch struct {
	Items   []string
	Replace bool
}

func (p *ObservationPatch) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = ObservationPatch{Items: []string{s}}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = ObservationPatch{Items: list}
		return nil
	}
	var obj struct {
		Preset      string   `json:"preset"`
		Tags        []string `json:"tags"`
		Items       []string `json:"items"`
		Replace     bool     `json:"replace"`
		ReplaceTags bool     `json:"replaceTags"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		*p = ObservationPatch{}
		return nil
	}
	items := append([]string{}, obj.Items...)
	items = append(items, obj.Tags...)
	if obj.Preset != "" {
		items = append(items, obj.Preset)
	}
	*p = ObservationPatch{Items: items, Replace: obj.Replace || obj.ReplaceTags}
	return nil
}

// Patch is the partial-update shape accepted by the repository layer. Nil
// fields are untouched.
type Patch struct {
	Angebote         *[]string                   `json:"angebote,omitempty"`
	AngebotModules   map[string][]string         `json:"angebotModules,omitempty"`
	AngebotNotes     *string                     `json:"angebotNotes,omitempty"`
	Observations     map[string]ObservationPatch `json:"observations,omitempty"`
	ObservationNotes map[string]*string          `json:"observationNotes,omitempty"`
	AbsentChildIDs   *[]string                   `json:"absentChildIds,omitempty"`
	Notes            *string                     `json:"notes,omitempty"`
}

// NewEntry returns the default empty record for a date, its observation map
// seeded from the roster.
func NewEntry(date string, roster []string) Entry {
	entry := Entry{
		Date:             date,
		Angebote:         []string{},
		AngebotModules:   map[string][]string{},
		Observations:     map[string][]string{},
		ObservationNotes: map[string]string{},
		AbsentChildIDs:   []string{},
	}
	for _, child := range normalize.UniqueSortedStrings(roster) {
		entry.Observations[child] = []string{}
	}
	return entry
}

// Normalize canonicalizes an entry against its context without applying any
// patch. Unknown children are dropped, roster children are seeded, module
// assignments are reconciled and flattened, and the absence/free-day rules
// are enforced.
func Normalize(entry Entry, ctx Context) Entry {
	out := entry
	out.AngebotModules = assign.Reconcile(ctx.Modules, entry.AngebotModules, entry.Angebote)
	if len(ctx.Modules) > 0 {
		out.Angebote = assign.Flatten(out.AngebotModules, nil)
	} else {
		out.Angebote = normalize.UniqueSortedStrings(entry.Angebote)
	}
	out.AngebotNotes = capRunes(entry.AngebotNotes, MaxAngebotNotesLen)
	out.Notes = entry.Notes
	out.AbsentChildIDs = restrictToRoster(entry.AbsentChildIDs, ctx.Roster)
	out.Observations = normalizeObservations(entry.Observations, ctx.Roster)
	out.ObservationNotes = normalizeObservationNotes(entry.ObservationNotes, ctx.Roster)
	return sanitize(out, ctx)
}

// ApplyPatch merges a partial update into an entry and re-derives every
// invariant in one pass. This is the single mutation path for day records.
func ApplyPatch(entry Entry, patch Patch, ctx Context) Entry {
	out := entry

	switch {
	case patch.AngebotModules != nil:
		merged := assign.MergePatch(entry.AngebotModules, patch.AngebotModules)
		out.AngebotModules = assign.Reconcile(ctx.Modules, merged, nil)
		out.Angebote = assign.Flatten(out.AngebotModules, nil)
		if len(ctx.Modules) == 0 {
			out.Angebote = normalize.UniqueSortedStrings(entry.Angebote)
		}
	case patch.Angebote != nil && len(ctx.Modules) > 0:
		out.AngebotModules = assign.Redistribute(ctx.Modules, entry.AngebotModules, *patch.Angebote)
		out.Angebote = assign.Flatten(out.AngebotModules, nil)
	case patch.Angebote != nil:
		out.AngebotModules = map[string][]string{}
		out.Angebote = normalize.UniqueSortedStrings(*patch.Angebote)
	case len(ctx.Modules) > 0:
		out.AngebotModules = assign.Reconcile(ctx.Modules, entry.AngebotModules, entry.Angebote)
		out.Angebote = assign.Flatten(out.AngebotModules, nil)
	default:
		out.AngebotModules = map[string][]string{}
		out.Angebote = normalize.UniqueSortedStrings(entry.Angebote)
	}

	if patch.AngebotNotes != nil {
		out.AngebotNotes = *patch.AngebotNotes
	}
	out.AngebotNotes = capRunes(out.AngebotNotes, MaxAngebotNotesLen)

	if patch.Notes != nil {
		out.Notes = *patch.Notes
	}

	out.Observations = normalizeObservations(entry.Observations, ctx.Roster)
	for child, obs := range patch.Observations {
		name := normalize.Text(child)
		if _, ok := out.Observations[name]; !ok {
			// Stale target: the child left the roster, no-op safely.
			continue
		}
		items := normalize.UniqueSortedStrings(obs.Items)
		if obs.Replace {
			out.Observations[name] = items
		} else {
			out.Observations[name] = normalize.UniqueSortedStrings(append(out.Observations[name], items...))
		}
	}

	out.ObservationNotes = normalizeObservationNotes(entry.ObservationNotes, ctx.Roster)
	for child, note := range patch.ObservationNotes {
		name := normalize.Text(child)
		if !rosterHas(ctx.Roster, name) {
			continue
		}
		if note == nil || normalize.Text(*note) == "" {
			delete(out.ObservationNotes, name)
			continue
		}
		out.ObservationNotes[name] = *note
	}

	if patch.AbsentChildIDs != nil {
		out.AbsentChildIDs = restrictToRoster(*patch.AbsentChildIDs, ctx.Roster)
	} else {
		out.AbsentChildIDs = restrictToRoster(entry.AbsentChildIDs, ctx.Roster)
	}

	return sanitize(out, ctx)
}

// sanitize enforces the precedence rules that close every update: absent
// children lose their observations, and a free day clears observations for
// the whole roster.
func sanitize(entry Entry, ctx Context) Entry {
	if ctx.FreeDay {
		for child := range entry.Observations {
			entry.Observations[child] = []string{}
		}
		return entry
	}
	for _, child := range entry.AbsentChildIDs {
		if _, ok := entry.Observations[child]; ok {
			entry.Observations[child] = []string{}
		}
	}
	return entry
}

func normalizeObservations(observations map[string][]string, roster []string) map[string][]string {
	out := map[string][]string{}
	for _, child := range normalize.UniqueSortedStrings(roster) {
		out[child] = normalize.UniqueSortedStrings(observations[child])
	}
	return out
}

func normalizeObservationNotes(notes map[string]string, roster []string) map[string]string {
	out := map[string]string{}
	for child, note := range notes {
		name := normalize.Text(child)
		if !rosterHas(roster, name) || normalize.Text(note) == "" {
			continue
		}
		out[name] = note
	}
	return out
}

func restrictToRoster(names, roster []string) []string {
	out := []string{}
	for _, name := range normalize.UniqueSortedStrings(names) {
		if rosterHas(roster, name) {
			out = append(out, name)
		}
	}
	return out
}

func rosterHas(roster []string, name string) bool {
	for _, child := range roster {
		if normalize.Text(child) == name {
			return true
		}
	}
	return false
}

func capRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
