// Package document models the two JSON documents the store reconciles: the
// read-only base dataset and the locally persisted overlay, plus the
// derived effective document. All duck-typed input shapes are resolved here
// at the parse boundary; the rest of the system only sees canonical types.
package document

import (
	"encoding/json"
	"time"

	"freilog/api/internal/catalog"
	"freilog/api/internal/daylog"
	"freilog/api/internal/freedays"
	"freilog/api/internal/normalize"
	"freilog/api/internal/timetable"
)

// SchemaVersion marks full-document exports. Import detection requires a
// numeric schemaVersion alongside a well-formed observationCatalog.
const SchemaVersion = 2

// Child is one roster member. Accepts a bare name string at the JSON
// boundary for legacy documents.
type Child struct {
	Name string `json:"name"`
	Note string `json:"note,omitempty"`
}

func (c *Child) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Child{Name: s}
		return nil
	}
	var obj struct {
		Name string `json:"name"`
		Note string `json:"note"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		*c = Child{}
		return nil
	}
	*c = Child(obj)
	return nil
}

// PresetData carries roster, legacy label lists and the timetable setup.
type PresetData struct {
	ChildrenList  []Child                `json:"childrenList"`
	Angebote      []string               `json:"angebote"`
	Observations  []string               `json:"observations"`
	FreeDays      []freedays.Range       `json:"freeDays"`
	Schedule      timetable.Schedule     `json:"schedule"`
	Subjects      []string               `json:"subjects"`
	SubjectColors map[string]string      `json:"subjectColors"`
	LessonTimes   []timetable.LessonTime `json:"lessonTimes"`
}

// Records holds the per-date day entries.
type Records struct {
	EntriesByDate map[string]daylog.Entry `json:"entriesByDate"`
}

// Settings are the overlay-wins scalar settings. The empty export mode is
// "unset" and must stay invisible to the envelope merge, hence omitempty.
type Settings struct {
	ExportMode string `json:"exportMode,omitempty"`
}

// Meta is the document envelope metadata.
type Meta struct {
	SavedAt string `json:"savedAt,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Document is the canonical full document: the base dataset, the effective
// view, and the "all" export all share this shape.
type Document struct {
	SchemaVersion      int             `json:"schemaVersion"`
	Meta               Meta            `json:"meta"`
	AngebotCatalog     []catalog.Entry `json:"angebotCatalog"`
	ObservationCatalog []catalog.Entry `json:"observationCatalog"`
	PresetData         PresetData      `json:"presetData"`
	Records            Records         `json:"records"`
	Settings           Settings        `json:"settings"`
}

// Parse decodes arbitrary JSON into a canonical Document. Catalog arrays
// accept the string-or-object union; everything else is coerced by
// Normalize.
func Parse(raw []byte, now time.Time) (Document, error) {
	var boundary struct {
		SchemaVersion      int                  `json:"schemaVersion"`
		Meta               Meta                 `json:"meta"`
		AngebotCatalog     []catalog.EntryInput `json:"angebotCatalog"`
		ObservationCatalog []catalog.EntryInput `json:"observationCatalog"`
		PresetData         PresetData           `json:"presetData"`
		Records            Records              `json:"records"`
		Settings           Settings             `json:"settings"`
	}
	if err := json.Unmarshal(raw, &boundary); err != nil {
		return Document{}, err
	}
	doc := Document{
		SchemaVersion:      boundary.SchemaVersion,
		Meta:               boundary.Meta,
		AngebotCatalog:     catalog.Normalize(boundary.AngebotCatalog, boundary.PresetData.Angebote, now),
		ObservationCatalog: catalog.Normalize(boundary.ObservationCatalog, boundary.PresetData.Observations, now),
		PresetData:         boundary.PresetData,
		Records:            boundary.Records,
		Settings:           boundary.Settings,
	}
	return Normalize(doc, now), nil
}

// Roster returns the canonical child name list.
func (d Document) Roster() []string {
	names := make([]string, 0, len(d.PresetData.ChildrenList))
	for _, c := range d.PresetData.ChildrenList {
		names = append(names, c.Name)
	}
	return normalize.UniqueSortedStrings(names)
}

// ModulesFor derives the free-time modules for a date from the document's
// own timetable.
func (d Document) ModulesFor(date string) []timetable.Module {
	return timetable.ModulesForDate(date, d.PresetData.Schedule, d.PresetData.LessonTimes)
}

// ContextFor assembles the normalization context for one date.
func (d Document) ContextFor(date string) daylog.Context {
	return daylog.Context{
		Roster:  d.Roster(),
		Modules: d.ModulesFor(date),
		FreeDay: freedays.IsFree(date, d.PresetData.FreeDays),
	}
}

// Normalize canonicalizes the whole document: catalogs, roster, free days,
// timetable, then every day entry against the already-normalized context.
// Idempotent.
func Normalize(doc Document, now time.Time) Document {
	out := doc
	if out.SchemaVersion == 0 {
		out.SchemaVersion = SchemaVersion
	}
	out.AngebotCatalog = catalog.NormalizeEntries(doc.AngebotCatalog, now)
	out.ObservationCatalog = catalog.NormalizeEntries(doc.ObservationCatalog, now)
	out.PresetData.ChildrenList = normalizeChildren(doc.PresetData.ChildrenList)
	out.PresetData.Angebote = normalize.UniqueSortedStrings(doc.PresetData.Angebote)
	out.PresetData.Observations = normalize.UniqueSortedStrings(doc.PresetData.Observations)
	out.PresetData.FreeDays = freedays.Normalize(doc.PresetData.FreeDays, nil)
	out.PresetData.Schedule = timetable.NormalizeSchedule(doc.PresetData.Schedule)
	out.PresetData.Subjects = timetable.NormalizeSubjects(doc.PresetData.Subjects)
	out.PresetData.SubjectColors = timetable.NormalizeColors(doc.PresetData.SubjectColors)
	out.PresetData.LessonTimes = timetable.NormalizeLessonTimes(doc.PresetData.LessonTimes)
	out.Settings.ExportMode = normalizeExportMode(doc.Settings.ExportMode)

	entries := map[string]daylog.Entry{}
	for date, entry := range doc.Records.EntriesByDate {
		if !normalize.ValidDate(date) {
			continue
		}
		entry.Date = date
		entries[date] = daylog.Normalize(entry, out.ContextFor(date))
	}
	out.Records.EntriesByDate = entries
	return out
}

func normalizeChildren(children []Child) []Child {
	byName := map[string]Child{}
	names := []string{}
	for _, c := range children {
		name := normalize.Text(c.Name)
		if name == "" {
			continue
		}
		if existing, ok := byName[name]; ok {
			if existing.Note == "" {
				existing.Note = c.Note
				byName[name] = existing
			}
			continue
		}
		byName[name] = Child{Name: name, Note: c.Note}
		names = append(names, name)
	}
	normalize.SortLocale(names)
	out := make([]Child, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out
}

func normalizeExportMode(mode string) string {
	switch normalize.Key(mode) {
	case "all":
		return "all"
	default:
		return "day"
	}
}
