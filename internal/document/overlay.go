package document

import (
	"encoding/json"
	"time"

	"freilog/api/internal/catalog"
	"freilog/api/internal/daylog"
	"freilog/api/internal/freedays"
	"freilog/api/internal/merge"
	"freilog/api/internal/timetable"
)

// OverlayMeta records when the overlay was last persisted.
type OverlayMeta struct {
	SavedAt string `json:"savedAt"`
}

// UIState holds the overlay-first UI scalars.
type UIState struct {
	SelectedDate string `json:"selectedDate,omitempty"`
	ExportMode   string `json:"exportMode,omitempty"`
}

// PresetOverrides layers local catalog and preset edits over the base.
// AngeboteAdded and ObservationsAdded union into the base catalogs. The
// pointer fields are full-list overrides: when non-nil they replace the
// corresponding base list wholesale. Renames of base-provided entries are
// only representable this way.
type PresetOverrides struct {
	AngeboteAdded     []catalog.Entry         `json:"angeboteAdded"`
	ObservationsAdded []catalog.Entry         `json:"observationsAdded"`
	Angebote          *[]catalog.Entry        `json:"angebote,omitempty"`
	Observations      *[]catalog.Entry        `json:"observations,omitempty"`
	ChildrenList      *[]Child                `json:"childrenList,omitempty"`
	FreeDays          *[]freedays.Range       `json:"freeDays,omitempty"`
	Schedule          *timetable.Schedule     `json:"schedule,omitempty"`
	Subjects          *[]string               `json:"subjects,omitempty"`
	SubjectColors     *map[string]string      `json:"subjectColors,omitempty"`
	LessonTimes       *[]timetable.LessonTime `json:"lessonTimes,omitempty"`
}

// Overlay is the only structure ever written to storage.
type Overlay struct {
	Meta            OverlayMeta     `json:"meta"`
	Records         Records         `json:"records"`
	PresetOverrides PresetOverrides `json:"presetOverrides"`
	UI              UIState         `json:"ui"`
}

// NewOverlay returns an empty overlay ready for copy-on-write mutation.
func NewOverlay() *Overlay {
	return &Overlay{
		Records: Records{EntriesByDate: map[string]daylog.Entry{}},
	}
}

// ParseOverlay decodes a persisted overlay. Malformed JSON is the caller's
// signal to treat the overlay as absent; this function only reports it.
func ParseOverlay(raw []byte) (*Overlay, error) {
	var o Overlay
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Clone deep-copies the overlay through its JSON form.
func (o *Overlay) Clone() *Overlay {
	if o == nil {
		return NewOverlay()
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return NewOverlay()
	}
	var out Overlay
	if err := json.Unmarshal(raw, &out); err != nil {
		return NewOverlay()
	}
	return &out
}

// BuildEffective combines base and overlay into the derived effective
// document: overlay day entries replace their base counterpart wholesale,
// added catalog entries union in, full-list overrides and UI scalars win.
// The result is re-normalized and disposable; it is never mutated or
// persisted.
func BuildEffective(base Document, overlay *Overlay, now time.Time) Document {
	out := base
	if overlay == nil {
		return Normalize(out, now)
	}

	po := overlay.PresetOverrides
	if po.Angebote != nil {
		out.AngebotCatalog = *po.Angebote
	} else {
		out.AngebotCatalog = append(append([]catalog.Entry{}, base.AngebotCatalog...), po.AngeboteAdded...)
	}
	if po.Observations != nil {
		out.ObservationCatalog = *po.Observations
	} else {
		out.ObservationCatalog = append(append([]catalog.Entry{}, base.ObservationCatalog...), po.ObservationsAdded...)
	}
	if po.ChildrenList != nil {
		out.PresetData.ChildrenList = *po.ChildrenList
	}
	if po.FreeDays != nil {
		out.PresetData.FreeDays = *po.FreeDays
	}
	if po.Schedule != nil {
		out.PresetData.Schedule = *po.Schedule
	}
	if po.Subjects != nil {
		out.PresetData.Subjects = *po.Subjects
	}
	if po.SubjectColors != nil {
		out.PresetData.SubjectColors = *po.SubjectColors
	}
	if po.LessonTimes != nil {
		out.PresetData.LessonTimes = *po.LessonTimes
	}

	// Overlay day entries replace their base counterpart wholesale. The
	// store only ever writes complete entries, and a field-wise merge
	// cannot represent deletion: a cleared day would resurrect the base
	// day's offers and notes through its empty maps.
	entries := map[string]daylog.Entry{}
	for date, entry := range base.Records.EntriesByDate {
		entries[date] = entry
	}
	for date, entry := range overlay.Records.EntriesByDate {
		entries[date] = entry
	}
	out.Records.EntriesByDate = entries

	// The envelope keeps the document merge rule: objects key by key,
	// non-empty overlay scalars win.
	env := envelope{Meta: out.Meta, Settings: out.Settings}
	contrib := envelope{
		Meta:     Meta{SavedAt: overlay.Meta.SavedAt},
		Settings: Settings{ExportMode: overlay.UI.ExportMode},
	}
	if err := merge.Structs(env, contrib, &env); err == nil {
		out.Meta = env.Meta
		out.Settings = env.Settings
	}
	return Normalize(out, now)
}

// envelope is the scalar-settings slice of the document that merges
// recursively instead of being overridden list-wise.
type envelope struct {
	Meta     Meta     `json:"meta"`
	Settings Settings `json:"settings"`
}
