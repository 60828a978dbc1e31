package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"freilog/api/internal/catalog"
	"freilog/api/internal/config"
	"freilog/api/internal/daylog"
	"freilog/api/internal/document"
	"freilog/api/internal/export"
	"freilog/api/internal/freedays"
	"freilog/api/internal/normalize"
	"freilog/api/internal/search"
	"freilog/api/internal/snapshots"
	"freilog/api/internal/store"
	"freilog/api/internal/timetable"
)

// CatalogKind selects one of the two label catalogs.
const (
	KindAngebote     = "angebote"
	KindObservations = "observations"
)

// StateView is the read projection served to clients.
type StateView struct {
	Effective        document.Document `json:"effective"`
	SelectedDate     string            `json:"selectedDate"`
	ExportMode       string            `json:"exportMode"`
	OrphanedSubjects []string          `json:"orphanedSubjects"`
}

// RenameOutcome reports a catalog rename command.
type RenameOutcome struct {
	Status string        `json:"status"`
	Entry  catalog.Entry `json:"entry"`
}

// ImportOutcome reports an import command. Unrecognized payloads are
// ignored, never partially applied.
type ImportOutcome struct {
	Status string `json:"status"` // "day", "full" or "ignored"
	Date   string `json:"date,omitempty"`
}

// HistoryProvider lists overlay snapshots, newest first.
type HistoryProvider interface {
	History(limit int) ([]snapshots.Commit, error)
}

// Service applies every command as one transactional overlay mutation.
type Service struct {
	cfg    config.Config
	store  *store.Store
	search *search.Service
	hist   HistoryProvider
	clock  func() time.Time
}

// New wires the service. searchSvc and hist may be nil.
func New(cfg config.Config, st *store.Store, searchSvc *search.Service, hist HistoryProvider) *Service {
	return &Service{
		cfg:    cfg,
		store:  st,
		search: searchSvc,
		hist:   hist,
		clock:  time.Now,
	}
}

// Init brings the store to Ready and seeds the search index. The base
// fetch is the one fatal path: its error propagates.
func (s *Service) Init(ctx context.Context) error {
	if err := s.store.Init(ctx); err != nil {
		return err
	}
	s.reindex()
	s.store.Subscribe(s.reindex)
	return nil
}

func (s *Service) reindex() {
	if s.search == nil {
		return
	}
	eff, err := s.store.Effective()
	if err != nil {
		return
	}
	s.search.Index(eff.AngebotCatalog, eff.ObservationCatalog)
}

// Ping reports storage reachability for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// State projects the effective document plus UI scalars and diagnostics.
func (s *Service) State() (StateView, error) {
	state, err := s.store.State()
	if err != nil {
		return StateView{}, err
	}
	preset := state.Effective.PresetData
	return StateView{
		Effective:        state.Effective,
		SelectedDate:     state.SelectedDate,
		ExportMode:       state.ExportMode,
		OrphanedSubjects: timetable.OrphanedSubjects(preset.Schedule, preset.SubjectColors, preset.Subjects),
	}, nil
}

// Day returns the entry for a date, lazily defaulting to an empty record
// seeded from the roster. The default is not persisted by reading.
func (s *Service) Day(date string) (daylog.Entry, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return daylog.Entry{}, err
	}
	if !normalize.ValidDate(date) {
		return daylog.Entry{}, domainError(http.StatusUnprocessableEntity, "INVALID_DATE", "date must be YYYY-MM-DD", nil)
	}
	if entry, ok := eff.Records.EntriesByDate[date]; ok {
		return entry, nil
	}
	return daylog.Normalize(daylog.NewEntry(date, eff.Roster()), eff.ContextFor(date)), nil
}

// SubmitPatch is the single day mutation entry point; debouncing is the
// caller's concern. The patch applies against the effective entry seen
// inside the store lock, so concurrent patches to the same date stack
// instead of overwriting each other.
func (s *Service) SubmitPatch(ctx context.Context, date string, patch daylog.Patch) (daylog.Entry, error) {
	if !normalize.ValidDate(date) {
		return daylog.Entry{}, domainError(http.StatusUnprocessableEntity, "INVALID_DATE", "date must be YYYY-MM-DD", nil)
	}
	err := s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		current, ok := eff.Records.EntriesByDate[date]
		if !ok {
			current = daylog.Normalize(daylog.NewEntry(date, eff.Roster()), eff.ContextFor(date))
		}
		o.Records.EntriesByDate[date] = daylog.ApplyPatch(current, patch, eff.ContextFor(date))
		return nil
	})
	if err != nil {
		return daylog.Entry{}, err
	}
	return s.Day(date)
}

// ClearDay resets a date to its default empty record.
func (s *Service) ClearDay(ctx context.Context, date string) error {
	if !normalize.ValidDate(date) {
		return domainError(http.StatusUnprocessableEntity, "INVALID_DATE", "date must be YYYY-MM-DD", nil)
	}
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		o.Records.EntriesByDate[date] = daylog.NewEntry(date, eff.Roster())
		return nil
	})
}

// Catalog returns the effective catalog of one kind.
func (s *Service) Catalog(kind string) ([]catalog.Entry, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, err
	}
	return catalogOf(eff, kind)
}

func catalogOf(eff document.Document, kind string) ([]catalog.Entry, error) {
	switch kind {
	case KindAngebote:
		return eff.AngebotCatalog, nil
	case KindObservations:
		return eff.ObservationCatalog, nil
	default:
		return nil, domainError(http.StatusNotFound, "UNKNOWN_CATALOG", "unknown catalog kind", nil)
	}
}

// errNoChange aborts an overlay update that turned out to be a no-op; the
// store persists nothing and the caller maps it to a non-error outcome.
var errNoChange = errors.New("app: no change")

// UpsertCatalogEntry adds a label or unions groups into an existing one.
func (s *Service) UpsertCatalogEntry(ctx context.Context, kind, text string, groups []string) (catalog.Entry, error) {
	if normalize.Text(text) == "" {
		return catalog.Entry{}, domainError(http.StatusUnprocessableEntity, "INVALID_TEXT", "text is required", nil)
	}
	var entry catalog.Entry
	err := s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		entries, err := catalogOf(eff, kind)
		if err != nil {
			return err
		}
		var updated []catalog.Entry
		updated, entry, _ = catalog.Upsert(entries, text, groups, s.clock())
		setCatalogOverride(o, kind, updated)
		return nil
	})
	if err != nil {
		return catalog.Entry{}, err
	}
	return entry, nil
}

// RenameCatalogEntry renames or merges a catalog entry and rewrites every
// day reference in the same overlay mutation. A caller can never observe
// the catalog change without the day rewrite.
func (s *Service) RenameCatalogEntry(ctx context.Context, kind, currentText, nextText string, groups []string) (RenameOutcome, error) {
	var outcome RenameOutcome
	err := s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		entries, err := catalogOf(eff, kind)
		if err != nil {
			return err
		}
		updated, result := catalog.Rename(entries, currentText, nextText, groups, s.clock())
		outcome = RenameOutcome{Status: string(result.Status), Entry: result.Entry}
		if result.Status == catalog.RenameInvalid {
			return errNoChange
		}
		setCatalogOverride(o, kind, updated)
		for _, oldKey := range result.OldKeys {
			rewriteDayReferences(o, eff, kind, oldKey, result.Entry.Text)
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return outcome, nil
	}
	if err != nil {
		return RenameOutcome{}, err
	}
	return outcome, nil
}

// RemoveCatalogEntry deletes a label and strips its references from every
// day. Days themselves survive: this is a reference strip, not a cascade
// delete.
func (s *Service) RemoveCatalogEntry(ctx context.Context, kind, text string) error {
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		entries, err := catalogOf(eff, kind)
		if err != nil {
			return err
		}
		updated, oldKey, ok := catalog.Remove(entries, text)
		if !ok {
			return domainError(http.StatusNotFound, "NOT_FOUND", "catalog entry not found", nil)
		}
		setCatalogOverride(o, kind, updated)
		rewriteDayReferences(o, eff, kind, oldKey, "")
		return nil
	})
}

// TopUsed returns the most referenced labels of a kind.
func (s *Service) TopUsed(kind string, limit int) ([]string, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, err
	}
	return search.TopUsed(kind, eff.Records.EntriesByDate, limit), nil
}

// SearchCatalog queries both catalogs.
func (s *Service) SearchCatalog(query string, limit int) ([]search.Result, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, err
	}
	if s.search == nil {
		return []search.Result{}, nil
	}
	return s.search.Search(query, eff.AngebotCatalog, eff.ObservationCatalog, limit), nil
}

// Children returns the effective roster.
func (s *Service) Children() ([]document.Child, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, err
	}
	return eff.PresetData.ChildrenList, nil
}

// AddChild appends a roster member.
func (s *Service) AddChild(ctx context.Context, name string) error {
	clean := normalize.Text(name)
	if clean == "" {
		return domainError(http.StatusUnprocessableEntity, "INVALID_NAME", "name is required", nil)
	}
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		next := append(append([]document.Child{}, eff.PresetData.ChildrenList...), document.Child{Name: clean})
		o.PresetOverrides.ChildrenList = &next
		return nil
	})
}

// RenameChild renames a roster member and rewrites every day's observation
// keys and absence entries, merging lists when the new name already has
// entries, all in one mutation.
func (s *Service) RenameChild(ctx context.Context, oldName, newName string) error {
	oldClean := normalize.Text(oldName)
	newClean := normalize.Text(newName)
	if oldClean == "" || newClean == "" {
		return domainError(http.StatusUnprocessableEntity, "INVALID_NAME", "both names are required", nil)
	}
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		found := false
		next := make([]document.Child, 0, len(eff.PresetData.ChildrenList))
		for _, c := range eff.PresetData.ChildrenList {
			if c.Name == oldClean {
				c.Name = newClean
				found = true
			}
			next = append(next, c)
		}
		if !found {
			return domainError(http.StatusNotFound, "NOT_FOUND", "child not found", nil)
		}
		o.PresetOverrides.ChildrenList = &next
		for date, entry := range eff.Records.EntriesByDate {
			o.Records.EntriesByDate[date] = daylog.RenameChild(entry, oldClean, newClean)
		}
		return nil
	})
}

// RemoveChild drops a roster member and strips their references from every
// day record.
func (s *Service) RemoveChild(ctx context.Context, name string) error {
	clean := normalize.Text(name)
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		next := make([]document.Child, 0, len(eff.PresetData.ChildrenList))
		found := false
		for _, c := range eff.PresetData.ChildrenList {
			if c.Name == clean {
				found = true
				continue
			}
			next = append(next, c)
		}
		if !found {
			return domainError(http.StatusNotFound, "NOT_FOUND", "child not found", nil)
		}
		o.PresetOverrides.ChildrenList = &next
		for date, entry := range eff.Records.EntriesByDate {
			o.Records.EntriesByDate[date] = daylog.RemoveChild(entry, clean)
		}
		return nil
	})
}

// SetChildNote replaces a roster member's free-text note.
func (s *Service) SetChildNote(ctx context.Context, name, note string) error {
	clean := normalize.Text(name)
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		next := make([]document.Child, 0, len(eff.PresetData.ChildrenList))
		found := false
		for _, c := range eff.PresetData.ChildrenList {
			if c.Name == clean {
				c.Note = note
				found = true
			}
			next = append(next, c)
		}
		if !found {
			return domainError(http.StatusNotFound, "NOT_FOUND", "child not found", nil)
		}
		o.PresetOverrides.ChildrenList = &next
		return nil
	})
}

// FreeDays returns the effective normalized range set.
func (s *Service) FreeDays() ([]freedays.Range, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, err
	}
	return eff.PresetData.FreeDays, nil
}

// SetFreeDays replaces the free-day calendar.
func (s *Service) SetFreeDays(ctx context.Context, ranges []freedays.Range) error {
	next := freedays.Normalize(ranges, nil)
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		o.PresetOverrides.FreeDays = &next
		return nil
	})
}

// ImportICS merges all-day events from an ICS calendar into the free-day
// set. Existing ranges win on overlap: an imported range touching any
// stored one is dropped, never the other way around.
func (s *Service) ImportICS(ctx context.Context, body []byte) (int, error) {
	parsed, err := freedays.ParseICS(body)
	if err != nil {
		return 0, domainError(http.StatusUnprocessableEntity, "INVALID_ICS", "calendar could not be parsed", nil)
	}
	added := 0
	err = s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		var next []freedays.Range
		next, added = freedays.MergeImported(eff.PresetData.FreeDays, parsed)
		o.PresetOverrides.FreeDays = &next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// FreeDayInfo answers why a date is free, if it is.
func (s *Service) FreeDayInfo(date string) (*freedays.Info, error) {
	if !normalize.ValidDate(date) {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_DATE", "date must be YYYY-MM-DD", nil)
	}
	ranges, err := s.FreeDays()
	if err != nil {
		return nil, err
	}
	return freedays.GetInfo(date, ranges), nil
}

// FreeDayConflicts reports overlapping stored ranges for diagnostics.
func (s *Service) FreeDayConflicts() ([]freedays.Conflict, error) {
	ranges, err := s.FreeDays()
	if err != nil {
		return nil, err
	}
	return freedays.Conflicts(ranges), nil
}

// Schedule returns the effective weekly grid.
func (s *Service) Schedule() (timetable.Schedule, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, err
	}
	return eff.PresetData.Schedule, nil
}

// SetSchedule replaces the weekly grid.
func (s *Service) SetSchedule(ctx context.Context, grid timetable.Schedule) error {
	next := timetable.NormalizeSchedule(grid)
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		o.PresetOverrides.Schedule = &next
		return nil
	})
}

// LessonTimes returns the effective period table.
func (s *Service) LessonTimes() ([]timetable.LessonTime, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, err
	}
	return eff.PresetData.LessonTimes, nil
}

// SetLessonTimes replaces the period table, slot-by-slot defaulted.
func (s *Service) SetLessonTimes(ctx context.Context, slots []timetable.LessonTime) error {
	next := timetable.NormalizeLessonTimes(slots)
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		o.PresetOverrides.LessonTimes = &next
		return nil
	})
}

// Subjects returns the effective subject list and color map.
func (s *Service) Subjects() ([]string, map[string]string, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, nil, err
	}
	return eff.PresetData.Subjects, eff.PresetData.SubjectColors, nil
}

// SetSubjects replaces the subject list and color map.
func (s *Service) SetSubjects(ctx context.Context, subjects []string, colors map[string]string) error {
	nextSubjects := timetable.NormalizeSubjects(subjects)
	nextColors := timetable.NormalizeColors(colors)
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		o.PresetOverrides.Subjects = &nextSubjects
		o.PresetOverrides.SubjectColors = &nextColors
		return nil
	})
}

// ModulesFor derives the free-time modules for a date.
func (s *Service) ModulesFor(date string) ([]timetable.Module, error) {
	eff, err := s.store.Effective()
	if err != nil {
		return nil, err
	}
	if !normalize.ValidDate(date) {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_DATE", "date must be YYYY-MM-DD", nil)
	}
	return eff.ModulesFor(date), nil
}

// SetUI stores the UI scalars overlay-first.
func (s *Service) SetUI(ctx context.Context, selectedDate, exportMode string) error {
	if selectedDate != "" && !normalize.ValidDate(selectedDate) {
		return domainError(http.StatusUnprocessableEntity, "INVALID_DATE", "selectedDate must be YYYY-MM-DD", nil)
	}
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		if selectedDate != "" {
			o.UI.SelectedDate = selectedDate
		}
		if exportMode != "" {
			o.UI.ExportMode = exportMode
		}
		return nil
	})
}

// ExportDay produces the single-day JSON artifact.
func (s *Service) ExportDay(date string) (export.Result, error) {
	entry, err := s.Day(date)
	if err != nil {
		return export.Result{}, err
	}
	return export.Day(date, entry)
}

// ExportAll produces the full-document JSON artifact.
func (s *Service) ExportAll() (export.Result, error) {
	state, err := s.store.State()
	if err != nil {
		return export.Result{}, err
	}
	return export.All(state.Effective, state.SelectedDate)
}

// ExportDayPDF renders the printable day sheet.
func (s *Service) ExportDayPDF(date string) (export.Result, error) {
	entry, err := s.Day(date)
	if err != nil {
		return export.Result{}, err
	}
	eff, err := s.store.Effective()
	if err != nil {
		return export.Result{}, err
	}
	info, err := s.FreeDayInfo(date)
	if err != nil {
		return export.Result{}, err
	}
	return export.DayPDF(export.DaySheet{
		Date:     date,
		Entry:    entry,
		Modules:  eff.ModulesFor(date),
		FreeDay:  info,
		Children: eff.Roster(),
	})
}

// Import applies a day or full-document payload. Unrecognized payloads are
// ignored without touching state.
func (s *Service) Import(ctx context.Context, raw []byte) (ImportOutcome, error) {
	switch export.Classify(raw) {
	case export.ImportDay:
		payload, err := export.ParseDay(raw)
		if err != nil {
			return ImportOutcome{Status: "ignored"}, nil
		}
		if _, err := s.SubmitPatch(ctx, payload.Date, patchFromEntry(payload.Entry)); err != nil {
			return ImportOutcome{}, err
		}
		return ImportOutcome{Status: "day", Date: payload.Date}, nil
	case export.ImportFull:
		doc, err := export.ParseFull(raw, s.clock())
		if err != nil {
			return ImportOutcome{Status: "ignored"}, nil
		}
		if err := s.importFull(ctx, doc); err != nil {
			return ImportOutcome{}, err
		}
		return ImportOutcome{Status: "full"}, nil
	default:
		return ImportOutcome{Status: "ignored"}, nil
	}
}

// importFull merges a re-normalized full document in by overriding every
// preset list and writing every imported day entry into the overlay.
func (s *Service) importFull(ctx context.Context, doc document.Document) error {
	return s.store.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		o.PresetOverrides.Angebote = &doc.AngebotCatalog
		o.PresetOverrides.Observations = &doc.ObservationCatalog
		o.PresetOverrides.ChildrenList = &doc.PresetData.ChildrenList
		o.PresetOverrides.FreeDays = &doc.PresetData.FreeDays
		o.PresetOverrides.Schedule = &doc.PresetData.Schedule
		o.PresetOverrides.Subjects = &doc.PresetData.Subjects
		o.PresetOverrides.SubjectColors = &doc.PresetData.SubjectColors
		o.PresetOverrides.LessonTimes = &doc.PresetData.LessonTimes
		for date, entry := range doc.Records.EntriesByDate {
			o.Records.EntriesByDate[date] = entry
		}
		if doc.Settings.ExportMode != "" {
			o.UI.ExportMode = doc.Settings.ExportMode
		}
		return nil
	})
}

// History lists overlay snapshots, newest first.
func (s *Service) History(limit int) ([]snapshots.Commit, error) {
	if s.hist == nil {
		return []snapshots.Commit{}, nil
	}
	commits, err := s.hist.History(limit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return commits, nil
}

// patchFromEntry converts an imported day entry into a replace-everything
// patch, so the import flows through the standard sanitization path.
func patchFromEntry(entry daylog.Entry) daylog.Patch {
	angebote := append([]string{}, entry.Angebote...)
	absent := append([]string{}, entry.AbsentChildIDs...)
	notes := entry.Notes
	angebotNotes := entry.AngebotNotes

	patch := daylog.Patch{
		AngebotNotes:   &angebotNotes,
		AbsentChildIDs: &absent,
		Notes:          &notes,
	}
	if len(entry.AngebotModules) > 0 {
		patch.AngebotModules = entry.AngebotModules
	} else {
		patch.Angebote = &angebote
	}
	patch.Observations = map[string]daylog.ObservationPatch{}
	for child, tags := range entry.Observations {
		patch.Observations[child] = daylog.ObservationPatch{Items: tags, Replace: true}
	}
	patch.ObservationNotes = map[string]*string{}
	for child, note := range entry.ObservationNotes {
		v := note
		patch.ObservationNotes[child] = &v
	}
	return patch
}

// setCatalogOverride writes the full-list override for a kind.
func setCatalogOverride(o *document.Overlay, kind string, entries []catalog.Entry) {
	next := append([]catalog.Entry{}, entries...)
	switch kind {
	case KindAngebote:
		o.PresetOverrides.Angebote = &next
	case KindObservations:
		o.PresetOverrides.Observations = &next
	}
}

// rewriteDayReferences applies the reference cascade for one old key over
// every effective day entry, materializing rewritten days into the overlay.
func rewriteDayReferences(o *document.Overlay, eff document.Document, kind, oldKey, newText string) {
	for date, entry := range eff.Records.EntriesByDate {
		var rewritten daylog.Entry
		switch kind {
		case KindAngebote:
			rewritten = daylog.RewriteOffer(entry, oldKey, newText)
		case KindObservations:
			rewritten = daylog.RewriteObservation(entry, oldKey, newText)
		default:
			continue
		}
		o.Records.EntriesByDate[date] = rewritten
	}
}

// IsNotReady reports whether err is the store's not-ready sentinel.
func IsNotReady(err error) bool {
	return errors.Is(err, store.ErrNotReady)
}
