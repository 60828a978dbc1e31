package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"freilog/api/internal/basedata"
	"freilog/api/internal/config"
	"freilog/api/internal/daylog"
	"freilog/api/internal/search"
	"freilog/api/internal/storage"
	"freilog/api/internal/store"
)

// 2025-03-10 is a Monday.
var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

const baseJSON = `{
	"schemaVersion": 2,
	"presetData": {
		"childrenList": ["Anna", "Ben"],
		"angebote": ["Lego", "Malen"],
		"schedule": [
			[[], [], ["Freizeit"], ["Freizeit"], [], [], [], [], [], []],
			[], [], [], []
		]
	},
	"observationCatalog": ["Teilt Material", "Hilft anderen"],
	"records": {
		"entriesByDate": {
			"2025-03-07": {"angebote": ["Lego"], "observations": {"Anna": ["Teilt Material"]}, "observationNotes": {"Anna": "krank"}}
		}
	}
}`

func newTestService(t *testing.T) *Service {
	t.Helper()
	st := store.New(
		storage.NewMemory(),
		basedata.StaticFetcher{Payload: []byte(baseJSON)},
		store.WithClock(func() time.Time { return testNow }),
	)
	svc := New(config.Config{}, st, search.NewService(nil), nil)
	svc.clock = func() time.Time { return testNow }
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return svc
}

func TestDayDefaultsWithoutPersisting(t *testing.T) {
	svc := newTestService(t)

	entry, err := svc.Day("2025-03-11")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if _, ok := entry.Observations["Anna"]; !ok {
		t.Errorf("default entry must seed the roster, got %v", entry.Observations)
	}

	eff, err := svc.store.Effective()
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if _, ok := eff.Records.EntriesByDate["2025-03-11"]; ok {
		t.Errorf("reading a day must not persist it")
	}
}

func TestDayRejectsInvalidDate(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Day("11.03.2025")
	var domain *DomainError
	if !asDomainError(err, &domain) || domain.Code != "INVALID_DATE" {
		t.Fatalf("err = %v, want INVALID_DATE", err)
	}
}

func TestSubmitPatchPersists(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	angebote := []string{"Malen", "Lego"}
	entry, err := svc.SubmitPatch(ctx, "2025-03-10", daylog.Patch{Angebote: &angebote})
	if err != nil {
		t.Fatalf("SubmitPatch: %v", err)
	}
	if len(entry.Angebote) != 2 {
		t.Errorf("angebote = %v", entry.Angebote)
	}

	again, err := svc.Day("2025-03-10")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if len(again.Angebote) != 2 {
		t.Errorf("patch did not persist: %v", again.Angebote)
	}
}

func TestClearDayResetsToEmpty(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	notes := "wird gelöscht"
	if _, err := svc.SubmitPatch(ctx, "2025-03-10", daylog.Patch{Notes: &notes}); err != nil {
		t.Fatalf("SubmitPatch: %v", err)
	}
	if err := svc.ClearDay(ctx, "2025-03-10"); err != nil {
		t.Fatalf("ClearDay: %v", err)
	}
	entry, err := svc.Day("2025-03-10")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if entry.Notes != "" || len(entry.Angebote) != 0 {
		t.Errorf("entry not cleared: %+v", entry)
	}
}

// Clearing a day that exists in the base dataset must stick: nothing from
// the base record may shine through the cleared overlay entry.
func TestClearDayHidesBaseRecord(t *testing.T) {
	svc := newTestService(t)

	if err := svc.ClearDay(context.Background(), "2025-03-07"); err != nil {
		t.Fatalf("ClearDay: %v", err)
	}
	entry, err := svc.Day("2025-03-07")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if len(entry.Angebote) != 0 {
		t.Errorf("base angebote resurfaced: %v", entry.Angebote)
	}
	if len(entry.Observations["Anna"]) != 0 {
		t.Errorf("base observations resurfaced: %v", entry.Observations)
	}
	if len(entry.ObservationNotes) != 0 {
		t.Errorf("base notes resurfaced: %v", entry.ObservationNotes)
	}
}

func TestSubmitPatchNoteDeletionHidesBaseNote(t *testing.T) {
	svc := newTestService(t)

	empty := ""
	entry, err := svc.SubmitPatch(context.Background(), "2025-03-07", daylog.Patch{
		ObservationNotes: map[string]*string{"Anna": &empty},
	})
	if err != nil {
		t.Fatalf("SubmitPatch: %v", err)
	}
	if _, ok := entry.ObservationNotes["Anna"]; ok {
		t.Fatalf("deleted note still present: %v", entry.ObservationNotes)
	}

	again, err := svc.Day("2025-03-07")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if note, ok := again.ObservationNotes["Anna"]; ok {
		t.Errorf("base note resurfaced after deletion: %q", note)
	}
}

func TestSubmitPatchConcurrentWritesBothLand(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, item := range []string{"Teilt Material", "Hilft anderen"} {
		wg.Add(1)
		go func(item string) {
			defer wg.Done()
			_, err := svc.SubmitPatch(ctx, "2025-03-10", daylog.Patch{
				Observations: map[string]daylog.ObservationPatch{
					"Anna": {Items: []string{item}},
				},
			})
			if err != nil {
				t.Errorf("SubmitPatch(%q): %v", item, err)
			}
		}(item)
	}
	wg.Wait()

	entry, err := svc.Day("2025-03-10")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if len(entry.Observations["Anna"]) != 2 {
		t.Errorf("observations = %v, want both concurrent additions", entry.Observations["Anna"])
	}
}

func TestRenameCatalogEntryRewritesDays(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	outcome, err := svc.RenameCatalogEntry(ctx, KindAngebote, "Lego", "Bauen", nil)
	if err != nil {
		t.Fatalf("RenameCatalogEntry: %v", err)
	}
	if outcome.Status != "updated" || outcome.Entry.Text != "Bauen" {
		t.Fatalf("outcome = %+v", outcome)
	}

	entries, err := svc.Catalog(KindAngebote)
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	for _, e := range entries {
		if e.Text == "Lego" {
			t.Errorf("old label still present: %v", entries)
		}
	}

	entry, err := svc.Day("2025-03-07")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if len(entry.Angebote) != 1 || entry.Angebote[0] != "Bauen" {
		t.Errorf("day reference not rewritten: %v", entry.Angebote)
	}
}

func TestRenameCatalogEntryInvalidIsReportedNotError(t *testing.T) {
	svc := newTestService(t)
	outcome, err := svc.RenameCatalogEntry(context.Background(), KindAngebote, "Lego", "  ", nil)
	if err != nil {
		t.Fatalf("RenameCatalogEntry: %v", err)
	}
	if outcome.Status != "invalid" {
		t.Errorf("status = %q", outcome.Status)
	}
}

func TestRemoveCatalogEntryStripsReferences(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.RemoveCatalogEntry(ctx, KindAngebote, "Lego"); err != nil {
		t.Fatalf("RemoveCatalogEntry: %v", err)
	}
	entry, err := svc.Day("2025-03-07")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if len(entry.Angebote) != 0 {
		t.Errorf("reference not stripped: %v", entry.Angebote)
	}
	// The day record itself survives the strip.
	if len(entry.Observations["Anna"]) != 1 {
		t.Errorf("day record lost its observations: %v", entry.Observations)
	}

	var domain *DomainError
	err = svc.RemoveCatalogEntry(ctx, KindAngebote, "Gibtesnicht")
	if !asDomainError(err, &domain) || domain.Status != 404 {
		t.Errorf("removing an absent label: err = %v, want 404", err)
	}
}

func TestRenameChildMigratesDayRecords(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.RenameChild(ctx, "Anna", "Annika"); err != nil {
		t.Fatalf("RenameChild: %v", err)
	}

	children, err := svc.Children()
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	names := make([]string, 0, len(children))
	for _, c := range children {
		names = append(names, c.Name)
	}
	if names[0] != "Annika" {
		t.Errorf("roster = %v", names)
	}

	entry, err := svc.Day("2025-03-07")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if _, ok := entry.Observations["Anna"]; ok {
		t.Errorf("old key survived the rename: %v", entry.Observations)
	}
	if got := entry.Observations["Annika"]; len(got) != 1 || got[0] != "Teilt Material" {
		t.Errorf("observations not migrated: %v", entry.Observations)
	}
}

func TestImportIgnoredLeavesStateUntouched(t *testing.T) {
	svc := newTestService(t)

	before, err := svc.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	outcome, err := svc.Import(context.Background(), []byte(`{"something":"else"}`))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if outcome.Status != "ignored" {
		t.Errorf("status = %q", outcome.Status)
	}
	after, err := svc.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(after.Effective.Records.EntriesByDate) != len(before.Effective.Records.EntriesByDate) {
		t.Errorf("ignored import changed state")
	}
}

func TestImportDayFlowsThroughPatch(t *testing.T) {
	svc := newTestService(t)

	raw := []byte(`{"type":"day","date":"2025-03-12","entry":{"angebote":["Lego"],"notes":"importiert"}}`)
	outcome, err := svc.Import(context.Background(), raw)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if outcome.Status != "day" || outcome.Date != "2025-03-12" {
		t.Fatalf("outcome = %+v", outcome)
	}

	entry, err := svc.Day("2025-03-12")
	if err != nil {
		t.Fatalf("Day: %v", err)
	}
	if entry.Notes != "importiert" {
		t.Errorf("entry = %+v", entry)
	}
	// The patch path seeds the roster even when the payload omits it.
	if _, ok := entry.Observations["Ben"]; !ok {
		t.Errorf("import skipped sanitization: %v", entry.Observations)
	}
}

func TestImportFullReplacesPresets(t *testing.T) {
	svc := newTestService(t)

	raw := []byte(`{
		"schemaVersion": 2,
		"presetData": {"childrenList": ["Zoe"], "angebote": ["Töpfern"]},
		"observationCatalog": [{"text": "Fragt nach"}],
		"settings": {"exportMode": "week"}
	}`)
	outcome, err := svc.Import(context.Background(), raw)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if outcome.Status != "full" {
		t.Fatalf("outcome = %+v", outcome)
	}

	state, err := svc.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if got := state.Effective.Roster(); len(got) != 1 || got[0] != "Zoe" {
		t.Errorf("roster = %v", got)
	}
	if state.ExportMode != "week" {
		t.Errorf("exportMode = %q", state.ExportMode)
	}
}

func TestHistoryWithoutProvider(t *testing.T) {
	svc := newTestService(t)
	commits, err := svc.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if commits == nil || len(commits) != 0 {
		t.Errorf("commits = %v, want empty non-nil", commits)
	}
}

func TestModulesForMonday(t *testing.T) {
	svc := newTestService(t)
	modules, err := svc.ModulesFor("2025-03-10")
	if err != nil {
		t.Fatalf("ModulesFor: %v", err)
	}
	if len(modules) != 1 || modules[0].ID != "freizeit-3-4" {
		t.Errorf("modules = %+v", modules)
	}
}

func asDomainError(err error, target **DomainError) bool {
	return errors.As(err, target)
}
