package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"freilog/api/internal/basedata"
	"freilog/api/internal/daylog"
	"freilog/api/internal/document"
	"freilog/api/internal/storage"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

const baseJSON = `{
	"schemaVersion": 2,
	"presetData": {
		"childrenList": ["Anna", "Ben"],
		"angebote": ["Lego", "Malen"]
	},
	"observationCatalog": ["Teilt Material"],
	"records": {
		"entriesByDate": {
			"2025-03-07": {"angebote": ["Lego"], "notes": "Basistag"}
		}
	}
}`

func newReadyStore(t *testing.T, opts ...Option) (*Store, *storage.Memory) {
	t.Helper()
	provider := storage.NewMemory()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	s := New(provider, basedata.StaticFetcher{Payload: []byte(baseJSON)}, opts...)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s, provider
}

func TestInitFetchFailureIsFatal(t *testing.T) {
	s := New(storage.NewMemory(), basedata.StaticFetcher{Err: errors.New("boom")})
	if err := s.Init(context.Background()); err == nil {
		t.Fatalf("expected fetch error to propagate")
	}
	if s.Status() == StatusReady {
		t.Errorf("store must not become ready after fetch failure")
	}
	if _, err := s.Effective(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Effective = %v, want ErrNotReady", err)
	}
}

func TestInitMalformedOverlayIsTolerated(t *testing.T) {
	provider := storage.NewMemory()
	_ = provider.Set(context.Background(), OverlayKey, "{not json")
	s := New(provider, basedata.StaticFetcher{Payload: []byte(baseJSON)})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init must tolerate a corrupt overlay: %v", err)
	}
	if s.Status() != StatusReady {
		t.Errorf("status = %q", s.Status())
	}
}

func TestStateDefaults(t *testing.T) {
	s, _ := newReadyStore(t)
	state, err := s.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.SelectedDate != "2025-03-10" {
		t.Errorf("selectedDate = %q, want today", state.SelectedDate)
	}
	if state.ExportMode != "day" {
		t.Errorf("exportMode = %q, want day", state.ExportMode)
	}
}

func TestUpdateOverlayPersistsAndRebuilds(t *testing.T) {
	s, provider := newReadyStore(t)
	ctx := context.Background()

	err := s.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		entry := o.Records.EntriesByDate["2025-03-10"]
		entry.Date = "2025-03-10"
		entry.Angebote = []string{"Basteln"}
		o.Records.EntriesByDate["2025-03-10"] = entry
		o.UI.SelectedDate = "2025-03-10"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateOverlay: %v", err)
	}

	eff, err := s.Effective()
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	entry, ok := eff.Records.EntriesByDate["2025-03-10"]
	if !ok {
		t.Fatalf("entry missing from effective document")
	}
	if !reflect.DeepEqual(entry.Angebote, []string{"Basteln"}) {
		t.Errorf("angebote = %v", entry.Angebote)
	}

	raw, err := provider.Get(ctx, OverlayKey)
	if err != nil {
		t.Fatalf("overlay not persisted: %v", err)
	}
	var persisted document.Overlay
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("persisted overlay unparsable: %v", err)
	}
	if persisted.Meta.SavedAt != "2025-03-10T09:00:00Z" {
		t.Errorf("savedAt = %q", persisted.Meta.SavedAt)
	}
	if persisted.UI.SelectedDate != "2025-03-10" {
		t.Errorf("ui not persisted: %+v", persisted.UI)
	}
}

func TestUpdateOverlayNormalizesInvalidSelectedDate(t *testing.T) {
	s, _ := newReadyStore(t)
	err := s.UpdateOverlay(context.Background(), func(o *document.Overlay, eff document.Document) error {
		o.UI.SelectedDate = "not-a-date"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateOverlay: %v", err)
	}
	if sel := s.Overlay().UI.SelectedDate; sel != "" {
		t.Errorf("invalid selectedDate must be cleared, got %q", sel)
	}
}

func TestUpdateOverlayDropsInvalidDateKeys(t *testing.T) {
	s, _ := newReadyStore(t)
	err := s.UpdateOverlay(context.Background(), func(o *document.Overlay, eff document.Document) error {
		o.Records.EntriesByDate["garbage"] = daylog.NewEntry("garbage", nil)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateOverlay: %v", err)
	}
	if _, ok := s.Overlay().Records.EntriesByDate["garbage"]; ok {
		t.Errorf("invalid date key survived normalization")
	}
}

func TestBaseEntrySurvivesOverlayMerge(t *testing.T) {
	s, _ := newReadyStore(t)
	eff, err := s.Effective()
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	entry, ok := eff.Records.EntriesByDate["2025-03-07"]
	if !ok {
		t.Fatalf("base entry missing")
	}
	if entry.Notes != "Basistag" {
		t.Errorf("notes = %q", entry.Notes)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s, _ := newReadyStore(t)
	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })

	_ = s.UpdateOverlay(context.Background(), func(o *document.Overlay, eff document.Document) error {
		o.UI.ExportMode = "all"
		return nil
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	unsubscribe()
	_ = s.UpdateOverlay(context.Background(), func(o *document.Overlay, eff document.Document) error {
		o.UI.ExportMode = "day"
		return nil
	})
	if calls != 1 {
		t.Errorf("unsubscribed listener was called")
	}
}

// A subscriber must be able to read the store it observes; notifications
// therefore run after the write lock is released.
func TestSubscriberMayReadStore(t *testing.T) {
	s, _ := newReadyStore(t)
	var seen string
	s.Subscribe(func() {
		eff, err := s.Effective()
		if err != nil {
			t.Errorf("Effective inside subscriber: %v", err)
			return
		}
		seen = eff.Settings.ExportMode
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.UpdateOverlay(context.Background(), func(o *document.Overlay, eff document.Document) error {
			o.UI.ExportMode = "all"
			return nil
		})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("UpdateOverlay did not return; subscriber blocked on the store lock")
	}
	if seen != "all" {
		t.Errorf("subscriber saw exportMode %q, want the new value", seen)
	}
}

func TestUpdateOverlayMutatorSeesCurrentEffective(t *testing.T) {
	s, _ := newReadyStore(t)
	ctx := context.Background()

	err := s.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		entry := eff.Records.EntriesByDate["2025-03-07"]
		entry.Angebote = append(entry.Angebote, "Malen")
		o.Records.EntriesByDate["2025-03-07"] = entry
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateOverlay: %v", err)
	}

	eff, err := s.Effective()
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	got := eff.Records.EntriesByDate["2025-03-07"].Angebote
	if !reflect.DeepEqual(got, []string{"Lego", "Malen"}) {
		t.Errorf("angebote = %v, want base entry extended", got)
	}
}

func TestUpdateOverlayMutatorErrorAbortsWrite(t *testing.T) {
	s, provider := newReadyStore(t)
	ctx := context.Background()
	fail := errors.New("nope")

	calls := 0
	s.Subscribe(func() { calls++ })

	err := s.UpdateOverlay(ctx, func(o *document.Overlay, eff document.Document) error {
		o.UI.ExportMode = "all"
		return fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("UpdateOverlay = %v, want mutator error", err)
	}
	if calls != 0 {
		t.Errorf("subscribers notified on aborted write")
	}
	if _, err := provider.Get(ctx, OverlayKey); err == nil {
		t.Errorf("aborted write must not persist the overlay")
	}
	state, err := s.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.ExportMode != "day" {
		t.Errorf("exportMode = %q, want unchanged default", state.ExportMode)
	}
}

type recordingHistorian struct {
	notes []string
}

func (h *recordingHistorian) Record(_ context.Context, _ []byte, note string) error {
	h.notes = append(h.notes, note)
	return nil
}

func TestHistorianReceivesEveryWrite(t *testing.T) {
	hist := &recordingHistorian{}
	s, _ := newReadyStore(t, WithHistorian(hist))

	_ = s.UpdateOverlay(context.Background(), func(o *document.Overlay, eff document.Document) error {
		o.UI.ExportMode = "all"
		return nil
	})
	_ = s.UpdateOverlay(context.Background(), func(o *document.Overlay, eff document.Document) error {
		o.UI.ExportMode = "day"
		return nil
	})

	if len(hist.notes) != 2 {
		t.Errorf("historian calls = %d, want 2", len(hist.notes))
	}
}
