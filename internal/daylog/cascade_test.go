package daylog

import (
	"reflect"
	"testing"
)

// Renaming an offer onto one that is already referenced the same day must
// collapse the two references, not duplicate them.
func TestRewriteOfferMergesIntoExistingReference(t *testing.T) {
	entry := Entry{
		Angebote: []string{"Lesen", "Malen"},
		AngebotModules: map[string][]string{
			"freizeit-3-4": {"Lesen", "Malen"},
		},
	}

	out := RewriteOffer(entry, "lesen", "Malen")

	if !reflect.DeepEqual(out.Angebote, []string{"Malen"}) {
		t.Errorf("angebote = %v", out.Angebote)
	}
	if !reflect.DeepEqual(out.AngebotModules["freizeit-3-4"], []string{"Malen"}) {
		t.Errorf("module list = %v", out.AngebotModules["freizeit-3-4"])
	}
}

func TestRewriteOfferEmptyTextStrips(t *testing.T) {
	entry := Entry{
		Angebote:       []string{"Lesen", "Malen"},
		AngebotModules: map[string][]string{"m": {"Lesen"}},
	}
	out := RewriteOffer(entry, "lesen", "")
	if !reflect.DeepEqual(out.Angebote, []string{"Malen"}) {
		t.Errorf("angebote = %v", out.Angebote)
	}
	if len(out.AngebotModules["m"]) != 0 {
		t.Errorf("module list = %v", out.AngebotModules["m"])
	}
}

func TestRewriteObservation(t *testing.T) {
	entry := Entry{
		Observations: map[string][]string{
			"Anna": {"Teilt Material", "Hilft anderen"},
			"Ben":  {"Teilt Material"},
		},
	}
	out := RewriteObservation(entry, "teilt material", "Teilt gern")
	if !reflect.DeepEqual(out.Observations["Anna"], []string{"Hilft anderen", "Teilt gern"}) {
		t.Errorf("Anna = %v", out.Observations["Anna"])
	}
	if !reflect.DeepEqual(out.Observations["Ben"], []string{"Teilt gern"}) {
		t.Errorf("Ben = %v", out.Observations["Ben"])
	}
}

func TestRenameChildMergesLists(t *testing.T) {
	entry := Entry{
		Observations: map[string][]string{
			"Anna":  {"a", "c"},
			"Annie": {"b"},
		},
		ObservationNotes: map[string]string{
			"Anna":  "alte Notiz",
			"Annie": "bestehende Notiz",
		},
		AbsentChildIDs: []string{"Anna"},
	}

	out := RenameChild(entry, "Anna", "Annie")

	if _, ok := out.Observations["Anna"]; ok {
		t.Fatalf("old key survived: %v", out.Observations)
	}
	if !reflect.DeepEqual(out.Observations["Annie"], []string{"a", "b", "c"}) {
		t.Errorf("merged list = %v", out.Observations["Annie"])
	}
	// The existing note of the target wins.
	if out.ObservationNotes["Annie"] != "bestehende Notiz" {
		t.Errorf("note = %q", out.ObservationNotes["Annie"])
	}
	if !reflect.DeepEqual(out.AbsentChildIDs, []string{"Annie"}) {
		t.Errorf("absent = %v", out.AbsentChildIDs)
	}
}

func TestRenameChildNoopOnSameName(t *testing.T) {
	entry := Entry{Observations: map[string][]string{"Anna": {"a"}}}
	out := RenameChild(entry, "Anna", " Anna ")
	if !reflect.DeepEqual(out, entry) {
		t.Errorf("same-name rename must be a no-op")
	}
}

func TestRemoveChild(t *testing.T) {
	entry := Entry{
		Observations:     map[string][]string{"Anna": {"a"}, "Ben": {"b"}},
		ObservationNotes: map[string]string{"Anna": "x"},
		AbsentChildIDs:   []string{"Anna", "Ben"},
	}
	out := RemoveChild(entry, "Anna")
	if _, ok := out.Observations["Anna"]; ok {
		t.Errorf("observations kept removed child")
	}
	if _, ok := out.ObservationNotes["Anna"]; ok {
		t.Errorf("notes kept removed child")
	}
	if !reflect.DeepEqual(out.AbsentChildIDs, []string{"Ben"}) {
		t.Errorf("absent = %v", out.AbsentChildIDs)
	}
}
