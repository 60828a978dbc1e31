package merge

import (
	"reflect"
	"testing"
)

func TestDeepNestedObjectsMergeKeyByKey(t *testing.T) {
	base := map[string]any{
		"a": map[string]any{"x": 1.0, "y": 2.0},
		"b": "base",
	}
	overlay := map[string]any{
		"a": map[string]any{"y": 9.0, "z": 3.0},
	}

	got := Deep(base, overlay)
	want := map[string]any{
		"a": map[string]any{"x": 1.0, "y": 9.0, "z": 3.0},
		"b": "base",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Deep = %v, want %v", got, want)
	}
}

func TestDeepArraysReplaceWholesale(t *testing.T) {
	base := map[string]any{"list": []any{"a", "b", "c"}}
	overlay := map[string]any{"list": []any{"x"}}

	got := Deep(base, overlay)
	if !reflect.DeepEqual(got["list"], []any{"x"}) {
		t.Errorf("arrays must replace, not concatenate: %v", got["list"])
	}
}

func TestDeepTypeMismatchOverlayWins(t *testing.T) {
	base := map[string]any{"v": map[string]any{"x": 1.0}}
	overlay := map[string]any{"v": "scalar"}

	got := Deep(base, overlay)
	if got["v"] != "scalar" {
		t.Errorf("overlay scalar must replace base object: %v", got["v"])
	}
}

func TestDeepDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1.0}}
	overlay := map[string]any{"a": map[string]any{"y": 2.0}}

	_ = Deep(base, overlay)
	if _, ok := base["a"].(map[string]any)["y"]; ok {
		t.Errorf("base was mutated")
	}
}

func TestStructs(t *testing.T) {
	type inner struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	type doc struct {
		Inner inner    `json:"inner"`
		Tags  []string `json:"tags"`
	}

	base := doc{Inner: inner{X: 1, Y: 2}, Tags: []string{"a", "b"}}
	overlay := doc{Inner: inner{Y: 9}, Tags: []string{"c"}}

	var got doc
	if err := Structs(base, overlay, &got); err != nil {
		t.Fatalf("Structs: %v", err)
	}
	// Struct zero values serialize as explicit JSON values, so X is
	// overwritten too; the interesting part is the array semantics.
	if !reflect.DeepEqual(got.Tags, []string{"c"}) {
		t.Errorf("tags = %v, want overlay wholesale", got.Tags)
	}
	if got.Inner.Y != 9 {
		t.Errorf("y = %d, want 9", got.Inner.Y)
	}
}
