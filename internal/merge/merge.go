// Package merge implements the deep-merge rule used to combine base and
// overlay documents: plain objects merge recursively key by key, arrays and
// scalars from the overlay replace the base value wholesale.
package merge

import "encoding/json"

// Deep merges overlay into base and returns a new map. Neither input is
// mutated.
func Deep(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		bm, bok := out[k].(map[string]any)
		om, ook := v.(map[string]any)
		if bok && ook {
			out[k] = Deep(bm, om)
			continue
		}
		out[k] = v
	}
	return out
}

// Structs merges overlay into base via their JSON representations and
// decodes the result into target. Used where the documents are held as
// typed values but the merge semantics are defined over plain JSON.
func Structs(base, overlay, target any) error {
	bm, err := toMap(base)
	if err != nil {
		return err
	}
	om, err := toMap(overlay)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(Deep(bm, om))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
