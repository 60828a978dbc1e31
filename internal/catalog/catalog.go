// Package catalog canonicalizes the reusable label catalogs (offers and
// observations). Uniqueness is enforced by the case-insensitive text key,
// never by id or literal text.
package catalog

import (
	"encoding/json"
	"time"

	"freilog/api/internal/normalize"
	"freilog/api/internal/util"
)

// Entry is one canonical catalog row.
type Entry struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Groups    []string `json:"groups"`
	CreatedAt string   `json:"createdAt"`
}

// Key returns the dedup key for the entry's text.
func (e Entry) Key() string {
	return normalize.Key(e.Text)
}

// EntryInput is the duck-typed union accepted at the JSON boundary: a bare
// string label or a {text, groups, id, createdAt} object. Legacy documents
// carry both shapes in the same array.
type EntryInput struct {
	Text      string
	Groups    []string
	ID        string
	CreatedAt string
}

func (in *EntryInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*in = EntryInput{Text: s}
		return nil
	}
	var obj struct {
		Text      string   `json:"text"`
		Groups    []string `json:"groups"`
		ID        string   `json:"id"`
		CreatedAt string   `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Unrecognized shapes normalize to an empty entry and are dropped.
		*in = EntryInput{}
		return nil
	}
	*in = EntryInput{Text: obj.Text, Groups: obj.Groups, ID: obj.ID, CreatedAt: obj.CreatedAt}
	return nil
}

// Normalize canonicalizes a list of entry inputs plus an optional legacy
// fallback list of bare labels. First occurrence wins per key. Missing ids
// are synthesized as slugs; missing createdAt stamps get now (the
// normalization time, not a fixed epoch sentinel).
func Normalize(inputs []EntryInput, fallback []string, now time.Time) []Entry {
	stamp := now.UTC().Format(time.RFC3339)
	seen := make(map[string]struct{})
	out := []Entry{}

	add := func(in EntryInput) {
		text := normalize.Text(in.Text)
		if text == "" {
			return
		}
		key := normalize.Key(text)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		entry := Entry{
			ID:        normalize.Text(in.ID),
			Text:      text,
			Groups:    normalize.Groups(in.Groups),
			CreatedAt: normalize.Text(in.CreatedAt),
		}
		if entry.ID == "" {
			entry.ID = slugID(text)
		}
		if entry.CreatedAt == "" {
			entry.CreatedAt = stamp
		}
		out = append(out, entry)
	}

	for _, in := range inputs {
		add(in)
	}
	for _, label := range fallback {
		add(EntryInput{Text: label})
	}
	return out
}

// NormalizeEntries re-canonicalizes an already-typed entry list.
func NormalizeEntries(entries []Entry, now time.Time) []Entry {
	inputs := make([]EntryInput, 0, len(entries))
	for _, e := range entries {
		inputs = append(inputs, EntryInput{Text: e.Text, Groups: e.Groups, ID: e.ID, CreatedAt: e.CreatedAt})
	}
	return Normalize(inputs, nil, now)
}

// Find returns the entry whose key matches text, if any.
func Find(entries []Entry, text string) (Entry, bool) {
	key := normalize.Key(text)
	for _, e := range entries {
		if e.Key() == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Upsert finds an entry by text key. An existing entry keeps its canonical
// text (first-write-wins) and absorbs the union of old and new groups; a
// missing entry is appended. Returns the updated list, the resolved entry
// and whether it was created.
func Upsert(entries []Entry, text string, groups []string, now time.Time) ([]Entry, Entry, bool) {
	clean := normalize.Text(text)
	if clean == "" {
		return entries, Entry{}, false
	}
	key := normalize.Key(clean)
	for i, e := range entries {
		if e.Key() != key {
			continue
		}
		merged := e
		merged.Groups = unionGroups(e.Groups, groups)
		next := append([]Entry{}, entries...)
		next[i] = merged
		return next, merged, false
	}
	entry := Entry{
		ID:        slugID(clean),
		Text:      clean,
		Groups:    normalize.Groups(groups),
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
	return append(append([]Entry{}, entries...), entry), entry, true
}

// RenameStatus reports the outcome of a Rename.
type RenameStatus string

const (
	RenameCreated RenameStatus = "created"
	RenameUpdated RenameStatus = "updated"
	RenameMerged  RenameStatus = "merged"
	RenameInvalid RenameStatus = "invalid"
)

// RenameResult carries the information the reference cascade needs: every
// key listed in OldKeys must be rewritten to Entry.Text in all day entries.
type RenameResult struct {
	Status  RenameStatus
	Entry   Entry
	OldKeys []string
}

// Rename changes an entry's text, optionally replacing its groups wholesale
// when groups is non-nil. Renaming onto a key held by another entry merges
// the two (union groups, drop the renamed entry, keep the target's text).
// Renaming an entry that does not exist creates it.
func Rename(entries []Entry, currentText, nextText string, groups []string, now time.Time) ([]Entry, RenameResult) {
	current := normalize.Text(currentText)
	next := normalize.Text(nextText)
	if current == "" || next == "" {
		return entries, RenameResult{Status: RenameInvalid}
	}
	currentKey := normalize.Key(current)
	nextKey := normalize.Key(next)

	currentIdx := -1
	targetIdx := -1
	for i, e := range entries {
		switch e.Key() {
		case currentKey:
			currentIdx = i
		case nextKey:
			targetIdx = i
		}
	}

	if currentIdx < 0 {
		// Nothing to rename: behave like an upsert of the next text.
		updated, entry, created := Upsert(entries, next, groups, now)
		status := RenameUpdated
		if created {
			status = RenameCreated
		}
		return updated, RenameResult{Status: status, Entry: entry}
	}

	if targetIdx >= 0 && targetIdx != currentIdx {
		// Collision: merge current into the existing target.
		target := entries[targetIdx]
		target.Groups = unionGroups(target.Groups, entries[currentIdx].Groups)
		if groups != nil {
			target.Groups = unionGroups(target.Groups, groups)
		}
		out := make([]Entry, 0, len(entries)-1)
		for i, e := range entries {
			switch i {
			case currentIdx:
				continue
			case targetIdx:
				out = append(out, target)
			default:
				out = append(out, e)
			}
		}
		return out, RenameResult{Status: RenameMerged, Entry: target, OldKeys: []string{currentKey}}
	}

	entry := entries[currentIdx]
	entry.Text = next
	if groups != nil {
		entry.Groups = normalize.Groups(groups)
	}
	out := append([]Entry{}, entries...)
	out[currentIdx] = entry
	result := RenameResult{Status: RenameUpdated, Entry: entry}
	if currentKey != nextKey {
		result.OldKeys = []string{currentKey}
	}
	return out, result
}

// Remove drops the entry matching text. Returns the updated list, the
// removed entry's key for the reference strip, and whether anything changed.
func Remove(entries []Entry, text string) ([]Entry, string, bool) {
	key := normalize.Key(text)
	for i, e := range entries {
		if e.Key() != key {
			continue
		}
		out := append([]Entry{}, entries[:i]...)
		out = append(out, entries[i+1:]...)
		return out, key, true
	}
	return entries, "", false
}

// slugID derives a stable id from the label text. Labels made entirely of
// punctuation or symbols slug to nothing and get a random id instead.
func slugID(text string) string {
	if slug := normalize.Slug(text); slug != "" {
		return slug
	}
	return util.NewID("entry")
}

func unionGroups(a, b []string) []string {
	return normalize.Groups(append(append([]string{}, a...), b...))
}
