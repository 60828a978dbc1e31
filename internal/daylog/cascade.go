package daylog

import "freilog/api/internal/normalize"

// RewriteOffer replaces every reference matching oldKey (case-insensitive)
// in angebote and in every module list. newText == "" strips the reference
// instead. Lists are re-deduplicated and re-sorted. Applied to each day of
// the dataset whenever a catalog entry is renamed, merged or removed.
func RewriteOffer(entry Entry, oldKey, newText string) Entry {
	out := entry
	out.Angebote = substitute(entry.Angebote, oldKey, newText)
	if len(entry.AngebotModules) > 0 {
		modules := make(map[string][]string, len(entry.AngebotModules))
		for id, list := range entry.AngebotModules {
			modules[id] = substitute(list, oldKey, newText)
		}
		out.AngebotModules = modules
	}
	return out
}

// RewriteObservation replaces matching tag entries in every child's
// observation list, preserving the rest.
func RewriteObservation(entry Entry, oldKey, newText string) Entry {
	if len(entry.Observations) == 0 {
		return entry
	}
	out := entry
	observations := make(map[string][]string, len(entry.Observations))
	for child, tags := range entry.Observations {
		observations[child] = substitute(tags, oldKey, newText)
	}
	out.Observations = observations
	return out
}

// RenameChild rewrites a day's observation map key and absence entries from
// oldName to newName, merging observation lists if newName already has
// entries for that day.
func RenameChild(entry Entry, oldName, newName string) Entry {
	oldName = normalize.Text(oldName)
	newName = normalize.Text(newName)
	if oldName == "" || newName == "" || oldName == newName {
		return entry
	}
	out := entry

	if tags, ok := entry.Observations[oldName]; ok {
		observations := make(map[string][]string, len(entry.Observations))
		for child, list := range entry.Observations {
			if child == oldName {
				continue
			}
			observations[child] = list
		}
		observations[newName] = normalize.UniqueSortedStrings(append(append([]string{}, observations[newName]...), tags...))
		out.Observations = observations
	}

	if note, ok := entry.ObservationNotes[oldName]; ok {
		notes := make(map[string]string, len(entry.ObservationNotes))
		for child, v := range entry.ObservationNotes {
			if child == oldName {
				continue
			}
			notes[child] = v
		}
		if _, taken := notes[newName]; !taken {
			notes[newName] = note
		}
		out.ObservationNotes = notes
	}

	absent := make([]string, 0, len(entry.AbsentChildIDs))
	for _, child := range entry.AbsentChildIDs {
		if child == oldName {
			child = newName
		}
		absent = append(absent, child)
	}
	out.AbsentChildIDs = normalize.UniqueSortedStrings(absent)
	return out
}

// RemoveChild strips every reference to the child from a day record.
func RemoveChild(entry Entry, name string) Entry {
	name = normalize.Text(name)
	out := entry
	if _, ok := entry.Observations[name]; ok {
		observations := make(map[string][]string, len(entry.Observations))
		for child, list := range entry.Observations {
			if child != name {
				observations[child] = list
			}
		}
		out.Observations = observations
	}
	if _, ok := entry.ObservationNotes[name]; ok {
		notes := make(map[string]string, len(entry.ObservationNotes))
		for child, v := range entry.ObservationNotes {
			if child != name {
				notes[child] = v
			}
		}
		out.ObservationNotes = notes
	}
	absent := make([]string, 0, len(entry.AbsentChildIDs))
	for _, child := range entry.AbsentChildIDs {
		if child != name {
			absent = append(absent, child)
		}
	}
	out.AbsentChildIDs = absent
	return out
}

// substitute rewrites entries whose key matches oldKey to newText, or drops
// them when newText is empty, then dedups and locale-sorts.
func substitute(list []string, oldKey, newText string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if normalize.Key(item) == oldKey {
			if newText == "" {
				continue
			}
			item = newText
		}
		out = append(out, item)
	}
	return normalize.UniqueSortedStrings(out)
}
