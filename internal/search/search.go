// Package search answers catalog queries: free-text lookup over offer and
// observation labels, and the "top used" list that seeds the quick-pick UI.
package search

import (
	"sort"
	"strings"

	"freilog/api/internal/catalog"
	"freilog/api/internal/daylog"
	"freilog/api/internal/normalize"
)

// Result is one catalog hit.
type Result struct {
	Kind   string   `json:"kind"` // "angebote" or "observations"
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Groups []string `json:"groups"`
}

// Service is the facade: Meilisearch when configured and healthy, an
// in-memory scan otherwise. The in-memory path is always correct; Meili
// only buys ranking and typo tolerance.
type Service struct {
	meili *Meili
}

// NewService creates a search service. meili may be nil.
func NewService(meili *Meili) *Service {
	return &Service{meili: meili}
}

// Index replaces the indexed catalogs. Fire-and-forget; the in-memory
// fallback reads live data and needs no indexing.
func (s *Service) Index(angebote, observations []catalog.Entry) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go s.meili.IndexCatalogs(angebote, observations)
}

// Search queries the catalogs. The fallback matches on a case-insensitive
// substring of the normalized label.
func (s *Service) Search(query string, angebote, observations []catalog.Entry, limit int) []Result {
	if limit <= 0 {
		limit = 20
	}
	if s.meili != nil && s.meili.Healthy() {
		if results, err := s.meili.Search(query, limit); err == nil {
			return results
		}
	}
	return scan(query, angebote, observations, limit)
}

func scan(query string, angebote, observations []catalog.Entry, limit int) []Result {
	needle := normalize.Key(query)
	out := []Result{}
	add := func(kind string, entries []catalog.Entry) {
		for _, e := range entries {
			if needle != "" && !strings.Contains(e.Key(), needle) {
				continue
			}
			out = append(out, Result{Kind: kind, ID: e.ID, Text: e.Text, Groups: e.Groups})
		}
	}
	add("angebote", angebote)
	add("observations", observations)
	sort.SliceStable(out, func(i, j int) bool {
		return normalize.CompareLocale(out[i].Text, out[j].Text) < 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TopUsed counts how often each catalog label appears across the day
// entries and returns the most used labels, ties broken locale-first.
// kind selects which references to count: offers or observation tags.
func TopUsed(kind string, entries map[string]daylog.Entry, limit int) []string {
	if limit <= 0 {
		limit = 10
	}
	counts := map[string]int{}
	texts := map[string]string{}
	bump := func(label string) {
		key := normalize.Key(label)
		if key == "" {
			return
		}
		counts[key]++
		if _, ok := texts[key]; !ok {
			texts[key] = normalize.Text(label)
		}
	}
	for _, entry := range entries {
		switch kind {
		case "observations":
			for _, tags := range entry.Observations {
				for _, tag := range tags {
					bump(tag)
				}
			}
		default:
			for _, offer := range entry.Angebote {
				bump(offer)
			}
		}
	}

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return normalize.CompareLocale(texts[keys[i]], texts[keys[j]]) < 0
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, texts[key])
	}
	return out
}
