// Package normalize holds the primitive canonicalization routines shared by
// the catalog, free-day, timetable and day-entry normalizers. Everything in
// here is pure and idempotent: normalize(normalize(x)) == normalize(x).
package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// GroupCodes is the fixed enumeration of catalog category codes.
var GroupCodes = []string{"ROT", "GELB", "GRUEN", "BLAU", "ORANGE", "LILA"}

// GroupDictionary maps each category code to its display label. Exported
// verbatim in the "all" export as groupDictionary.
var GroupDictionary = map[string]string{
	"ROT":    "Sozialverhalten",
	"GELB":   "Arbeitsverhalten",
	"GRUEN":  "Motorik",
	"BLAU":   "Sprache",
	"ORANGE": "Emotion",
	"LILA":   "Kognition",
}

var groupCodeSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(GroupCodes))
	for _, code := range GroupCodes {
		set[code] = struct{}{}
	}
	return set
}()

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Text trims and collapses internal whitespace runs to single spaces.
func Text(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Key derives the case-insensitive, accent-preserving dedup key for a label.
func Key(s string) string {
	return strings.ToLower(Text(s))
}

// Slug derives a stable id from a label: the key with every
// non-letter/non-digit run replaced by a single dash.
func Slug(s string) string {
	key := Key(s)
	var b strings.Builder
	dash := false
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// UniqueSortedStrings filters a list to non-empty trimmed strings, dedups
// exactly (case-sensitively) and returns the result locale-sorted.
func UniqueSortedStrings(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, raw := range list {
		v := Text(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	SortLocale(out)
	return out
}

// UniqueStrings dedups case-insensitively, preserving first occurrence and
// insertion order. Used for tag cells where order carries meaning.
func UniqueStrings(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, raw := range list {
		v := Text(raw)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Groups filters a list to the fixed category code enumeration, uppercased
// and deduplicated, insertion order preserved.
func Groups(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := []string{}
	for _, raw := range list {
		code := strings.ToUpper(Text(raw))
		if _, ok := groupCodeSet[code]; !ok {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// ValidDate reports whether s is a canonical YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return false
	}
	return t.Format("2006-01-02") == s
}

// ValidTime reports whether s is a canonical HH:MM clock time.
func ValidTime(s string) bool {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return false
	}
	return t.Format("15:04") == s
}

// ValidHexColor reports whether s is a #rrggbb color literal.
func ValidHexColor(s string) bool {
	return hexColorRe.MatchString(s)
}

// SortLocale sorts in place using German collation so that umlauts sort next
// to their base letters instead of after 'z'.
func SortLocale(list []string) {
	collator().SortStrings(list)
}

// CompareLocale compares two strings under the same collation as SortLocale.
func CompareLocale(a, b string) int {
	return collator().CompareString(a, b)
}

func collator() *collate.Collator {
	// collate.Collator is not safe for concurrent use; a fresh instance per
	// call keeps the package free of locks.
	return collate.New(language.German)
}
