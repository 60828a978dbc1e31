// Package export produces the day and full-document export payloads and
// validates import payloads at the gate, before any mutation happens.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"freilog/api/internal/daylog"
	"freilog/api/internal/document"
	"freilog/api/internal/normalize"
)

var (
	// ErrInvalidPayload marks an import payload that matches no known shape.
	ErrInvalidPayload = errors.New("export: unrecognized import payload")
	// ErrPDFDependencyMissing is returned when no Chromium binary is found.
	ErrPDFDependencyMissing = errors.New("export: pdf rendering dependency missing")
)

// Result is a downloadable artifact.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// DayPayload is the single-day exchange format.
type DayPayload struct {
	Type  string       `json:"type"`
	Date  string       `json:"date"`
	Entry daylog.Entry `json:"entry"`
}

// Day exports one date's entry.
func Day(date string, entry daylog.Entry) (Result, error) {
	payload := DayPayload{Type: "day", Date: date, Entry: entry}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal day export: %w", err)
	}
	return Result{
		Data:     raw,
		Filename: fmt.Sprintf("freilog-%s.json", date),
		MimeType: "application/json",
	}, nil
}

// All exports the full effective document plus the groupDictionary alias of
// the observation-group map.
func All(doc document.Document, date string) (Result, error) {
	envelope := struct {
		document.Document
		GroupDictionary map[string]string `json:"groupDictionary"`
	}{
		Document:        doc,
		GroupDictionary: normalize.GroupDictionary,
	}
	raw, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal full export: %w", err)
	}
	return Result{
		Data:     raw,
		Filename: fmt.Sprintf("freilog-%s-all.json", date),
		MimeType: "application/json",
	}, nil
}

// ImportKind classifies an import payload.
type ImportKind int

const (
	ImportNone ImportKind = iota
	ImportDay
	ImportFull
)

// Classify decides what an import payload is. A full document needs a
// numeric schemaVersion and an observationCatalog array whose every entry
// carries a non-empty string text. A day payload needs a valid date and an
// entry object. Everything else is ImportNone: silently ignored, never a
// partial apply.
func Classify(raw []byte) ImportKind {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ImportNone
	}

	if isFullDocument(probe) {
		return ImportFull
	}

	var date string
	if rawDate, ok := probe["date"]; ok && json.Unmarshal(rawDate, &date) == nil && normalize.ValidDate(date) {
		if rawEntry, ok := probe["entry"]; ok {
			var entry map[string]json.RawMessage
			if json.Unmarshal(rawEntry, &entry) == nil {
				return ImportDay
			}
		}
	}
	return ImportNone
}

func isFullDocument(probe map[string]json.RawMessage) bool {
	rawVersion, ok := probe["schemaVersion"]
	if !ok {
		return false
	}
	var version float64
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return false
	}
	rawCatalog, ok := probe["observationCatalog"]
	if !ok {
		return false
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(rawCatalog, &entries); err != nil {
		return false
	}
	for _, entry := range entries {
		rawText, ok := entry["text"]
		if !ok {
			return false
		}
		var text string
		if err := json.Unmarshal(rawText, &text); err != nil || normalize.Text(text) == "" {
			return false
		}
	}
	return true
}

// ParseDay decodes a day payload. Callers route the result through the
// standard update path so it is sanitized against the live roster,
// timetable and free-day calendar.
func ParseDay(raw []byte) (DayPayload, error) {
	if Classify(raw) != ImportDay {
		return DayPayload{}, ErrInvalidPayload
	}
	var payload DayPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return DayPayload{}, ErrInvalidPayload
	}
	return payload, nil
}

// ParseFull decodes and re-normalizes a full-document payload.
func ParseFull(raw []byte, now time.Time) (document.Document, error) {
	if Classify(raw) != ImportFull {
		return document.Document{}, ErrInvalidPayload
	}
	doc, err := document.Parse(raw, now)
	if err != nil {
		return document.Document{}, ErrInvalidPayload
	}
	return doc, nil
}
