// Package timetable canonicalizes the weekly schedule grid, the subject
// list and color map, and the lesson-time table, and derives the free-time
// modules that the assignment reconciler buckets offers into.
package timetable

import (
	"fmt"
	"strings"
	"time"

	"freilog/api/internal/normalize"
)

const (
	// Weekdays covers Monday through Friday.
	Weekdays = 5
	// Periods is the fixed number of slots per day.
	Periods = 10
	// FreeTimeSubject is the tag whose contiguous runs form modules.
	FreeTimeSubject = "Freizeit"
)

// Schedule is the weekly grid: Weekdays x Periods cells, each a deduplicated
// subject tag list with insertion order preserved.
type Schedule [][][]string

// LessonTime is one period slot.
type LessonTime struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Module is one contiguous free-time run on a weekday. Never persisted; its
// id is a pure function of the run bounds so recomputation is stable.
type Module struct {
	ID          string `json:"id"`
	StartPeriod int    `json:"startPeriod"`
	EndPeriod   int    `json:"endPeriod"`
	PeriodLabel string `json:"periodLabel"`
	TimeLabel   string `json:"timeLabel"`
	Descriptor  string `json:"descriptor"`
}

// DefaultLessonTimes is the built-in period table used slot by slot when a
// stored slot is missing or invalid.
var DefaultLessonTimes = []LessonTime{
	{Start: "08:00", End: "08:45"},
	{Start: "08:45", End: "09:30"},
	{Start: "09:50", End: "10:35"},
	{Start: "10:35", End: "11:20"},
	{Start: "11:30", End: "12:15"},
	{Start: "12:15", End: "13:00"},
	{Start: "13:00", End: "13:45"},
	{Start: "13:45", End: "14:30"},
	{Start: "14:30", End: "15:15"},
	{Start: "15:15", End: "16:00"},
}

// NormalizeSchedule coerces a grid of arbitrary dimensions into the
// canonical Weekdays x Periods shape. Excess rows and cells are dropped,
// missing ones filled with empty tag lists, and every cell is deduplicated
// case-insensitively with insertion order preserved.
func NormalizeSchedule(grid Schedule) Schedule {
	out := make(Schedule, Weekdays)
	for day := 0; day < Weekdays; day++ {
		row := make([][]string, Periods)
		for period := 0; period < Periods; period++ {
			var cell []string
			if day < len(grid) && period < len(grid[day]) {
				cell = grid[day][period]
			}
			row[period] = normalize.UniqueStrings(cell)
		}
		out[day] = row
	}
	return out
}

// NormalizeSubjects returns the locale-sorted unique subject list.
func NormalizeSubjects(list []string) []string {
	return normalize.UniqueSortedStrings(list)
}

// NormalizeColors keeps entries with a valid #rrggbb value. Subjects absent
// from the canonical list are retained: orphaned colors survive subject
// deletion elsewhere and are flagged by OrphanedSubjects instead of being
// silently dropped.
func NormalizeColors(colors map[string]string) map[string]string {
	out := map[string]string{}
	for subject, color := range colors {
		name := normalize.Text(subject)
		if name == "" || !normalize.ValidHexColor(strings.TrimSpace(color)) {
			continue
		}
		if _, ok := out[name]; !ok {
			out[name] = strings.ToLower(strings.TrimSpace(color))
		}
	}
	return out
}

// OrphanedSubjects lists tags referenced by the schedule or color map that
// are missing from the canonical subject list, case-insensitively.
func OrphanedSubjects(grid Schedule, colors map[string]string, subjects []string) []string {
	known := make(map[string]struct{}, len(subjects))
	for _, s := range subjects {
		known[normalize.Key(s)] = struct{}{}
	}
	orphans := []string{}
	seen := map[string]struct{}{}
	note := func(tag string) {
		name := normalize.Text(tag)
		key := normalize.Key(name)
		if name == "" {
			return
		}
		if _, ok := known[key]; ok {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		orphans = append(orphans, name)
	}
	for _, day := range grid {
		for _, cell := range day {
			for _, tag := range cell {
				note(tag)
			}
		}
	}
	for subject := range colors {
		note(subject)
	}
	normalize.SortLocale(orphans)
	return orphans
}

// NormalizeLessonTimes fixes the table to exactly Periods slots, falling
// back to the built-in default slot by slot, never wholesale.
func NormalizeLessonTimes(slots []LessonTime) []LessonTime {
	out := make([]LessonTime, Periods)
	for i := 0; i < Periods; i++ {
		slot := LessonTime{}
		if i < len(slots) {
			slot = LessonTime{
				Start: normalize.Text(slots[i].Start),
				End:   normalize.Text(slots[i].End),
			}
		}
		if !normalize.ValidTime(slot.Start) || !normalize.ValidTime(slot.End) {
			slot = DefaultLessonTimes[i]
		}
		out[i] = slot
	}
	return out
}

// DeriveModules scans one weekday's cells in period order and merges
// maximal runs of consecutive free-time periods into modules. Co-occurring
// tags do not break a run; only the absence of the free-time tag does.
func DeriveModules(dayCells [][]string, times []LessonTime) []Module {
	times = NormalizeLessonTimes(times)
	modules := []Module{}
	runStart := -1

	flush := func(endExclusive int) {
		if runStart < 0 {
			return
		}
		modules = append(modules, newModule(runStart, endExclusive-1, times))
		runStart = -1
	}

	for period := 0; period < Periods; period++ {
		var cell []string
		if period < len(dayCells) {
			cell = dayCells[period]
		}
		if hasFreeTime(cell) {
			if runStart < 0 {
				runStart = period
			}
			continue
		}
		flush(period)
	}
	flush(Periods)
	return modules
}

// WeekdayIndex maps a YYYY-MM-DD date to its schedule row, or -1 for
// weekends and invalid dates. UTC, like the free-day weekend check.
func WeekdayIndex(date string) int {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return -1
	}
	switch wd := t.UTC().Weekday(); wd {
	case time.Saturday, time.Sunday:
		return -1
	default:
		return int(wd) - 1
	}
}

// ModulesForDate derives the modules of the weekday that date falls on.
func ModulesForDate(date string, grid Schedule, times []LessonTime) []Module {
	day := WeekdayIndex(date)
	if day < 0 {
		return []Module{}
	}
	grid = NormalizeSchedule(grid)
	return DeriveModules(grid[day], times)
}

func newModule(startPeriod, endPeriod int, times []LessonTime) Module {
	first, last := startPeriod+1, endPeriod+1
	periodLabel := fmt.Sprintf("%d. Stunde", first)
	if last != first {
		periodLabel = fmt.Sprintf("%d.–%d. Stunde", first, last)
	}
	timeLabel := fmt.Sprintf("%s–%s", times[startPeriod].Start, times[endPeriod].End)
	return Module{
		ID:          fmt.Sprintf("freizeit-%d-%d", first, last),
		StartPeriod: first,
		EndPeriod:   last,
		PeriodLabel: periodLabel,
		TimeLabel:   timeLabel,
		Descriptor:  fmt.Sprintf("%s (%s, %s)", FreeTimeSubject, periodLabel, timeLabel),
	}
}

func hasFreeTime(cell []string) bool {
	key := normalize.Key(FreeTimeSubject)
	for _, tag := range cell {
		if normalize.Key(tag) == key {
			return true
		}
	}
	return false
}
