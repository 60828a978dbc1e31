package freedays

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ParseICS extracts free-day ranges from an ICS payload, e.g. a published
// school-holiday calendar. Only all-day events carry over; DTEND is
// exclusive in iCalendar, so it is pulled back by one day. Timed events and
// events without a parsable start are skipped. The result is not yet
// normalized; callers run it through Normalize with the existing ranges.
func ParseICS(body []byte) ([]Range, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	ranges := []Range{}
	for _, ev := range cal.Events() {
		start, ok := allDayValue(ev.GetProperty(ical.ComponentPropertyDtStart))
		if !ok {
			continue
		}
		end := start
		if v, ok := allDayValue(ev.GetProperty(ical.ComponentPropertyDtEnd)); ok {
			end = v.AddDate(0, 0, -1)
		}
		if end.Before(start) {
			end = start
		}
		label := ""
		if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
			label = p.Value
		}
		ranges = append(ranges, Range{
			Start: start.Format("2006-01-02"),
			End:   end.Format("2006-01-02"),
			Label: strings.TrimSpace(label),
		})
	}
	return ranges, nil
}

// allDayValue parses a DATE-valued property (20251224). DATE-TIME values
// mark timed events and are rejected.
func allDayValue(p *ical.IANAProperty) (time.Time, bool) {
	if p == nil {
		return time.Time{}, false
	}
	v := strings.TrimSpace(p.Value)
	if len(v) != 8 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("20060102", v, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
