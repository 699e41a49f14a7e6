package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// clockLayouts carry a time of day only; the report date supplies the day.
var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04:05 PM",
	"3:04PM",
	"3:04:05PM",
}

// stampLayouts carry a full date and time.
var stampLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"01/02/2006 3:04 PM",
	"01/02/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"20060102",
}

// parseStamp reads a telematics time cell. Clock-only values are placed on
// day; dated values keep their own date and dated reports true.
func parseStamp(raw string, day time.Time, loc *time.Location) (t time.Time, dated bool, err error) {
	s := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	for _, layout := range clockLayouts {
		c, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			y, m, d := day.Date()
			return time.Date(y, m, d, c.Hour(), c.Minute(), c.Second(), 0, loc), false, nil
		}
	}
	for _, layout := range stampLayouts {
		if layout == time.RFC3339 {
			if v, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				return v.In(loc), true, nil
			}
			continue
		}
		if v, err := time.ParseInLocation(layout, s, loc); err == nil {
			return v, true, nil
		}
	}
	return time.Time{}, false, eris.Errorf("extract: unrecognized time %q", raw)
}

// parseDate reads a date cell, also accepting a timestamp whose date is used.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if v, err := time.ParseInLocation(layout, s, loc); err == nil {
			return v, nil
		}
	}
	if v, dated, err := parseStamp(s, time.Time{}, loc); err == nil && dated {
		return v, nil
	}
	return time.Time{}, eris.Errorf("extract: unrecognized date %q", raw)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// parseCoord reads a latitude or longitude within limit degrees.
func parseCoord(raw string, limit float64) (*float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, eris.Errorf("extract: invalid coordinate %q", raw)
	}
	if v < -limit || v > limit {
		return nil, eris.Errorf("extract: coordinate %q out of range", raw)
	}
	return &v, nil
}
