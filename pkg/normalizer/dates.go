package normalizer

import (
	"fmt"
	"strings"
	"time"
)

// Layouts that carry their own zone.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02Z07:00",
	"2006-01-02-07:00",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
}

// Layouts interpreted in the platform's zone. Order matters: longer layouts first.
var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006.01.02 15:04",
	"2006.01.02",
	"20060102150405",
	"200601021504",
	"20060102",
	"02.01.2006 15:04",
	"02.01.2006",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

var (
	dayFirstSlash   = []string{"02/01/2006 15:04:05", "02/01/2006 15:04", "02/01/2006"}
	monthFirstSlash = []string{"01/02/2006 03:04 PM", "01/02/2006 15:04:05", "01/02/2006 15:04", "01/02/2006"}
)

// parseDate parses a platform date string. Empty input yields nil without error.
// Zone-less values are placed in the platform's zone.
func parseDate(raw string, lc locale) (*time.Time, error) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return nil, nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}

	layouts := localLayouts
	if lc.monthFirst {
		layouts = append(append([]string(nil), monthFirstSlash...), layouts...)
	} else {
		layouts = append(append([]string(nil), dayFirstSlash...), layouts...)
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, lc.loc); err == nil {
			return &t, nil
		}
	}

	return nil, fmt.Errorf("unrecognized date %q", raw)
}
