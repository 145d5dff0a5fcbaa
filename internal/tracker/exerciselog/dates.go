package exerciselog

import "time"

// InvalidDateMarker is rendered for a stored date string that cannot be
// parsed. Unparsable dates are a read-time artifact: they are kept as
// stored, never match a bounded range query and render as this marker.
const InvalidDateMarker = "Invalid Date"

// readDateLayout matches the calendar format of the legacy tracker
// responses, e.g. "Mon Jan 01 1990".
const readDateLayout = "Mon Jan 02 2006"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	readDateLayout,
}

// ParsedDate is a tagged parse result: either a valid point in time or
// unparsable. All date interpretation (range filtering and read
// formatting) goes through ParseDate so the policy lives in one place.
type ParsedDate struct {
	Time  time.Time
	Valid bool
}

func ParseDate(date string) ParsedDate {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			return ParsedDate{Time: t, Valid: true}
		}
	}
	return ParsedDate{}
}

func FormatDate(date string) string {
	parsed := ParseDate(date)
	if !parsed.Valid {
		return InvalidDateMarker
	}
	return parsed.Time.Format(readDateLayout)
}
