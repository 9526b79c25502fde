package extractor

import (
	"fmt"
	"time"
)

const syslogFormat = "Jan _2 15:04:05"

// Timestamp formats tried in order. The syslog format carries no year and
// gets the current year substituted in before parsing.
var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	syslogFormat,
	"02/Jan/2006:15:04:05 -0700",
}

// parseTimestamp tries each known format in order and reports whether any of
// them matched. Syslog timestamps lack a year, so the current year is
// substituted; a line logged in December and processed in January resolves to
// the processing year. Known limitation, kept deliberately.
func parseTimestamp(value string, now func() time.Time) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}

	for _, format := range timestampFormats {
		input := value
		if format == syslogFormat {
			input = fmt.Sprintf("%d %s", now().Year(), value)
			format = "2006 " + syslogFormat
		}
		if ts, err := time.Parse(format, input); err == nil {
			return ts.UTC(), true
		}
	}

	return time.Time{}, false
}
