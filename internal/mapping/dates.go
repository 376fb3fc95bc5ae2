package mapping

import (
	"regexp"
	"strings"
	"time"
)

// literalDatePatterns capture the date part of known messy formats. Each
// pattern exposes one group that is parsed with dottedLayouts or slashLayouts.
var literalDatePatterns = []struct {
	pattern *regexp.Regexp
	layouts []string
}{
	{regexp.MustCompile(`(?i)(?:^|\s)(?:от|from|с|dated)\s+(\d{1,2}\.\d{1,2}\.\d{4}(?:\s+\d{1,2}:\d{2}(?::\d{2})?)?)`), dottedLayouts},
	{regexp.MustCompile(`^(\d{1,2}\.\d{1,2}\.\d{4}(?:\s+\d{1,2}:\d{2}(?::\d{2})?)?)$`), dottedLayouts},
	{regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{4}(?:\s+\d{1,2}:\d{2}(?::\d{2})?)?)$`), slashLayouts},
}

var dottedLayouts = []string{
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
}

var slashLayouts = []string{
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	// excelize renders built-in date format 14 as mm-dd-yy.
	"01-02-06",
	"1/2/06 15:04",
}

var strftimeReplacer = strings.NewReplacer(
	"%d", "02",
	"%m", "01",
	"%Y", "2006",
	"%y", "06",
	"%H", "15",
	"%I", "03",
	"%M", "04",
	"%S", "05",
	"%p", "PM",
	"%b", "Jan",
	"%B", "January",
	"%z", "-0700",
	"%f", "000000",
	"%%", "%",
)

// ExtractDate pulls a timestamp out of free text. It tries the literal
// patterns first, then customFormat (strftime-style or a Go layout), then
// ISO-8601 layouts. It returns nil when nothing matches.
func ExtractDate(value, customFormat string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, candidate := range literalDatePatterns {
		match := candidate.pattern.FindStringSubmatch(value)
		if len(match) < 2 {
			continue
		}
		if ts, ok := parseWithLayouts(collapseSpaces(match[1]), candidate.layouts); ok {
			return &ts
		}
	}

	if layout := goLayout(customFormat); layout != "" {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts
		}
	}

	if ts, ok := parseWithLayouts(value, isoLayouts); ok {
		return &ts
	}
	return nil
}

// ParseDateTime parses a date/time value without a caller-supplied format.
func ParseDateTime(value string) (time.Time, bool) {
	ts := ExtractDate(value, "")
	if ts == nil {
		return time.Time{}, false
	}
	return *ts, true
}

func goLayout(format string) string {
	format = strings.TrimSpace(format)
	if format == "" {
		return ""
	}
	if strings.Contains(format, "%") {
		return strftimeReplacer.Replace(format)
	}
	return format
}

func parseWithLayouts(value string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func collapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
