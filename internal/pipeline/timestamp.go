package pipeline

import (
	"fmt"
	"strings"
	"time"
	// region suffixes must resolve on hosts without a zoneinfo database
	_ "time/tzdata"
)

// fallback layouts tried after RFC 3339; values without an offset are read in the
// bracketed region when one is given, otherwise as UTC
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 date-time, optionally followed by a bracketed
// IANA region such as "2025-01-15T10:30:00+01:00[Europe/Paris]". An explicit offset
// takes precedence over the region. On failure the returned error is the RFC 3339
// parse error, which names the offending element.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s, region, hasRegion := cutRegion(s)
	loc := time.UTC
	if hasRegion {
		if region == "" {
			return time.Time{}, fmt.Errorf("empty time zone region in %q", s)
		}
		var err error
		if loc, err = time.LoadLocation(region); err != nil {
			return time.Time{}, err
		}
	}

	t, rfcErr := time.Parse(time.RFC3339Nano, s)
	if rfcErr == nil {
		return t, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, rfcErr
}

// cutRegion splits a trailing "[Region]" off s
func cutRegion(s string) (string, string, bool) {
	if !strings.HasSuffix(s, "]") {
		return s, "", false
	}
	i := strings.LastIndexByte(s, '[')
	if i <= 0 {
		return s, "", false
	}
	return s[:i], strings.TrimSpace(s[i+1 : len(s)-1]), true
}
