package catalog

import (
	"strings"
	"time"
)

// formaty dat spotykane w odpowiedziach Sankhya
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"02012006 15:04:05",
	"02012006",
}

// parseDate – zero gdy pusty lub nieznany format.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// vigor – klucz sortowania DTVIGOR (unix, 0 dla braku daty).
func vigor(s string) int64 {
	t := parseDate(s)
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
