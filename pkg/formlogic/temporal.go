package formlogic

import (
	"fmt"
	"time"
)

// dateLayouts are tried in order by parseDate.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate reads a date in any of the accepted layouts.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// formatDate is the canonical form written to reports.
func formatDate(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// Accepts reports whether a submission made at date falls inside the form's
// acceptance window. Both bounds are inclusive; nil bounds are open.
func (f *Form) Accepts(date time.Time) bool {
	if f.ValidFrom != nil && date.Before(*f.ValidFrom) {
		return false
	}
	if f.ExpiresAt != nil && date.After(*f.ExpiresAt) {
		return false
	}
	return true
}

// CheckWindow reports a window that can never accept a submission.
func (f *Form) CheckWindow() error {
	if f.ValidFrom != nil && f.ExpiresAt != nil && !f.ExpiresAt.After(*f.ValidFrom) {
		return fmt.Errorf("expires_at %s is not after valid_from %s",
			formatDate(*f.ExpiresAt), formatDate(*f.ValidFrom))
	}
	return nil
}
