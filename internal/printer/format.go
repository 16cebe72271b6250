package printer

import (
	"fmt"
	"math"
	"time"
)

// FormatAge returns the compact age of an application at now, e.g. "45s", "12m", "3h", "2d".
// Ages below a minute keep second precision, larger ones are truncated to their unit.
func FormatAge(t, now time.Time) string {
	age := now.Sub(t)
	switch {
	case age < 0:
		return "0s"
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	}
	return fmt.Sprintf("%dd", int(age.Hours()/24))
}

// FormatProgress returns a progress ratio as a percentage (e.g. "66%").
func FormatProgress(p float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(p*100)))
}

// FormatTimestamp formats step log and application times, always in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.DateTime + " UTC")
}
