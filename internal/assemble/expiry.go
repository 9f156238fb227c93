package assemble

import (
	"fmt"
	"math"
	"time"
)

// Expiry buckets.
const (
	BucketSession = "Session"
	BucketMinutes = "Minutes"
	BucketHours   = "Hours"
	BucketDays    = "Days"
	BucketMonths  = "Months"
	BucketYears   = "Years"
)

// ExpiryOf describes a cookie lifetime relative to now.
// expires is seconds since the Unix epoch; zero or negative, the session flag,
// or a time already past all mean a session cookie.
// It returns a human-readable label such as "45 minutes" and its bucket.
func ExpiryOf(expires float64, session bool, now time.Time) (label, bucket string) {
	if session || expires <= 0 {
		return "Session", BucketSession
	}
	sec, frac := math.Modf(expires)
	at := time.Unix(int64(sec), int64(frac*1e9))
	d := at.Sub(now)
	if d <= 0 {
		return "Session", BucketSession
	}

	day := 24 * time.Hour
	switch {
	case d < time.Hour:
		return plural(ceilDiv(d, time.Minute), "minute"), BucketMinutes
	case d < day:
		return plural(int(d/time.Hour), "hour"), BucketHours
	case d < 30*day:
		return plural(int(d/day), "day"), BucketDays
	case d < 365*day:
		return plural(int(d/(30*day)), "month"), BucketMonths
	default:
		years := d.Hours() / 24 / 365
		return fmt.Sprintf("%.1f years", years), BucketYears
	}
}

func ceilDiv(d, unit time.Duration) int {
	n := int(d / unit)
	if d%unit != 0 {
		n++
	}
	return n
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
