package model

import "time"

// DayLayout is the calendar-day key used for quota accounting (UTC).
const DayLayout = "2006-01-02"

// UsageRecord is a user's request count for one calendar day.
type UsageRecord struct {
	UserID int64
	Day    string // YYYY-MM-DD, UTC
	Count  int
}

// DayKey returns the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// DaysAgo returns the day key n days before t.
func DaysAgo(t time.Time, n int) string {
	return DayKey(t.UTC().AddDate(0, 0, -n))
}
