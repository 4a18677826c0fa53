package timeparse

import "time"

// Range is a half-open day interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// UnixPair returns the range's boundaries as unix seconds, the
// representation diarystore.TimeRange and the formatted-output layer
// consume.
func (r Range) UnixPair() (start, end int64) {
	return r.Start.Unix(), r.End.Unix()
}

// Render returns a canonical "[YYYY-MM-DD]" string for a single-day range
// (Start and Start.AddDate(0,0,1) == End), the form diary files use as
// their date header and that Parse itself recognizes, the basis of the
// package's idempotence guarantee. Multi-day ranges render their start
// date only, which is sufficient for the idempotence property (the
// re-parsed single day is always a subset of the original range).
func (r Range) Render() string {
	return "[" + r.Start.Format("2006-01-02") + "]"
}

// Config configures Parse's locale.
type Config struct {
	// DefaultTimezone is the IANA zone "today" is interpreted in.
	DefaultTimezone string
}

// ApplyDefaults fills an empty timezone with the documented default.
func (c *Config) ApplyDefaults() {
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "Asia/Shanghai"
	}
}

func dayRange(day time.Time) Range {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Range{Start: start, End: start.AddDate(0, 0, 1)}
}

func monthRange(year int, month time.Month, loc *time.Location) Range {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Range{Start: start, End: start.AddDate(0, 1, 0)}
}
