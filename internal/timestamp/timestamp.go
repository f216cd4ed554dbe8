package timestamp

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the textual form of a transaction time: YYYY-MM-DD HH:MM:SS.
const Layout = "2006-01-02 15:04:05"

var (
	defaultLoc = time.Local
	nowFunc    = time.Now
)

// SetDefaultLocation sets the location used to render and parse timestamps (fallback time.Local).
func SetDefaultLocation(loc *time.Location) {
	if loc != nil {
		defaultLoc = loc
	}
}

// DefaultLocation returns the location timestamps are rendered in.
func DefaultLocation() *time.Location {
	return defaultLoc
}

// LoadLocation resolves an IANA name; empty or "Local" keeps time.Local.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading location %q: %w", name, err)
	}
	return loc, nil
}

// SetClock replaces the wall clock and returns a func restoring the previous one.
func SetClock(now func() time.Time) (restore func()) {
	prev := nowFunc
	if now != nil {
		nowFunc = now
	}
	return func() { nowFunc = prev }
}

// Now returns the current time in the default location truncated to the second.
func Now() time.Time {
	return nowFunc().In(defaultLoc).Truncate(time.Second)
}

// Format renders t as YYYY-MM-DD HH:MM:SS in the default location.
func Format(t time.Time) string {
	return t.In(defaultLoc).Format(Layout)
}

// Parse reads YYYY-MM-DD HH:MM:SS as a wall clock time in the default location.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(Layout) {
		return time.Time{}, fmt.Errorf("timestamp must be YYYY-MM-DD HH:MM:SS (got %q)", s)
	}
	t, err := time.ParseInLocation(Layout, s, defaultLoc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// Wall re-anchors the wall clock reading of t in the default location.
// Values read back from a "timestamp without time zone" column come out in UTC.
func Wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, defaultLoc)
}
