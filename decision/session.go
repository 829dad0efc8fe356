package decision

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a time-of-day range in minutes after midnight. End before
// Start wraps past midnight, e.g. 22:00-06:00.
type Window struct {
	Start int
	End   int
}

// ParseWindow reads "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Window{}, fmt.Errorf("session window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return Window{}, fmt.Errorf("session window %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return Window{}, fmt.Errorf("session window %q: %w", s, err)
	}
	return Window{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("bad hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("bad minute %q", mm)
	}
	return h*60 + m, nil
}

// Contains reports whether t's wall-clock time falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.Start <= w.End {
		return m >= w.Start && m < w.End
	}
	return m >= w.Start || m < w.End
}

func anyWindow(specs []string, t time.Time) (bool, []error) {
	var errs []error
	for _, s := range specs {
		w, err := ParseWindow(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if w.Contains(t) {
			return true, errs
		}
	}
	return false, errs
}
