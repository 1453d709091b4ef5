package keygen

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Window is a certificate validity interval. A zero After means "always" and a
// zero Before means "forever".
type Window struct {
	After  time.Time
	Before time.Time
}

// ParseValidity interprets an ssh-keygen -V validity interval relative to now.
//
//	+52w1d                 valid from the previous minute for 52 weeks and a day
//	-1:+1d                 valid from one second ago until one day from now
//	always:forever         no bounds
//	20240101:20250101Z     absolute dates, local time unless suffixed with Z
//	0x65920080:forever     seconds since the epoch in hex
//
// Absolute times without a Z suffix are read in loc.
func ParseValidity(spec string, now time.Time, loc *time.Location) (Window, error) {
	spec = strings.TrimSpace(spec)
	if loc == nil {
		loc = time.Local
	}

	if !strings.Contains(spec, ":") {
		// Without a start only a relative end is accepted. The start is backdated
		// to the previous minute for hosts with skewed clocks.
		if !strings.HasPrefix(spec, "+") {
			return Window{}, fmt.Errorf("invalid certificate validity %q: expected +<interval> or start:end", spec)
		}
		before, err := parseBound(spec, now, loc)
		if err != nil {
			return Window{}, fmt.Errorf("invalid relative certificate life %q: %w", spec, err)
		}
		w := Window{After: time.Unix(((now.Unix()-59)/60)*60, 0)}
		if !before.After(w.After) {
			return Window{}, fmt.Errorf("empty certificate validity interval %q", spec)
		}
		w.Before = before
		return w, nil
	}

	from, to, ok := strings.Cut(spec, ":")
	if !ok || from == "" || to == "" {
		return Window{}, fmt.Errorf("invalid certificate validity %q", spec)
	}

	var (
		w   Window
		err error
	)

	if from != "always" {
		if w.After, err = parseBound(from, now, loc); err != nil {
			return Window{}, fmt.Errorf("invalid from time %q: %w", from, err)
		}
	}

	if to != "forever" {
		if w.Before, err = parseBound(to, now, loc); err != nil {
			return Window{}, fmt.Errorf("invalid to time %q: %w", to, err)
		}
	}

	if !w.Before.IsZero() && !w.Before.After(w.After) {
		return Window{}, fmt.Errorf("empty certificate validity interval %q", spec)
	}

	return w, nil
}

// maxIntervalSeconds is the longest relative interval a time.Duration can hold.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

func parseBound(s string, now time.Time, loc *time.Location) (time.Time, error) {
	switch {
	case strings.HasPrefix(s, "+"), strings.HasPrefix(s, "-"):
		secs, err := parseInterval(s[1:])
		if err != nil {
			return time.Time{}, err
		}
		if secs > maxIntervalSeconds {
			return time.Time{}, fmt.Errorf("interval %q out of range", s)
		}
		if s[0] == '-' {
			secs = -secs
		}
		return now.Add(time.Duration(secs) * time.Second), nil
	case strings.HasPrefix(s, "0x"):
		secs, err := strconv.ParseUint(s[2:], 16, 63)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hex time: %w", err)
		}
		return time.Unix(int64(secs), 0), nil
	default:
		return parseAbsolute(s, loc)
	}
}

// parseAbsolute accepts YYYYMMDD, YYYYMMDDHHMM or YYYYMMDDHHMMSS with an optional Z.
func parseAbsolute(s string, loc *time.Location) (time.Time, error) {
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z")
		loc = time.UTC
	}

	var layout string
	switch len(s) {
	case 8:
		layout = "20060102"
	case 12:
		layout = "200601021504"
	case 14:
		layout = "20060102150405"
	default:
		return time.Time{}, fmt.Errorf("unrecognised date format %q", s)
	}

	return time.ParseInLocation(layout, s, loc)
}

// parseInterval implements the sshd_config TIME FORMATS grammar: a sequence of
// time[qualifier] terms where the qualifier is one of s, m, h, d or w.
func parseInterval(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}

	var total int64
	for s != "" {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("expected a number in %q", s)
		}
		n, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return 0, err
		}
		s = s[i:]

		multiplier := int64(1)
		if s != "" {
			switch s[0] {
			case 's', 'S':
			case 'm', 'M':
				multiplier = 60
			case 'h', 'H':
				multiplier = 60 * 60
			case 'd', 'D':
				multiplier = 24 * 60 * 60
			case 'w', 'W':
				multiplier = 7 * 24 * 60 * 60
			default:
				return 0, fmt.Errorf("unknown time qualifier %q", s[0])
			}
			s = s[1:]
		}

		if n > (math.MaxInt64-total)/multiplier {
			return 0, fmt.Errorf("interval overflows")
		}
		total += n * multiplier
	}

	return total, nil
}
