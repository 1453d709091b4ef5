package certinfo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoValidity         = errors.New("certificate report has no validity field")
	ErrUnparsableValidity = errors.New("unparsable certificate validity")
)

// ValidityWindow is the interval a certificate is valid for. A zero bound is
// unbounded on that side.
type ValidityWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// Expired reports whether now is past the end of the window.
func (w ValidityWindow) Expired(now time.Time) bool {
	return !w.NotAfter.IsZero() && now.After(w.NotAfter)
}

// NotYetValid reports whether now is before the start of the window.
func (w ValidityWindow) NotYetValid(now time.Time) bool {
	return !w.NotBefore.IsZero() && now.Before(w.NotBefore)
}

// ParseValidity reads the value of a report's Valid field: "forever",
// "from <ts> to <ts>", "after <ts>" or "before <ts>". Timestamps without a
// zone are read in loc, time.Local when nil.
func ParseValidity(raw string, loc *time.Location) (ValidityWindow, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ValidityWindow{}, ErrNoValidity
	}
	if loc == nil {
		loc = time.Local
	}

	var (
		w   ValidityWindow
		err error
	)

	fields := strings.Fields(raw)
	switch keyword := strings.ToLower(fields[0]); {
	case keyword == "forever" && len(fields) == 1:
		return w, nil
	case keyword == "from":
		if len(fields) != 4 || !strings.EqualFold(fields[2], "to") {
			return ValidityWindow{}, fmt.Errorf("%w: %q has no end", ErrUnparsableValidity, raw)
		}
		if w.NotBefore, err = parseTimestamp(fields[1], loc); err != nil {
			return ValidityWindow{}, err
		}
		if w.NotAfter, err = parseTimestamp(fields[3], loc); err != nil {
			return ValidityWindow{}, err
		}
	case keyword == "after" && len(fields) == 2:
		if w.NotBefore, err = parseTimestamp(fields[1], loc); err != nil {
			return ValidityWindow{}, err
		}
	case keyword == "before" && len(fields) == 2:
		if w.NotAfter, err = parseTimestamp(fields[1], loc); err != nil {
			return ValidityWindow{}, err
		}
	default:
		return ValidityWindow{}, fmt.Errorf("%w: %q", ErrUnparsableValidity, raw)
	}

	if !w.NotBefore.IsZero() && !w.NotAfter.IsZero() && w.NotAfter.Before(w.NotBefore) {
		return ValidityWindow{}, fmt.Errorf("%w: %q ends before it starts", ErrUnparsableValidity, raw)
	}

	return w, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(TimeLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrUnparsableValidity, s)
}
