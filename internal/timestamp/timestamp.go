package timestamp

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Timestamp is a relative offset within a script. Parse always returns
// normalized values: Minutes and Seconds below 60, Milliseconds below 1000.
type Timestamp struct {
	Hours        int `json:"hours"`
	Minutes      int `json:"minutes"`
	Seconds      int `json:"seconds"`
	Milliseconds int `json:"milliseconds"`
}

var (
	hmsPattern = regexp.MustCompile(`^(\d+):(\d+):(\d+)(?:[.,](\d+))?$`)
	msPattern  = regexp.MustCompile(`^(\d+):(\d+)(?:[.,](\d+))?$`)
	sPattern   = regexp.MustCompile(`^(\d+)(?:[.,](\d+))?$`)
)

// Parse decodes HH:MM:SS[.mmm], MM:SS[.mmm], or SS[.mmm] (comma or dot before
// the fraction). The fraction is right-padded or truncated to exactly three
// digits, so "5" means 500ms and "0861" means 86ms. Out-of-range components
// carry into the next unit. Unrecognized or blank input reports false.
func Parse(raw string) (Timestamp, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Timestamp{}, false
	}

	var hours, minutes, seconds, fraction string
	switch {
	case hmsPattern.MatchString(value):
		m := hmsPattern.FindStringSubmatch(value)
		hours, minutes, seconds, fraction = m[1], m[2], m[3], m[4]
	case msPattern.MatchString(value):
		m := msPattern.FindStringSubmatch(value)
		minutes, seconds, fraction = m[1], m[2], m[3]
	case sPattern.MatchString(value):
		m := sPattern.FindStringSubmatch(value)
		seconds, fraction = m[1], m[2]
	default:
		return Timestamp{}, false
	}

	h, ok := atoi(hours)
	if !ok {
		return Timestamp{}, false
	}
	mi, ok := atoi(minutes)
	if !ok {
		return Timestamp{}, false
	}
	s, ok := atoi(seconds)
	if !ok {
		return Timestamp{}, false
	}
	ms, ok := atoi(millisDigits(fraction))
	if !ok {
		return Timestamp{}, false
	}

	total, ok := totalMillis(h, mi, s, ms)
	if !ok {
		return Timestamp{}, false
	}
	return FromMilliseconds(total), true
}

// totalMillis sums the components, reporting false when the offset does not
// fit in an int64 millisecond count.
func totalMillis(hours, minutes, seconds, millis int) (int64, bool) {
	var total int64
	for _, part := range []struct {
		n     int
		scale int64
	}{{hours, 3_600_000}, {minutes, 60_000}, {seconds, 1000}, {millis, 1}} {
		n := int64(part.n)
		if n > math.MaxInt64/part.scale {
			return 0, false
		}
		if n*part.scale > math.MaxInt64-total {
			return 0, false
		}
		total += n * part.scale
	}
	return total, true
}

// millisDigits pads or truncates a fraction to exactly three digits.
func millisDigits(fraction string) string {
	if fraction == "" {
		return ""
	}
	if len(fraction) >= 3 {
		return fraction[:3]
	}
	return fraction + strings.Repeat("0", 3-len(fraction))
}

func atoi(value string) (int, bool) {
	if value == "" {
		return 0, true
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// FromMilliseconds builds a normalized Timestamp from a total offset.
// Negative totals clamp to zero.
func FromMilliseconds(total int64) Timestamp {
	if total < 0 {
		total = 0
	}
	return Timestamp{
		Hours:        int(total / 3_600_000),
		Minutes:      int(total / 60_000 % 60),
		Seconds:      int(total / 1000 % 60),
		Milliseconds: int(total % 1000),
	}
}

// FromSeconds builds a normalized Timestamp from whole seconds.
func FromSeconds(seconds int) Timestamp {
	return FromMilliseconds(int64(seconds) * 1000)
}

// TotalMilliseconds returns the offset in milliseconds.
func (t Timestamp) TotalMilliseconds() int64 {
	return ((int64(t.Hours)*60+int64(t.Minutes))*60+int64(t.Seconds))*1000 + int64(t.Milliseconds)
}

// TotalSeconds returns the offset in whole seconds, dropping milliseconds.
func (t Timestamp) TotalSeconds() int {
	return int(t.TotalMilliseconds() / 1000)
}

// String renders the canonical HH:MM:SS.mmm form.
func (t Timestamp) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hours, t.Minutes, t.Seconds, t.Milliseconds)
}

// IsZero reports whether the offset is the script start.
func (t Timestamp) IsZero() bool {
	return t == Timestamp{}
}

// FormatMinutes renders a second count as M:SS with uncapped minutes.
func FormatMinutes(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}
