package timestamp

import (
	"math"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

var unitPattern = regexp.MustCompile(`^(?:(\d+(?:[.,]\d+)?)\s*(?:giờ|tiếng|hours?|hrs?|h))?\s*` +
	`(?:(\d+(?:[.,]\d+)?)\s*(?:phút|minutes?|mins?|m|p))?\s*` +
	`(?:(\d+(?:[.,]\d+)?)\s*(?:giây|seconds?|secs?|s|g))?$`)

// ParseDurationSeconds reads a scene duration cell such as "5s", "5 giây",
// "1m30s", "2 phút", "1:30", or a bare number of seconds. Fractional seconds
// round to the nearest whole second.
func ParseDurationSeconds(raw string) (int, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, false
	}

	if strings.Contains(value, ":") {
		ts, ok := Parse(value)
		if !ok {
			return 0, false
		}
		return roundSeconds(float64(ts.TotalMilliseconds()) / 1000)
	}

	if n, err := cast.ToFloat64E(strings.Replace(value, ",", ".", 1)); err == nil {
		if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return roundSeconds(n)
	}

	m := unitPattern.FindStringSubmatch(value)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, false
	}
	total := 0.0
	for i, scale := range []float64{3600, 60, 1} {
		part := m[i+1]
		if part == "" {
			continue
		}
		n, err := cast.ToFloat64E(strings.Replace(part, ",", ".", 1))
		if err != nil {
			return 0, false
		}
		total += n * scale
	}
	return roundSeconds(total)
}

// maxDurationSeconds keeps a duration convertible to int64 milliseconds.
const maxDurationSeconds = math.MaxInt64 / 1000

func roundSeconds(v float64) (int, bool) {
	r := math.Round(v)
	if r < 0 || r >= maxDurationSeconds || math.IsNaN(r) {
		return 0, false
	}
	return int(r), true
}
