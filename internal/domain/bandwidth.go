package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// bandwidthRe captures the first number in a bandwidth string and an optional
// unit that follows it, e.g. "42.5 Mbps" -> ("42.5", "Mbps").
var bandwidthRe = regexp.MustCompile(`(\d+(?:\.\d+)?|\.\d+)\s*([A-Za-z/]*)`)

// Multipliers to megabits per second, keyed by lower-cased unit.
var bandwidthUnits = map[string]float64{
	"":     1,
	"bps":  1e-6,
	"kbps": 1e-3,
	"mbps": 1,
	"gbps": 1e3,
	"tbps": 1e6,
	"b/s":  1e-6,
	"kb/s": 1e-3,
	"mb/s": 1,
	"gb/s": 1e3,
	"tb/s": 1e6,
}

// ParseBandwidth converts a unit-tagged bandwidth string to megabits per second.
// A bare number is taken as Mbps. Returns ok=false for empty input, a missing
// number, or an unknown unit.
func ParseBandwidth(value string) (mbps float64, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	matches := bandwidthRe.FindStringSubmatch(value)
	if len(matches) != 3 {
		return 0, false
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}

	mult, known := bandwidthUnits[strings.ToLower(matches[2])]
	if !known {
		return 0, false
	}
	return num * mult, true
}

// CallDropRate returns dropped/total as a percentage. Zero or negative totals
// yield 0 rather than NaN or Inf.
func CallDropRate(dropped, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(dropped) / float64(total) * 100
}
