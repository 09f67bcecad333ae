package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Optional sign, optional leading dot, digits grouped by "," in threes, optional fraction and exponent.
var numberPattern = regexp.MustCompile(`[-+]?[.]?\d+(?:,\d\d\d)*[.]?\d*(?:[eE][-+]?\d+)?`)

// ParseNumber extracts the first number embedded in s. Units, currency symbols and
// trailing percent signs around it are ignored. It returns nil when s holds no
// number, which callers store as "no value" rather than zero.
func ParseNumber(s string) *float64 {
	match := numberPattern.FindString(s)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
