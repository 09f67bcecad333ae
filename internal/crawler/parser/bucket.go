package parser

import (
	"fmt"
	"math"
)

const (
	bucketNull     = "null"
	bucketNegative = "<0"
	bucketOverflow = "100+"

	bucketUpperBound = 100.0
	bucketCount      = 20
)

// PEBucket classifies a price/earnings ratio into one of twenty 5-wide bins over [0, 100].
// Bins are half-open [lo, hi) except the last, which also takes 100.
func PEBucket(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return bucketNull
	}
	value := *v
	switch {
	case value < 0:
		return bucketNegative
	case value > bucketUpperBound:
		return bucketOverflow
	}

	width := bucketUpperBound / bucketCount
	idx := int(math.Floor(value / width))
	if idx >= bucketCount {
		idx = bucketCount - 1
	}
	lower := idx * int(width)
	return fmt.Sprintf("%d-%d", lower, lower+int(width))
}
