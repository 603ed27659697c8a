package common

import (
	"sort"
	"time"
)

// Median gets the median duration in a slice of durations
func Median(input []time.Duration) (median time.Duration) {

	// Start by sorting a copy of the slice
	s := make([]time.Duration, len(input))
	copy(s, input)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	// Even lengths average the two middle samples
	l := len(s)
	if l == 0 {
		return 0
	} else if l%2 == 0 {
		median = (s[l/2-1] + s[l/2]) / 2
	} else {
		median = s[l/2]
	}

	return median
}
