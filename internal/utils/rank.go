package utils

import "math"

// Ranks returns 1-based ranks for count already sorted items. Ranks past
// math.MaxUint16 saturate.
func Ranks(count int) []uint16 {
	ranks := make([]uint16, max(count, 0))
	for i := range ranks {
		ranks[i] = uint16(min(i+1, math.MaxUint16))
	}
	return ranks
}
