package ranking

import "math"

// smallPassCount is the fixed pass count for very small recruitments.
var smallPassCount = map[int]int{5: 10, 4: 9, 3: 8, 2: 6, 1: 3}

// PassMultiple returns the pass multiple for a recruit count. ok is false
// when the region does not recruit.
func PassMultiple(recruit int) (m float64, ok bool) {
	switch {
	case recruit <= 0:
		return 0, false
	case recruit >= 150:
		return 1.5, true
	case recruit >= 100:
		return 1.6, true
	case recruit >= 50:
		return 1.7, true
	case recruit >= 6:
		return 1.8, true
	}
	return math.Round(float64(smallPassCount[recruit])/float64(recruit)*10) / 10, true
}

// PassCount is the number of top ranks considered in range of passing.
func PassCount(recruit int) (int, bool) {
	if n, ok := smallPassCount[recruit]; ok {
		return n, true
	}
	m, ok := PassMultiple(recruit)
	if !ok {
		return 0, false
	}
	return stableCeil(float64(recruit) * m), true
}

// stableCeil and stableFloor snap products like 10*1.8 = 18.000000000000004
// back onto the integer before rounding.
func stableCeil(v float64) int  { return int(math.Ceil(math.Round(v*1e6) / 1e6)) }
func stableFloor(v float64) int { return int(math.Floor(math.Round(v*1e6) / 1e6)) }
