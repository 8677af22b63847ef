package engine

import "math"

// isViolation reports whether the average speed implied by traveling
// dx miles in dt seconds meets or exceeds limit+0.5 mph, using the
// cross-multiplied integer form from spec.md §9 to avoid floating
// point surprises right at the 0.5 mph boundary.
func isViolation(dx, dt uint32, limit uint16) bool {
	if dt == 0 {
		return false
	}
	lhs := uint64(2) * uint64(dx) * 3600
	rhs := uint64(2*uint32(limit)+1) * uint64(dt)
	return lhs >= rhs
}

// speedX100 computes round(100 * dx*3600/dt) and clamps to uint16.
func speedX100(dx, dt uint32) uint16 {
	numerator := uint64(dx) * 360000
	denominator := uint64(dt)
	// round-half-up for non-negative integers.
	rounded := (numerator*2 + denominator) / (denominator * 2)
	if rounded > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(rounded)
}

func absDiff(a, b uint16) uint32 {
	if a > b {
		return uint32(a - b)
	}
	return uint32(b - a)
}

func dayOf(timestamp uint32) int64 {
	return int64(timestamp) / 86400
}
