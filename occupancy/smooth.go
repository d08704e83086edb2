package occupancy

import "math"

// gaussianSmooth1D convolves values with a normalized gaussian kernel of
// the given standard deviation (in slots). The kernel is truncated at four
// standard deviations and the signal is extended by reflection at both
// ends, so short blocks smooth without edge droop.
func gaussianSmooth1D(values []float64, sigma float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if sigma <= 0 || len(values) == 1 {
		copy(out, values)
		return out
	}

	radius := int(4*sigma + 0.5)
	if radius < 1 {
		radius = 1
	}

	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	n := len(values)
	for i := range values {
		var acc float64
		for k := -radius; k <= radius; k++ {
			acc += kernel[k+radius] * values[reflectIndex(i+k, n)]
		}
		out[i] = acc
	}
	return out
}

// reflectIndex maps an out-of-range index back into [0, n) by mirroring
// at the boundaries (..., 1, 0, 0, 1, ... at the left edge).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
