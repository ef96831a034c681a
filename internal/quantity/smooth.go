package quantity

import (
	"math"

	"gonum.org/v1/gonum/interp"
)

// fillGaps replaces NaN values by linear interpolation between their valid
// neighbours. Leading and trailing gaps take the nearest valid value. It
// reports false when the series holds no valid value.
func fillGaps(ys []float64) ([]float64, bool) {
	var xs, valid []float64
	for i, y := range ys {
		if !math.IsNaN(y) {
			xs = append(xs, float64(i))
			valid = append(valid, y)
		}
	}
	out := make([]float64, len(ys))
	switch len(valid) {
	case 0:
		copy(out, ys)
		return out, false
	case 1:
		for i := range out {
			out[i] = valid[0]
		}
		return out, true
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, valid); err != nil {
		copy(out, ys)
		return out, false
	}
	for i := range out {
		out[i] = pl.Predict(float64(i))
	}
	return out, true
}

// gaussianKernel returns a normalized kernel truncated at four sigmas.
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianFilter convolves ys with a Gaussian of the given sigma, repeating
// the edge values beyond both ends.
func gaussianFilter(ys []float64, sigma float64) []float64 {
	out := make([]float64, len(ys))
	if len(ys) == 0 {
		return out
	}
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	last := len(ys) - 1
	for i := range ys {
		var acc float64
		for k, w := range kernel {
			j := min(max(i+k-radius, 0), last)
			acc += w * ys[j]
		}
		out[i] = acc
	}
	return out
}

// smooth fills the gaps of ys, filters it, then masks the positions that
// were NaN in ys again.
func smooth(ys []float64, sigma float64) []float64 {
	filled, ok := fillGaps(ys)
	if !ok || sigma <= 0 {
		return filled
	}
	out := gaussianFilter(filled, sigma)
	for i, y := range ys {
		if math.IsNaN(y) {
			out[i] = math.NaN()
		}
	}
	return out
}

// gradient differentiates ys with central differences inside and one-sided
// differences at both ends, h being the sample spacing.
func gradient(ys []float64, h float64) []float64 {
	n := len(ys)
	out := make([]float64, n)
	if n < 2 || h == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	out[0] = (ys[1] - ys[0]) / h
	out[n-1] = (ys[n-1] - ys[n-2]) / h
	for i := 1; i < n-1; i++ {
		out[i] = (ys[i+1] - ys[i-1]) / (2 * h)
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
