// Package analyze implements the RMS/dB verification helpers the
// signal-path tests use, e.g. "volume=0.5 halves RMS within one ULP"
// or "a known ramp survives a driver round trip".
package analyze

import "math"

// RMS computes the root-mean-square level of samples:
// sqrt(sum(x^2) / n).
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// GainChangeDB returns the dB change between an input and output RMS
// level. Returns math.Inf(-1) if inputRMS is zero (no reference level).
func GainChangeDB(inputRMS, outputRMS float64) float64 {
	if inputRMS == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(outputRMS/inputRMS)
}

// WithinULPs reports whether a and b differ by no more than n float32
// representable steps — the tolerance scenario tests use for "scales
// within one ULP" assertions on float32 DSP output.
func WithinULPs(a, b float32, n int) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	ulp := math.Nextafter32(a, a+1) - a
	if ulp < 0 {
		ulp = -ulp
	}
	return float64(diff) <= float64(n)*float64(ulp) || diff == 0
}
