package auth

import (
	"errors"
	"math"
	"slices"
)

// errEmptySample is returned by [Extract] for a clip without samples.
var errEmptySample = errors.New("auth: empty voice sample")

// Features is the coarse acoustic signature of one voice sample: mean,
// standard deviation, energy (mean of squares), maximum and minimum of the
// 16-bit PCM samples.
//
// This is a gating heuristic. It keeps a passer-by from triggering system
// commands; it does not identify a speaker.
type Features [5]float64

// Extract computes the feature vector of a PCM sample buffer.
func Extract(samples []int16) (Features, error) {
	if len(samples) == 0 {
		return Features{}, errEmptySample
	}
	n := float64(len(samples))
	var sum, sumSq float64
	for _, s := range samples {
		v := float64(s)
		sum += v
		sumSq += v * v
	}
	mean := sum / n

	var variance float64
	for _, s := range samples {
		d := float64(s) - mean
		variance += d * d
	}
	variance /= n

	return Features{
		mean,
		math.Sqrt(variance),
		sumSq / n,
		float64(slices.Max(samples)),
		float64(slices.Min(samples)),
	}, nil
}

// Norm returns the Euclidean length of f.
func (f Features) Norm() float64 {
	var sum float64
	for _, v := range f {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Distance returns the Euclidean distance between f and g.
func (f Features) Distance(g Features) float64 {
	var sum float64
	for i := range f {
		d := f[i] - g[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Mean returns the element-wise mean of samples. It returns the zero vector
// for an empty slice.
func Mean(samples []Features) Features {
	var out Features
	if len(samples) == 0 {
		return out
	}
	for _, s := range samples {
		for i, v := range s {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(samples))
	}
	return out
}

// Matches reports whether sample is within ratio × ‖profile‖ of profile. The
// comparison is strict: a distance equal to the threshold does not match.
func Matches(profile, sample Features, ratio float64) bool {
	return profile.Distance(sample) < ratio*profile.Norm()
}
