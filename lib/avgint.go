package lib

import "math"

// AverageInt64 single pass mean, variance and extrema over int64
// samples, used for per-worker statistics.
type AverageInt64 struct {
	n      int64
	minval int64
	maxval int64
	sum    int64
	sumsq  float64
	init   bool
}

// Add a sample.
func (av *AverageInt64) Add(sample int64) {
	av.n++
	av.sum += sample
	f := float64(sample)
	av.sumsq += f * f
	first := av.init == false
	if first || sample < av.minval {
		av.minval = sample
	}
	if first || av.maxval < sample {
		av.maxval = sample
	}
	av.init = true
}

// Min smallest sample.
func (av *AverageInt64) Min() int64 {
	return av.minval
}

// Max largest sample.
func (av *AverageInt64) Max() int64 {
	return av.maxval
}

// Samples count added so far.
func (av *AverageInt64) Samples() int64 {
	return av.n
}

// Sum of all samples.
func (av *AverageInt64) Sum() int64 {
	return av.sum
}

// Mean of all samples.
func (av *AverageInt64) Mean() int64 {
	if av.n == 0 {
		return 0
	}
	return int64(float64(av.sum) / float64(av.n))
}

// Variance of all samples.
func (av *AverageInt64) Variance() float64 {
	if av.n == 0 {
		return 0
	}
	nf := float64(av.n)
	meanf := float64(av.sum) / nf
	return (av.sumsq / nf) - (meanf * meanf)
}

// SD standard deviation of all samples.
func (av *AverageInt64) SD() float64 {
	if av.n == 0 {
		return 0
	}
	return math.Sqrt(av.Variance())
}
