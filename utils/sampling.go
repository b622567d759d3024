package utils

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// SampleNIntegersNormal samples n integers from normal distribution centered around (vMax+vMin) / 2
// and in range [vMin, vMax].
func SampleNIntegersNormal(n int, vMin, vMax float64) []int {
	z := make([]int, n)
	// get normal distribution centered on (vMax+vMin) / 2 and whose sampled are mostly in [vMin, vMax] (var=0.1)
	mean := (vMax + vMin) / 2
	dist := distuv.Normal{
		Mu:    mean,
		Sigma: (vMax - vMin) * 0.4472,
	}
	for i := range z {
		val := math.Round(dist.Rand())
		for val < vMin || val > vMax {
			val = math.Round(dist.Rand())
		}
		z[i] = int(val)
	}

	return z
}

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax].
func SampleNIntegersUniform(n int, vMin, vMax float64) []int {
	z := make([]int, n)
	dist := distuv.Uniform{
		Min: vMin,
		Max: vMax,
	}
	for i := range z {
		val := math.Round(dist.Rand())
		for val < vMin || val > vMax {
			val = math.Round(dist.Rand())
		}
		z[i] = int(val)
	}

	return z
}

// SampleNRegularlySpaced returns n integers regularly spaced in [vMin, vMax]. The sequence wraps
// around once the range is exhausted so the result is deterministic for any n.
func SampleNRegularlySpaced(n int, vMin, vMax float64) []int {
	z := make([]int, n)
	span := int(vMax-vMin) + 1
	if span <= 0 {
		return z
	}
	// use a step co-prime with the span so that consecutive values spread over the range
	step := span/2 + 1
	for step > 1 && gcd(step, span) != 1 {
		step++
	}
	for i := range z {
		z[i] = int(vMin) + (i*step)%span
	}
	return z
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
