package utils

import (
	"image"
	"math"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestSampling(t *testing.T) {
	uniform := SampleNIntegersUniform(500, -15, 16)
	test.That(t, len(uniform), test.ShouldEqual, 500)
	for _, v := range uniform {
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, -15)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 16)
	}

	normal := SampleNIntegersNormal(500, -15, 16)
	test.That(t, len(normal), test.ShouldEqual, 500)
	for _, v := range normal {
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, -15)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 16)
	}

	regular := SampleNRegularlySpaced(64, -15, 16)
	test.That(t, len(regular), test.ShouldEqual, 64)
	seen := map[int]bool{}
	for _, v := range regular {
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, -15)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 16)
		seen[v] = true
	}
	// 64 samples over a span of 32 visit every value
	test.That(t, len(seen), test.ShouldEqual, 32)
	test.That(t, SampleNRegularlySpaced(64, -15, 16), test.ShouldResemble, regular)
}

func TestFinite(t *testing.T) {
	test.That(t, IsFinite(1.5), test.ShouldBeTrue)
	test.That(t, IsFinite(math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(math.Inf(-1)), test.ShouldBeFalse)
	test.That(t, AllFinite(0, 1, 2), test.ShouldBeTrue)
	test.That(t, AllFinite(0, math.Inf(1)), test.ShouldBeFalse)
	test.That(t, AllFinite(), test.ShouldBeTrue)
}

func TestParallelForEachPixel(t *testing.T) {
	size := image.Point{37, 23}
	visited := make([]int32, size.X*size.Y)
	var total atomic.Int32
	ParallelForEachPixel(size, func(x, y int) {
		atomic.AddInt32(&visited[y*size.X+x], 1)
		total.Add(1)
	})
	test.That(t, int(total.Load()), test.ShouldEqual, size.X*size.Y)
	for _, v := range visited {
		test.That(t, v, test.ShouldEqual, 1)
	}
}

func TestIntHelpers(t *testing.T) {
	test.That(t, AbsInt(-3), test.ShouldEqual, 3)
	test.That(t, MaxInt(2, 7), test.ShouldEqual, 7)
	test.That(t, MinInt(2, 7), test.ShouldEqual, 2)
	test.That(t, ClampF64(300, 0, 255), test.ShouldEqual, 255)
	test.That(t, Square(3), test.ShouldEqual, 9)
}
