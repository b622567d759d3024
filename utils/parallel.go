package utils

import (
	"image"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ParallelForEachPixel loops through the image and calls f on every pixel, splitting rows into
// bands that are processed concurrently. f must only write to state owned by its (x, y).
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	bands := MinInt(ParallelFactor, MaxInt(size.Y, 1))
	rowsPerBand := (size.Y + bands - 1) / bands

	var wait sync.WaitGroup
	for band := 0; band < bands; band++ {
		from := band * rowsPerBand
		to := MinInt(from+rowsPerBand, size.Y)
		if from >= to {
			continue
		}
		wait.Add(1)
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			for y := from; y < to; y++ {
				for x := 0; x < size.X; x++ {
					f(x, y)
				}
			}
		})
	}
	wait.Wait()
}
