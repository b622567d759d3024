// Package keypoints contains the implementation of keypoints in an image. For now:
// - FAST keypoints
// - ORB descriptors (oriented FAST + steered BRIEF)
// - matching of binary descriptors through an LSH index.
package keypoints

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"

	"go.viam.com/monovo/utils"
)

type (
	// KeyPoint is an image.Point that contains coordinates of a kp.
	KeyPoint image.Point // keypoint type
	// KeyPoints is a slice of image.Point that contains several kps.
	KeyPoints []image.Point // set of keypoints type
)

// OrientedKeypoints contains keypoints and their corresponding orientations.
type OrientedKeypoints struct {
	Points       KeyPoints
	Orientations []float64
}

const orientationPatchRadius = 15

// orientationMaskExtent holds, for each row offset of the orientation patch, the half width of the
// circular mask at that row.
var orientationMaskExtent = computeOrientationMaskExtent(orientationPatchRadius)

func computeOrientationMaskExtent(radius int) []int {
	extent := make([]int, radius+1)
	for dy := 0; dy <= radius; dy++ {
		extent[dy] = int(math.Floor(math.Sqrt(float64(radius*radius-dy*dy)) + 0.5))
	}
	return extent
}

// computeKeypointsOrientations computes the intensity centroid angle of the circular patch around
// each keypoint. Pixels outside of the image count as black.
func computeKeypointsOrientations(img *image.Gray, kps KeyPoints) []float64 {
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		m01, m10 := 0, 0
		for dy := -orientationPatchRadius; dy <= orientationPatchRadius; dy++ {
			extent := orientationMaskExtent[utils.AbsInt(dy)]
			m01Row := 0
			for dx := -extent; dx <= extent; dx++ {
				pixVal := int(img.GrayAt(kp.X+dx, kp.Y+dy).Y)
				m10 += pixVal * dx
				m01Row += pixVal
			}
			m01 += m01Row * dy
		}
		orientations[i] = math.Atan2(float64(m01), float64(m10))
	}
	return orientations
}

// GetOrientedKeyPointsFromKeyPoints computes the orientation of keypoints in the corresponding image
// and return kps and corresponding orientations in a OrientedKeypoints struct.
func GetOrientedKeyPointsFromKeyPoints(img *image.Gray, kps KeyPoints) *OrientedKeypoints {
	return &OrientedKeypoints{
		Points:       kps,
		Orientations: computeKeypointsOrientations(img, kps),
	}
}

// RescaleKeypoints multiplies the keypoints coordinates by scaleFactor.
func RescaleKeypoints(kps KeyPoints, scaleFactor float64) KeyPoints {
	return lo.Map(kps, func(kp image.Point, _ int) image.Point {
		return image.Point{
			X: int(math.Round(float64(kp.X) * scaleFactor)),
			Y: int(math.Round(float64(kp.Y) * scaleFactor)),
		}
	})
}

// ToFloatPoints converts keypoints to sub-pixel points.
func ToFloatPoints(kps KeyPoints) []r2.Point {
	return lo.Map(kps, func(kp image.Point, _ int) r2.Point {
		return r2.Point{X: float64(kp.X), Y: float64(kp.Y)}
	})
}
