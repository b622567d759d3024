package rimage

import (
	"image"

	"github.com/pkg/errors"
)

// ImagePyramid contains successively downscaled versions of an image and the factor that maps a
// coordinate in each level back to the original image.
type ImagePyramid struct {
	Images []*image.Gray
	Scales []float64
}

// GetImagePyramid builds a pyramid of at most nLevels images, each downscaled by factor from the
// previous one. Levels whose size falls under minSize pixels on either side are not created.
func GetImagePyramid(img *image.Gray, nLevels, factor, minSize int) (*ImagePyramid, error) {
	if nLevels < 1 {
		return nil, errors.New("number of pyramid levels should be >= 1")
	}
	if factor < 2 && nLevels > 1 {
		return nil, errors.New("downscale factor should be >= 2")
	}
	pyramid := &ImagePyramid{
		Images: []*image.Gray{img},
		Scales: []float64{1},
	}
	current := img
	scale := 1.0
	for i := 1; i < nLevels; i++ {
		size := current.Bounds().Size()
		if size.X/factor < minSize || size.Y/factor < minSize {
			break
		}
		next, err := DownscaleGray(current, factor)
		if err != nil {
			return nil, err
		}
		scale *= float64(factor)
		pyramid.Images = append(pyramid.Images, next)
		pyramid.Scales = append(pyramid.Scales, scale)
		current = next
	}
	return pyramid, nil
}
