// Package rimage holds the image helpers used ahead of feature detection: decoding, gray
// conversion, blurring and pyramids.
package rimage

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	// register ppm.
	_ "github.com/lmittmann/ppm"
	"github.com/pkg/errors"
)

// ReadImageFromFile decodes the image stored at path.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode image %q", path)
	}
	return img, nil
}

// MakeGray converts any image into an image.Gray whose bounds start at the origin.
func MakeGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	result := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), img, b.Min, draw.Src)
	return result
}

// BlurGray applies a gaussian blur of the given sigma to a gray image.
func BlurGray(img *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return img
	}
	return MakeGray(imaging.Blur(img, sigma))
}

// DownscaleGray shrinks a gray image by an integer factor using linear interpolation.
func DownscaleGray(img *image.Gray, factor int) (*image.Gray, error) {
	if factor < 1 {
		return nil, errors.Errorf("downscale factor must be >= 1, got %d", factor)
	}
	if factor == 1 {
		return img, nil
	}
	w, h := img.Bounds().Dx()/factor, img.Bounds().Dy()/factor
	if w == 0 || h == 0 {
		return nil, errors.Errorf("image of size %v too small to downscale by %d", img.Bounds().Size(), factor)
	}
	return MakeGray(imaging.Resize(img, w, h, imaging.Linear)), nil
}

// SameImgSize compares images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Size() == g2.Bounds().Size()
}
