package keypoints

import (
	"image"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

// DrawKeypoints returns a copy of img with keypoints drawn as blue disks.
func DrawKeypoints(img image.Image, kps KeyPoints) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	dc := gg.NewContext(w, h)
	dc.DrawImage(img, -img.Bounds().Min.X, -img.Bounds().Min.Y)

	// draw keypoints on image
	dc.SetRGBA(0, 0, 1, 0.5)
	for _, p := range kps {
		dc.DrawCircle(float64(p.X), float64(p.Y), float64(3.0))
		dc.Fill()
	}
	return dc.Image()
}

// PlotKeypoints plots keypoints on image and saves the result as a png file.
func PlotKeypoints(img image.Image, kps KeyPoints, outName string) error {
	dc := gg.NewContextForImage(DrawKeypoints(img, kps))
	return dc.SavePNG(outName)
}

// PlotMatchedLines stacks im1 and im2, vertically if vertical else horizontally, and draws a line
// between each pair of matched keypoints.
func PlotMatchedLines(im1, im2 image.Image, kps1, kps2 KeyPoints, vertical bool) (image.Image, error) {
	if len(kps1) != len(kps2) {
		return nil, errors.New("matched keypoint sets must have the same length")
	}
	w1, h1 := im1.Bounds().Dx(), im1.Bounds().Dy()
	w2, h2 := im2.Bounds().Dx(), im2.Bounds().Dy()
	offset := image.Point{X: w1}
	w, h := w1+w2, max(h1, h2)
	if vertical {
		offset = image.Point{Y: h1}
		w, h = max(w1, w2), h1+h2
	}

	dc := gg.NewContext(w, h)
	dc.DrawImage(im1, -im1.Bounds().Min.X, -im1.Bounds().Min.Y)
	dc.DrawImage(im2, offset.X-im2.Bounds().Min.X, offset.Y-im2.Bounds().Min.Y)

	dc.SetLineWidth(1.25)
	dc.SetRGBA(0, 1, 0, 0.75)
	for i := range kps1 {
		dc.DrawLine(
			float64(kps1[i].X), float64(kps1[i].Y),
			float64(kps2[i].X+offset.X), float64(kps2[i].Y+offset.Y),
		)
		dc.Stroke()
	}
	return dc.Image(), nil
}
