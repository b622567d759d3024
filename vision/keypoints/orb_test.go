package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/vision/keypoints/descriptors"
)

// createTexturedImage draws random gray rectangles, a texture full of corners.
func createTexturedImage(w, h int, seed int64) *image.Gray {
	//nolint:gosec
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{128}}, image.Point{}, draw.Src)
	for i := 0; i < 400; i++ {
		x, y := rng.Intn(w), rng.Intn(h)
		rw, rh := 4+rng.Intn(24), 4+rng.Intn(24)
		c := color.Gray{uint8(rng.Intn(256))}
		draw.Draw(img, image.Rect(x, y, x+rw, y+rh), &image.Uniform{c}, image.Point{}, draw.Src)
	}
	return img
}

// shiftImage returns the w x h window of img starting at offset.
func shiftImage(img *image.Gray, offset image.Point, w, h int) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), img, offset, draw.Src)
	return out
}

func TestLoadORBConfiguration(t *testing.T) {
	cfg, err := LoadORBConfiguration(filepath.Join("data", "orb.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Layers, test.ShouldEqual, 3)
	test.That(t, cfg.DownscaleFactor, test.ShouldEqual, 2)
	test.That(t, cfg.MaxKeypoints, test.ShouldEqual, 500)
	test.That(t, cfg.FastConf.NMatchesCircle, test.ShouldEqual, 9)
	test.That(t, cfg.BRIEFConf.N, test.ShouldEqual, 256)
	test.That(t, cfg.BRIEFConf.Sampling, test.ShouldEqual, normal)

	tests := []struct {
		name   string
		modify func(cfg *ORBConfig)
		errMsg string
	}{
		{"layers", func(cfg *ORBConfig) { cfg.Layers = 0 }, "n_layers"},
		{"downscale", func(cfg *ORBConfig) { cfg.DownscaleFactor = 1 }, "downscale_factor"},
		{"cap", func(cfg *ORBConfig) { cfg.MaxKeypoints = -1 }, "max_keypoints"},
		{"fast", func(cfg *ORBConfig) { cfg.FastConf = nil }, "fast"},
		{"brief", func(cfg *ORBConfig) { cfg.BRIEFConf = nil }, "brief"},
		{"brief n", func(cfg *ORBConfig) { cfg.BRIEFConf.N = 100 }, "multiple of 64"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultORBConfig()
			tc.modify(cfg)
			err := cfg.Validate("kps")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}
}

func TestComputeORBKeypoints(t *testing.T) {
	img := createTexturedImage(320, 240, 1)
	cfg := DefaultORBConfig()
	sp := GenerateSamplePairs(cfg.BRIEFConf.Sampling, cfg.BRIEFConf.N, cfg.BRIEFConf.PatchSize)

	descs, kps, err := ComputeORBKeypoints(img, sp, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(kps), test.ShouldBeGreaterThan, 50)
	test.That(t, descs, test.ShouldHaveLength, len(kps))
	for _, kp := range kps {
		test.That(t, kp.In(img.Bounds()), test.ShouldBeTrue)
	}
	for _, d := range descs {
		test.That(t, d, test.ShouldHaveLength, 4)
	}

	cfg.MaxKeypoints = 30
	capped, cappedKps, err := ComputeORBKeypoints(img, sp, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cappedKps, test.ShouldHaveLength, 30)
	test.That(t, capped, test.ShouldHaveLength, 30)

	// a flat image yields no keypoint
	flat := image.NewGray(image.Rect(0, 0, 320, 240))
	flatDescs, flatKps, err := ComputeORBKeypoints(flat, sp, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, flatKps, test.ShouldBeEmpty)
	test.That(t, flatDescs, test.ShouldBeEmpty)

	cfg.Layers = 0
	_, _, err = ComputeORBKeypoints(img, sp, cfg)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRankKeypoints(t *testing.T) {
	kps := KeyPoints{{0, 0}, {1, 1}, {2, 2}}
	ranked, rankedKps, err := rankKeypoints(
		descriptors.Descriptors{{0}, {1}, {2}}, kps, []float64{5, 50, 10}, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rankedKps, test.ShouldResemble, KeyPoints{{1, 1}, {2, 2}})
	test.That(t, ranked, test.ShouldHaveLength, 2)
	test.That(t, ranked[0][0], test.ShouldEqual, uint64(1))

	_, _, err = rankKeypoints(descriptors.Descriptors{{0}}, kps, []float64{1, 2, 3}, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMatchShiftedImages(t *testing.T) {
	logger := logging.NewTestLogger(t)
	big := createTexturedImage(400, 300, 7)
	shift := image.Point{16, 8}
	im1 := shiftImage(big, image.Point{}, 320, 240)
	im2 := shiftImage(big, shift, 320, 240)

	cfg := DefaultORBConfig()
	sp := GenerateSamplePairs(cfg.BRIEFConf.Sampling, cfg.BRIEFConf.N, cfg.BRIEFConf.PatchSize)
	desc1, kps1, err := ComputeORBKeypoints(im1, sp, cfg)
	test.That(t, err, test.ShouldBeNil)
	desc2, kps2, err := ComputeORBKeypoints(im2, sp, cfg)
	test.That(t, err, test.ShouldBeNil)

	matches, err := MatchDescriptors(desc1, desc2, DefaultMatchingConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
	matched1, matched2, err := GetMatchingKeyPoints(matches, kps1, kps2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, matched1, test.ShouldHaveLength, len(matches.Indices))
	test.That(t, len(matched1), test.ShouldBeGreaterThan, 30)

	consistent := 0
	for i := range matched1 {
		// a point at p in the first image is at p - shift in the second one
		if matched2[i].Add(shift) == matched1[i] {
			consistent++
		}
	}
	test.That(t, float64(consistent)/float64(len(matched1)), test.ShouldBeGreaterThan, 0.8)

	out, err := PlotMatchedLines(im1, im2, matched1, matched2, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 640)
	test.That(t, out.Bounds().Dy(), test.ShouldEqual, 240)
}

func TestPlotKeypoints(t *testing.T) {
	rectImage := createTestImage()
	kps := ComputeFAST(rectImage, DefaultFASTConfig())
	outName := filepath.Join(t.TempDir(), "keypoints.png")
	test.That(t, PlotKeypoints(rectImage, kps, outName), test.ShouldBeNil)
	drawn := DrawKeypoints(rectImage, kps)
	test.That(t, drawn.Bounds(), test.ShouldResemble, rectImage.Bounds())

	vertical, err := PlotMatchedLines(rectImage, rectImage, kps, kps, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, vertical.Bounds().Dx(), test.ShouldEqual, 300)
	test.That(t, vertical.Bounds().Dy(), test.ShouldEqual, 400)

	_, err = PlotMatchedLines(rectImage, rectImage, kps, kps[:1], true)
	test.That(t, err, test.ShouldNotBeNil)
}
