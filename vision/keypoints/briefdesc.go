package keypoints

import (
	"encoding/json"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"

	"go.viam.com/monovo/rimage"
	"go.viam.com/monovo/utils"
	"go.viam.com/monovo/vision/keypoints/descriptors"
)

// SamplingType stores 0 if a sampling of image points for BRIEF is uniform, 1 if gaussian, 2 if fixed.
type SamplingType int

const (
	uniform SamplingType = iota // 0
	normal                      // 1
	fixed                       // 2
)

// briefBlurSigma is the standard deviation of the gaussian smoothing applied before sampling.
const briefBlurSigma = 2.0

// SamplePairs are N pairs of points used to create the BRIEF Descriptors of a patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs generates n samples for a patch size with the chosen Sampling Type.
func GenerateSamplePairs(dist SamplingType, n, patchSize int) *SamplePairs {
	// sample positions
	var xs0, ys0, xs1, ys1 []int
	if dist == fixed {
		xs0 = sampleIntegers(patchSize, n, dist)
		ys0 = sampleIntegers(patchSize, n, dist)
		xs1 = sampleIntegers(patchSize, n, dist)
		for i := 0; i < n; i++ {
			ys1 = append(ys1, -ys0[i])
			if i%2 == 0 {
				xs0[i] = 2 * xs0[i] / 3
				xs1[i] = -2 * xs1[i] / 3
				ys1[i] = ys0[i]
			}
		}
	} else {
		xs0 = sampleIntegers(patchSize, n, dist)
		ys0 = sampleIntegers(patchSize, n, dist)
		xs1 = sampleIntegers(patchSize, n, dist)
		ys1 = sampleIntegers(patchSize, n, dist)
	}
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: xs0[i], Y: ys0[i]})
		p1 = append(p1, image.Point{X: xs1[i], Y: ys1[i]})
	}

	return &SamplePairs{P0: p0, P1: p1, N: n}
}

// Radius returns the distance from the patch center to the farthest sample, which bounds the
// footprint of the patch under any rotation.
func (sp *SamplePairs) Radius() float64 {
	radius := 0.
	for _, pts := range [][]image.Point{sp.P0, sp.P1} {
		for _, p := range pts {
			radius = math.Max(radius, math.Hypot(float64(p.X), float64(p.Y)))
		}
	}
	return radius
}

func sampleIntegers(patchSize, n int, sampling SamplingType) []int {
	vMin := math.Round(-(float64(patchSize) - 2) / 2.)
	vMax := math.Round(float64(patchSize) / 2.)
	switch sampling {
	case uniform:
		return utils.SampleNIntegersUniform(n, vMin, vMax)
	case normal:
		return utils.SampleNIntegersNormal(n, vMin, vMax)
	case fixed:
		return utils.SampleNRegularlySpaced(n, vMin, vMax)
	default:
		return utils.SampleNIntegersUniform(n, vMin, vMax)
	}
}

// BRIEFConfig stores the parameters.
type BRIEFConfig struct {
	N              int          `json:"n"` // number of samples taken
	Sampling       SamplingType `json:"sampling"`
	UseOrientation bool         `json:"use_orientation"`
	PatchSize      int          `json:"patch_size"`
}

// DefaultBRIEFConfig returns a 256 bits steered BRIEF configuration over a 31x31 patch.
func DefaultBRIEFConfig() *BRIEFConfig {
	return &BRIEFConfig{
		N:              256,
		Sampling:       normal,
		UseOrientation: true,
		PatchSize:      31,
	}
}

// Validate ensures all parts of the BRIEFConfig are valid.
func (cfg *BRIEFConfig) Validate(path string) error {
	if cfg.N < 64 || cfg.N%64 != 0 {
		return uts.NewConfigValidationError(path, errors.New("n should be a positive multiple of 64"))
	}
	if cfg.Sampling < uniform || cfg.Sampling > fixed {
		return uts.NewConfigValidationError(path, errors.Errorf("unknown sampling type %d", cfg.Sampling))
	}
	if cfg.PatchSize < 3 {
		return uts.NewConfigValidationError(path, errors.New("patch_size should be >= 3"))
	}
	return nil
}

// LoadBRIEFConfiguration loads a BRIEFConfig from a json file.
func LoadBRIEFConfiguration(file string) (*BRIEFConfig, error) {
	var config BRIEFConfig
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer uts.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "cannot decode BRIEF config %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// ComputeBRIEFDescriptors computes BRIEF descriptors on image img at keypoints kps.
// Keypoints whose rotated patch does not fit in the image get an all-zero descriptor.
func ComputeBRIEFDescriptors(img *image.Gray, sp *SamplePairs, kps *FASTKeypoints, cfg *BRIEFConfig,
) (descriptors.Descriptors, error) {
	if sp.N != cfg.N {
		return nil, errors.Errorf("sample pairs has %d pairs, config asks for %d", sp.N, cfg.N)
	}
	if cfg.N%64 != 0 {
		return nil, errors.Errorf("number of BRIEF samples must be a multiple of 64, got %d", cfg.N)
	}
	blurred := rimage.BlurGray(img, briefBlurSigma)

	descs := make(descriptors.Descriptors, len(kps.Points))
	inner := shrinkRect(blurred.Bounds(), int(math.Ceil(sp.Radius())))
	for k, kp := range kps.Points {
		// Divide by 64 since we store a descriptor as a uint64 array.
		descriptor := make(descriptors.Descriptor, sp.N/64)
		if !kp.In(inner) {
			descs[k] = descriptor
			continue
		}
		cosTheta := 1.0
		sinTheta := 0.0
		// if use orientation and keypoints are oriented, compute rotation matrix
		if cfg.UseOrientation && kps.IsOriented() {
			angle := kps.Orientations[k]
			cosTheta = math.Cos(angle)
			sinTheta = math.Sin(angle)
		}
		for i := 0; i < sp.N; i++ {
			x0, y0 := float64(sp.P0[i].X), float64(sp.P0[i].Y)
			x1, y1 := float64(sp.P1[i].X), float64(sp.P1[i].Y)
			// compute rotated sampled coordinates (Identity matrix if no orientation)
			outx0 := int(math.Round(cosTheta*x0 - sinTheta*y0))
			outy0 := int(math.Round(sinTheta*x0 + cosTheta*y0))
			outx1 := int(math.Round(cosTheta*x1 - sinTheta*y1))
			outy1 := int(math.Round(sinTheta*x1 + cosTheta*y1))
			// fill BRIEF descriptor
			p0Val := blurred.GrayAt(kp.X+outx0, kp.Y+outy0).Y
			p1Val := blurred.GrayAt(kp.X+outx1, kp.Y+outy1).Y
			if p0Val > p1Val {
				// This flips the bit at i%64 to 1.
				descriptor[i/64] |= 1 << (i % 64)
			}
		}
		descs[k] = descriptor
	}
	return descs, nil
}

// shrinkRect removes a margin on each side of r.
func shrinkRect(r image.Rectangle, margin int) image.Rectangle {
	inner := image.Rectangle{
		Min: image.Point{r.Min.X + margin, r.Min.Y + margin},
		Max: image.Point{r.Max.X - margin, r.Max.Y - margin},
	}
	if inner.Empty() {
		return image.Rectangle{}
	}
	return inner
}
