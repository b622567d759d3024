package keypoints

import (
	"encoding/json"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/monovo/rimage"
	"go.viam.com/monovo/vision/keypoints/descriptors"
)

// ORBConfig contains the parameters / configs needed to compute ORB features.
type ORBConfig struct {
	Layers          int          `json:"n_layers"`
	DownscaleFactor int          `json:"downscale_factor"`
	MaxKeypoints    int          `json:"max_keypoints"` // 0 keeps every keypoint
	FastConf        *FASTConfig  `json:"fast"`
	BRIEFConf       *BRIEFConfig `json:"brief"`
}

// DefaultORBConfig returns the ORB configuration used when none is given.
func DefaultORBConfig() *ORBConfig {
	return &ORBConfig{
		Layers:          4,
		DownscaleFactor: 2,
		MaxKeypoints:    3000,
		FastConf:        DefaultFASTConfig(),
		BRIEFConf:       DefaultBRIEFConfig(),
	}
}

// LoadORBConfiguration loads a ORBConfig from a json file.
func LoadORBConfiguration(file string) (*ORBConfig, error) {
	var config ORBConfig
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	jsonParser := json.NewDecoder(configFile)
	err = jsonParser.Decode(&config)
	if err != nil {
		return nil, err
	}
	err = config.Validate(file)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the ORBConfig are valid.
func (config *ORBConfig) Validate(path string) error {
	if config.Layers < 1 {
		return utils.NewConfigValidationError(path, errors.New("n_layers should be >= 1"))
	}
	if config.DownscaleFactor <= 1 {
		return utils.NewConfigValidationError(path, errors.New("downscale_factor should be greater than 1"))
	}
	if config.MaxKeypoints < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_keypoints should be >= 0"))
	}
	if config.FastConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "fast")
	}
	if err := config.FastConf.Validate(path + ".fast"); err != nil {
		return err
	}
	if config.BRIEFConf == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "brief")
	}
	return config.BRIEFConf.Validate(path + ".brief")
}

// ComputeORBKeypoints compute ORB keypoints on gray image. Keypoints are detected on every level of
// an image pyramid, described on their own level and returned in the coordinates of im, sorted by
// decreasing FAST score and capped at cfg.MaxKeypoints.
func ComputeORBKeypoints(im *image.Gray, sp *SamplePairs, cfg *ORBConfig) (descriptors.Descriptors, KeyPoints, error) {
	if cfg.Layers <= 0 {
		return nil, nil, errors.New("number of layers should be > 0")
	}
	if cfg.DownscaleFactor <= 1 {
		return nil, nil, errors.New("downscale factor should be >= 2")
	}
	margin := int(math.Ceil(sp.Radius()))
	pyramid, err := rimage.GetImagePyramid(im, cfg.Layers, cfg.DownscaleFactor, 2*margin+1)
	if err != nil {
		return nil, nil, err
	}
	orbDescriptors := make(descriptors.Descriptors, 0)
	orbPoints := make(KeyPoints, 0)
	scores := make([]float64, 0)
	for i, currentImage := range pyramid.Images {
		fastKps := NewFASTKeypointsFromImage(currentImage, cfg.FastConf)
		fastKps = keepInside(fastKps, shrinkRect(currentImage.Bounds(), margin))
		descs, err := ComputeBRIEFDescriptors(currentImage, sp, fastKps, cfg.BRIEFConf)
		if err != nil {
			return nil, nil, err
		}
		orbDescriptors = append(orbDescriptors, descs...)
		orbPoints = append(orbPoints, RescaleKeypoints(fastKps.Points, pyramid.Scales[i])...)
		scores = append(scores, fastKps.Scores...)
	}
	return rankKeypoints(orbDescriptors, orbPoints, scores, cfg.MaxKeypoints)
}

// keepInside drops the keypoints outside of r.
func keepInside(kps *FASTKeypoints, r image.Rectangle) *FASTKeypoints {
	out := &FASTKeypoints{
		Points: make(KeyPoints, 0, len(kps.Points)),
		Scores: make([]float64, 0, len(kps.Scores)),
	}
	if kps.IsOriented() {
		out.Orientations = make([]float64, 0, len(kps.Orientations))
	}
	for i, kp := range kps.Points {
		if !kp.In(r) {
			continue
		}
		out.Points = append(out.Points, kp)
		out.Scores = append(out.Scores, kps.Scores[i])
		if kps.IsOriented() {
			out.Orientations = append(out.Orientations, kps.Orientations[i])
		}
	}
	return out
}

// rankKeypoints sorts keypoints by decreasing score and keeps the best maxKps of them.
func rankKeypoints(descs descriptors.Descriptors, kps KeyPoints, scores []float64, maxKps int,
) (descriptors.Descriptors, KeyPoints, error) {
	if len(descs) != len(kps) || len(kps) != len(scores) {
		return nil, nil, errors.New("keypoints, descriptors and scores must have the same length")
	}
	negScores := make([]float64, len(scores))
	floats.ScaleTo(negScores, -1, scores)
	order := make([]int, len(scores))
	floats.Argsort(negScores, order)
	n := len(order)
	if maxKps > 0 && n > maxKps {
		n = maxKps
	}
	rankedDescs := make(descriptors.Descriptors, n)
	rankedKps := make(KeyPoints, n)
	for i := 0; i < n; i++ {
		rankedDescs[i] = descs[order[i]]
		rankedKps[i] = kps[order[i]]
	}
	return rankedDescs, rankedKps, nil
}
