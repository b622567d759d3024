package odometry

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/monovo/rimage/transform"
	"go.viam.com/monovo/vision/keypoints"
)

// ScoringRule selects how the four pose hypotheses are compared.
type ScoringRule string

const (
	// ScoringCheiralityPlusScale adds the relative scale of a hypothesis to its count of points in
	// front of both cameras. The two terms have different units, a large scale can outweigh a
	// better cheirality count.
	ScoringCheiralityPlusScale ScoringRule = "cheirality_plus_scale"
	// ScoringCheirality only uses the count of points in front of both cameras.
	ScoringCheirality ScoringRule = "cheirality"
)

// Config contains the parameters of a visual odometry session.
type Config struct {
	CamIntrinsics *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	// Stride keeps one frame every Stride frames of the source.
	Stride int `json:"stride"`
	// RatioThreshold overrides the ratio of the matching configuration.
	RatioThreshold float64 `json:"ratio_threshold"`
	// MinKeypoints is the number of keypoints a frame must exceed for matching to happen.
	MinKeypoints int `json:"min_keypoints"`
	// MinCorrespondences is the number of correspondences a pair must exceed for a pose to be computed.
	MinCorrespondences int `json:"min_correspondences"`
	// MaxKeypoints overrides the keypoint cap of the ORB configuration.
	MaxKeypoints int         `json:"max_keypoints"`
	Scoring      ScoringRule `json:"scoring"`
	// ScaleEpsilon is the smallest distance between consecutive triangulated points in the second
	// camera that can be used to compute the relative scale.
	ScaleEpsilon float64 `json:"scale_epsilon"`
	// PointLogCapacity is the number of pairs whose triangulated points are kept, 0 keeps all of them.
	PointLogCapacity int                       `json:"point_log_capacity"`
	KeyPointCfg      *keypoints.ORBConfig      `json:"kps"`
	MatchingCfg      *keypoints.MatchingConfig `json:"matching"`
	RANSACCfg        *transform.RANSACConfig   `json:"ransac"`
}

// DefaultConfig returns the configuration of a 640x480 camera with an 800 pixels focal length.
func DefaultConfig() *Config {
	return &Config{
		CamIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  640,
			Height: 480,
			Fx:     800,
			Fy:     800,
			Ppx:    320,
			Ppy:    240,
		},
		Stride:             1,
		RatioThreshold:     0.5,
		MinKeypoints:       6,
		MinCorrespondences: 20,
		MaxKeypoints:       3000,
		Scoring:            ScoringCheiralityPlusScale,
		ScaleEpsilon:       1e-9,
		KeyPointCfg:        keypoints.DefaultORBConfig(),
		MatchingCfg:        keypoints.DefaultMatchingConfig(),
		RANSACCfg:          transform.DefaultRANSACConfig(),
	}
}

// LoadConfig loads a Config from a json file. Fields absent from the file keep their default value.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	configFile, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "cannot open odometry config")
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(config); err != nil {
		return nil, errors.Wrapf(err, "cannot decode odometry config %q", path)
	}
	if err := config.Validate(path); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures all parts of the Config are valid.
func (config *Config) Validate(path string) error {
	if config.CamIntrinsics == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "intrinsic_parameters")
	}
	if err := config.CamIntrinsics.CheckValid(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if config.Stride < 1 {
		return utils.NewConfigValidationError(path, errors.New("stride should be >= 1"))
	}
	if config.RatioThreshold <= 0 || config.RatioThreshold > 1 {
		return utils.NewConfigValidationError(path, errors.New("ratio_threshold should be in (0, 1]"))
	}
	if config.MinKeypoints < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_keypoints should be >= 0"))
	}
	if config.MinCorrespondences < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_correspondences should be >= 0"))
	}
	if config.MaxKeypoints < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_keypoints should be >= 0"))
	}
	if config.MaxKeypoints > 0 && config.MaxKeypoints <= config.MinKeypoints {
		return utils.NewConfigValidationError(path, errors.New("max_keypoints should be greater than min_keypoints"))
	}
	switch config.Scoring {
	case ScoringCheiralityPlusScale, ScoringCheirality:
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown scoring rule %q", config.Scoring))
	}
	if config.ScaleEpsilon < 0 {
		return utils.NewConfigValidationError(path, errors.New("scale_epsilon should be >= 0"))
	}
	if config.PointLogCapacity < 0 {
		return utils.NewConfigValidationError(path, errors.New("point_log_capacity should be >= 0"))
	}
	if config.KeyPointCfg == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "kps")
	}
	if err := config.KeyPointCfg.Validate(path + ".kps"); err != nil {
		return err
	}
	if config.MatchingCfg == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "matching")
	}
	if err := config.MatchingCfg.Validate(); err != nil {
		return utils.NewConfigValidationError(path+".matching", err)
	}
	if config.RANSACCfg == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "ransac")
	}
	if err := config.RANSACCfg.Validate(); err != nil {
		return utils.NewConfigValidationError(path+".ransac", err)
	}
	return nil
}

// orbConfig returns a copy of the ORB configuration with the session keypoint cap.
func (config *Config) orbConfig() *keypoints.ORBConfig {
	orb := *config.KeyPointCfg
	orb.MaxKeypoints = config.MaxKeypoints
	return &orb
}

// matchingConfig returns a copy of the matching configuration with the session ratio threshold.
func (config *Config) matchingConfig() *keypoints.MatchingConfig {
	matching := *config.MatchingCfg
	matching.RatioThreshold = config.RatioThreshold
	return &matching
}
