package odometry

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/rimage"
	"go.viam.com/monovo/vision/keypoints"
	"go.viam.com/monovo/vision/keypoints/descriptors"
)

// Frame is an image of the sequence with its index in the source, before any stride.
type Frame struct {
	Index int
	Image image.Image
}

// Correspondences holds two index-aligned sets of pixels: Q1[i] in the previous frame and Q2[i] in
// the current frame are the same scene point.
type Correspondences struct {
	Q1 []r2.Point
	Q2 []r2.Point
}

// Len returns the number of correspondences.
func (c *Correspondences) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Q1)
}

// Matcher finds pixel correspondences between two frames.
type Matcher interface {
	// Match returns the correspondences from prev to cur, or an error wrapping
	// ErrInsufficientFeatures when either frame has too few keypoints.
	Match(prev, cur Frame) (*Correspondences, error)
}

// ORBMatcher matches ORB features through an LSH index and a ratio test.
type ORBMatcher struct {
	orbCfg       *keypoints.ORBConfig
	matchingCfg  *keypoints.MatchingConfig
	samplePairs  *keypoints.SamplePairs
	minKeypoints int
	logger       logging.Logger
}

// NewORBMatcher returns a matcher using the keypoint and matching parameters of cfg. The BRIEF
// sample pairs are drawn once so that all frames share the same descriptor.
func NewORBMatcher(cfg *Config, logger logging.Logger) (*ORBMatcher, error) {
	if cfg.KeyPointCfg == nil || cfg.KeyPointCfg.BRIEFConf == nil {
		return nil, errors.New("ORB matcher needs a keypoint configuration")
	}
	if cfg.MatchingCfg == nil {
		return nil, errors.New("ORB matcher needs a matching configuration")
	}
	brief := cfg.KeyPointCfg.BRIEFConf
	return &ORBMatcher{
		orbCfg:       cfg.orbConfig(),
		matchingCfg:  cfg.matchingConfig(),
		samplePairs:  keypoints.GenerateSamplePairs(brief.Sampling, brief.N, brief.PatchSize),
		minKeypoints: cfg.MinKeypoints,
		logger:       logger,
	}, nil
}

// Features computes the ORB keypoints and descriptors of an image.
func (m *ORBMatcher) Features(img image.Image) (*Features, error) {
	descs, kps, err := keypoints.ComputeORBKeypoints(rimage.MakeGray(img), m.samplePairs, m.orbCfg)
	if err != nil {
		return nil, err
	}
	return &Features{Keypoints: kps, Descriptors: descs}, nil
}

// Features are the keypoints of an image and their descriptors.
type Features struct {
	Keypoints   keypoints.KeyPoints
	Descriptors descriptors.Descriptors
}

// Match detects features in both frames concurrently, then matches the previous frame descriptors
// into the current frame ones.
func (m *ORBMatcher) Match(prev, cur Frame) (*Correspondences, error) {
	var f1, f2 *Features
	var errs errgroup.Group
	errs.Go(func() (err error) {
		f1, err = m.Features(prev.Image)
		return errors.Wrapf(err, "cannot compute features of frame %d", prev.Index)
	})
	errs.Go(func() (err error) {
		f2, err = m.Features(cur.Image)
		return errors.Wrapf(err, "cannot compute features of frame %d", cur.Index)
	})
	if err := errs.Wait(); err != nil {
		return nil, err
	}
	if len(f1.Keypoints) <= m.minKeypoints || len(f2.Keypoints) <= m.minKeypoints {
		return nil, newInsufficientFeaturesError("frames %d and %d have %d and %d keypoints, need more than %d",
			prev.Index, cur.Index, len(f1.Keypoints), len(f2.Keypoints), m.minKeypoints)
	}
	matches, err := keypoints.MatchDescriptors(f1.Descriptors, f2.Descriptors, m.matchingCfg, m.logger)
	if err != nil {
		return nil, err
	}
	kps1, kps2, err := keypoints.GetMatchingKeyPoints(matches, f1.Keypoints, f2.Keypoints)
	if err != nil {
		return nil, err
	}
	m.logger.Debugw("matched frames",
		"prev", prev.Index, "cur", cur.Index, "keypoints_prev", len(f1.Keypoints),
		"keypoints_cur", len(f2.Keypoints), "matches", len(kps1))
	return &Correspondences{
		Q1: keypoints.ToFloatPoints(kps1),
		Q2: keypoints.ToFloatPoints(kps2),
	}, nil
}
