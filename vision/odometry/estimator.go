package odometry

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/rimage/transform"
	"go.viam.com/monovo/spatialmath"
)

// Estimator fits an essential matrix to a set of correspondences.
type Estimator interface {
	Estimate(c *Correspondences) (*mat.Dense, error)
}

// RANSACEstimator estimates essential matrices robustly with RANSAC.
type RANSACEstimator struct {
	intrinsics *transform.PinholeCameraIntrinsics
	cfg        *transform.RANSACConfig
	logger     logging.Logger
}

// NewRANSACEstimator returns an estimator for a camera with the given intrinsics.
func NewRANSACEstimator(
	intrinsics *transform.PinholeCameraIntrinsics,
	cfg *transform.RANSACConfig,
	logger logging.Logger,
) (*RANSACEstimator, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = transform.DefaultRANSACConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RANSACEstimator{intrinsics: intrinsics, cfg: cfg, logger: logger}, nil
}

// Estimate returns the essential matrix of the correspondences. It returns an error wrapping
// ErrInsufficientFeatures when there are too few correspondences, and ErrDegenerateGeometry when
// no finite matrix can be fitted.
func (e *RANSACEstimator) Estimate(c *Correspondences) (*mat.Dense, error) {
	est, err := transform.EstimateEssentialMatrix(c.Q1, c.Q2, e.intrinsics, e.cfg)
	if err != nil {
		if errors.Is(err, transform.ErrNotEnoughPoints) {
			return nil, errors.Wrap(ErrInsufficientFeatures, err.Error())
		}
		return nil, errors.Wrap(ErrDegenerateGeometry, err.Error())
	}
	if !spatialmath.IsFinite(est.Matrix) {
		return nil, newDegenerateGeometryError("essential matrix has non-finite entries")
	}
	e.logger.Debugw("estimated essential matrix",
		"correspondences", c.Len(), "inliers", est.NumInliers, "iterations", est.Iterations)
	return est.Matrix, nil
}
