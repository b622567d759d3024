package odometry

import (
	"github.com/pkg/errors"
)

var (
	// ErrInsufficientFeatures is returned when a frame pair has too few keypoints or correspondences
	// for a pose to be computed.
	ErrInsufficientFeatures = errors.New("insufficient features")
	// ErrDegenerateGeometry is returned when the essential matrix, the recovered motion or the updated
	// pose is not a finite rigid transform.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrScaleIndeterminate is returned when no pair of consecutive triangulated points can be used
	// to compute the relative scale. It is a DegenerateGeometry condition.
	ErrScaleIndeterminate = errors.Wrap(ErrDegenerateGeometry, "relative scale is indeterminate")
)

// Skip reasons reported in logs and session stats.
const (
	ReasonInsufficientFeatures = "insufficient_features"
	ReasonDegenerateGeometry   = "degenerate_geometry"
	ReasonScaleIndeterminate   = "scale_indeterminate"
	ReasonUnknown              = "unknown"
)

// SkipReason classifies the error that made a frame pair skip its pose update.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFeatures):
		return ReasonInsufficientFeatures
	case errors.Is(err, ErrScaleIndeterminate):
		return ReasonScaleIndeterminate
	case errors.Is(err, ErrDegenerateGeometry):
		return ReasonDegenerateGeometry
	default:
		return ReasonUnknown
	}
}

func newInsufficientFeaturesError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInsufficientFeatures, format, args...)
}

func newDegenerateGeometryError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDegenerateGeometry, format, args...)
}
