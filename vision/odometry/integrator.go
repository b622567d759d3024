package odometry

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/spatialmath"
)

// Integrator accumulates relative camera motions into the pose of the camera in the frame of the
// first camera.
type Integrator struct {
	pose *mat.Dense
}

// NewIntegrator returns an integrator starting at start, or at the identity if start is nil.
func NewIntegrator(start mat.Matrix) (*Integrator, error) {
	if start == nil {
		return &Integrator{pose: spatialmath.Identity()}, nil
	}
	if err := spatialmath.CheckRigid(start); err != nil {
		return nil, errors.Wrap(err, "invalid start pose")
	}
	return &Integrator{pose: mat.DenseCopyOf(start)}, nil
}

// Pose returns a copy of the current pose.
func (in *Integrator) Pose() *mat.Dense {
	return mat.DenseCopyOf(in.pose)
}

// Integrate composes the current pose with relative, new = old * relative, and returns a copy of
// the new pose. If relative or the result is not a finite rigid transform, the pose is left
// unchanged and the error wraps ErrDegenerateGeometry.
func (in *Integrator) Integrate(relative mat.Matrix) (*mat.Dense, error) {
	if relative == nil {
		return nil, newDegenerateGeometryError("missing relative transform")
	}
	if err := spatialmath.CheckRigid(relative); err != nil {
		return nil, errors.Wrap(ErrDegenerateGeometry, err.Error())
	}
	updated := spatialmath.Compose(in.pose, relative)
	if !spatialmath.IsFinite(updated) {
		return nil, newDegenerateGeometryError("updated pose has non-finite entries")
	}
	if err := spatialmath.CheckRigid(updated); err != nil {
		return nil, errors.Wrap(ErrDegenerateGeometry, err.Error())
	}
	in.pose = updated
	return in.Pose(), nil
}
