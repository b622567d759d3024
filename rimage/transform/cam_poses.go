package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PoseHypothesis is one candidate (rotation, signed translation) recovered from an essential
// matrix. It maps points from the first camera frame to the second: X2 = R X1 + t.
type PoseHypothesis struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// Transform returns the 4x4 homogeneous transform [R t; 0 1].
func (h PoseHypothesis) Transform() *mat.Dense {
	transform := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			transform.Set(i, j, h.Rotation.At(i, j))
		}
	}
	transform.Set(0, 3, h.Translation.X)
	transform.Set(1, 3, h.Translation.Y)
	transform.Set(2, 3, h.Translation.Z)
	transform.Set(3, 3, 1)
	return transform
}

// Apply maps a point from the first camera frame to the second one.
func (h PoseHypothesis) Apply(p r3.Vector) r3.Vector {
	r := h.Rotation
	return r3.Vector{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z + h.Translation.X,
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z + h.Translation.Y,
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z + h.Translation.Z,
	}
}

// Scaled returns the hypothesis with its translation multiplied by scale.
func (h PoseHypothesis) Scaled(scale float64) PoseHypothesis {
	return PoseHypothesis{Rotation: h.Rotation, Translation: h.Translation.Mul(scale)}
}

// ProjectionMatrix returns the 3x4 projection matrix K[R|t] of the second camera.
func (h PoseHypothesis) ProjectionMatrix(k mat.Matrix) *mat.Dense {
	var proj mat.Dense
	proj.Mul(k, h.Transform().Slice(0, 3, 0, 4))
	return &proj
}

// CanonicalProjectionMatrix returns K[I|0], the projection matrix of the first camera.
func CanonicalProjectionMatrix(k mat.Matrix) *mat.Dense {
	proj := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			proj.Set(i, j, k.At(i, j))
		}
	}
	return proj
}

// GetPossibleCameraPoses computes all 4 possible poses from the essential matrix, in the order
// (R1, t), (R1, -t), (R2, t), (R2, -t).
func GetPossibleCameraPoses(essMat *mat.Dense) ([4]PoseHypothesis, error) {
	var poses [4]PoseHypothesis
	if r, c := essMat.Dims(); r != 3 || c != 3 {
		return poses, errors.Errorf("essential matrix must be 3x3, got %dx%d", r, c)
	}
	R1, R2, t, err := DecomposeEssentialMatrix(essMat)
	if err != nil {
		return poses, err
	}
	tOpp := t.Mul(-1)
	poses[0] = PoseHypothesis{Rotation: R1, Translation: t}
	poses[1] = PoseHypothesis{Rotation: R1, Translation: tOpp}
	poses[2] = PoseHypothesis{Rotation: R2, Translation: t}
	poses[3] = PoseHypothesis{Rotation: R2, Translation: tOpp}
	return poses, nil
}
