// Package spatialmath contains helpers for 4x4 homogeneous rigid transforms stored as gonum
// matrices: building them from a rotation and a translation, inverting, composing and checking
// their numerical health.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultRotationTolerance is the tolerance used when checking that a block is a rotation.
const DefaultRotationTolerance = 1e-6

// NewRigidTransform creates the 4x4 homogeneous transform [R t; 0 1].
func NewRigidTransform(rotation mat.Matrix, translation r3.Vector) *mat.Dense {
	transform := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			transform.Set(i, j, rotation.At(i, j))
		}
	}
	transform.Set(0, 3, translation.X)
	transform.Set(1, 3, translation.Y)
	transform.Set(2, 3, translation.Z)
	transform.Set(3, 3, 1)
	return transform
}

// Identity returns the 4x4 identity transform.
func Identity() *mat.Dense {
	return NewRigidTransform(eye3(), r3.Vector{})
}

// Rotation returns a copy of the 3x3 rotation block of a homogeneous transform.
func Rotation(transform mat.Matrix) *mat.Dense {
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, transform.At(i, j))
		}
	}
	return rot
}

// Translation returns the translation column of a homogeneous transform.
func Translation(transform mat.Matrix) r3.Vector {
	return r3.Vector{X: transform.At(0, 3), Y: transform.At(1, 3), Z: transform.At(2, 3)}
}

// Invert returns the inverse of a rigid transform, [R^T -R^T t; 0 1].
func Invert(transform mat.Matrix) *mat.Dense {
	rot := Rotation(transform)
	t := Translation(transform)
	var rotT mat.Dense
	rotT.CloneFrom(rot.T())
	return NewRigidTransform(&rotT, MulVec(&rotT, t).Mul(-1))
}

// Compose returns a*b, i.e. b applied first and a second.
func Compose(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// MulVec multiplies a 3x3 matrix by a vector.
func MulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// TransformPoint applies a homogeneous transform to a 3D point.
func TransformPoint(transform mat.Matrix, p r3.Vector) r3.Vector {
	return MulVec(transform, p).Add(Translation(transform))
}

// IsFinite reports whether every entry of m is neither NaN nor infinite.
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// IsRotation reports whether the top-left 3x3 block of m is orthonormal with determinant +1
// within tol.
func IsRotation(m mat.Matrix, tol float64) bool {
	rot := Rotation(m)
	if !IsFinite(rot) {
		return false
	}
	var rrt mat.Dense
	rrt.Mul(rot, rot.T())
	if !mat.EqualApprox(&rrt, eye3(), tol) {
		return false
	}
	return math.Abs(mat.Det(rot)-1) <= tol
}

// CheckRigid returns an error if m is not a finite 4x4 rigid transform.
func CheckRigid(m mat.Matrix) error {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return errors.Errorf("rigid transform must be 4x4, got %dx%d", r, c)
	}
	if !IsFinite(m) {
		return errors.New("rigid transform contains non-finite values")
	}
	if !IsRotation(m, DefaultRotationTolerance) {
		return errors.New("rigid transform rotation block is not orthonormal")
	}
	if m.At(3, 0) != 0 || m.At(3, 1) != 0 || m.At(3, 2) != 0 || m.At(3, 3) != 1 {
		return errors.New("rigid transform last row must be [0 0 0 1]")
	}
	return nil
}

// RotationAngle returns the angle in radians of the rotation block of m.
func RotationAngle(m mat.Matrix) float64 {
	trace := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	return math.Acos(math.Max(-1, math.Min(1, (trace-1)/2)))
}

// RotationAboutY builds the rotation of angle radians about the y axis.
func RotationAboutY(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
