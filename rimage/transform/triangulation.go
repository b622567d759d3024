package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// HomogeneousPoint is a 3D point in homogeneous coordinates (X, Y, Z, W).
type HomogeneousPoint [4]float64

// Euclidean divides by the last coordinate. Points at infinity (W == 0) yield non-finite values.
func (p HomogeneousPoint) Euclidean() r3.Vector {
	return r3.Vector{X: p[0] / p[3], Y: p[1] / p[3], Z: p[2] / p[3]}
}

// TriangulatePoints computes the 3D points seen at pts1 by the camera with 3x4 projection matrix
// p1 and at pts2 by the camera with projection matrix p2, with the linear (DLT) method.
// The points are expressed in the frame the projection matrices are defined in.
func TriangulatePoints(p1, p2 mat.Matrix, pts1, pts2 []r2.Point) ([]HomogeneousPoint, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	if r, c := p1.Dims(); r != 3 || c != 4 {
		return nil, errors.Errorf("projection matrix must be 3x4, got %dx%d", r, c)
	}
	if r, c := p2.Dims(); r != 3 || c != 4 {
		return nil, errors.Errorf("projection matrix must be 3x4, got %dx%d", r, c)
	}
	out := make([]HomogeneousPoint, len(pts1))
	A := mat.NewDense(4, 4, nil)
	var svd mat.SVD
	var V mat.Dense
	for i := range pts1 {
		x1, x2 := pts1[i], pts2[i]
		for j := 0; j < 4; j++ {
			A.Set(0, j, x1.X*p1.At(2, j)-p1.At(0, j))
			A.Set(1, j, x1.Y*p1.At(2, j)-p1.At(1, j))
			A.Set(2, j, x2.X*p2.At(2, j)-p2.At(0, j))
			A.Set(3, j, x2.Y*p2.At(2, j)-p2.At(1, j))
		}
		if ok := svd.Factorize(A, mat.SVDFull); !ok {
			return nil, errors.Errorf("failed to factorize triangulation system of point %d", i)
		}
		svd.VTo(&V)
		out[i] = HomogeneousPoint{V.At(0, 3), V.At(1, 3), V.At(2, 3), V.At(3, 3)}
	}
	return out, nil
}

// EuclideanPoints converts homogeneous points into 3D points.
func EuclideanPoints(pts []HomogeneousPoint) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = p.Euclidean()
	}
	return out
}
