package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNotEnoughPoints is returned when a two-view estimation is given fewer points than its
// minimal solver needs.
var ErrNotEnoughPoints = errors.New("not enough point correspondences")

// minPointsEightPoint is the number of correspondences needed by the 8-point algorithm.
const minPointsEightPoint = 8

// GetEssentialMatrixFromFundamental returns the essential matrix from the fundamental matrix and intrinsics parameters.
// The result is projected onto the essential manifold, i.e. its singular values are (1, 1, 0).
func GetEssentialMatrixFromFundamental(k1, k2, f *mat.Dense) (*mat.Dense, error) {
	var essMat, tmp mat.Dense
	tmp.Mul(k2.T(), f)
	essMat.Mul(&tmp, k1)
	return projectToEssentialManifold(&essMat)
}

// projectToEssentialManifold replaces the singular values of m by (1, 1, 0).
func projectToEssentialManifold(m *mat.Dense) (*mat.Dense, error) {
	mats := performSVD(m)
	if mats == nil {
		return nil, errors.New("failed to factorize essential matrix")
	}
	S := eye(3)
	S.Set(2, 2, 0)

	var essMat mat.Dense
	essMat.Mul(mats.U, S)
	essMat.Mul(&essMat, mats.VT)
	return &essMat, nil
}

// DecomposeEssentialMatrix decomposes the Essential matrix into 2 possible 3D rotations and a 3D translation.
// The translation is the unit left null vector of E, defined up to sign.
func DecomposeEssentialMatrix(essMat *mat.Dense) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	mats := performSVD(essMat)
	if mats == nil {
		return nil, nil, r3.Vector{}, errors.New("failed to factorize essential matrix")
	}
	// check determinant sign of U and V
	if mat.Det(mats.U) < 0 {
		mats.U.Scale(-1, mats.U)
	}
	if mat.Det(mats.VT) < 0 {
		mats.VT.Scale(-1, mats.VT)
	}
	// create matrix W
	W := mat.NewDense(3, 3, nil)
	W.Set(0, 1, 1)
	W.Set(1, 0, -1)
	W.Set(2, 2, 1)
	var R1, R2 mat.Dense
	// UWV^T
	R1.Mul(mats.U, W)
	R1.Mul(&R1, mats.VT)
	// UW^TV^T
	R2.Mul(mats.U, W.T())
	R2.Mul(&R2, mats.VT)
	U3 := mats.U.ColView(2)
	t := r3.Vector{X: U3.AtVec(0), Y: U3.AtVec(1), Z: U3.AtVec(2)}
	return &R1, &R2, t, nil
}

// Convert2DPointsToHomogeneousPoints converts float64 image coordinates to homogeneous float64 coordinates.
func Convert2DPointsToHomogeneousPoints(pts []r2.Point) []r3.Vector {
	ptsHomogeneous := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		ptsHomogeneous[i] = r3.Vector{
			X: pt.X,
			Y: pt.Y,
			Z: 1,
		}
	}
	return ptsHomogeneous
}

// ComputeFundamentalMatrixAllPoints computes the fundamental matrix from all points with the
// normalized 8-point algorithm. The matrix has rank 2 and unit Frobenius norm, and satisfies
// x2^T F x1 = 0 for homogeneous pixels x1 in the first view and x2 in the second.
func ComputeFundamentalMatrixAllPoints(pts1, pts2 []r2.Point, normalize bool) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < minPointsEightPoint {
		return nil, errors.Wrapf(ErrNotEnoughPoints, "need at least %d, got %d", minPointsEightPoint, len(pts1))
	}
	nPoints := len(pts1)

	var points1, points2 []r2.Point
	var T1, T2 *mat.Dense

	// if normalize, normalize points and get transform
	if normalize {
		var ok1, ok2 bool
		points1, T1, ok1 = normalizePoints(pts1)
		points2, T2, ok2 = normalizePoints(pts2)
		if !ok1 || !ok2 {
			return nil, errors.New("points are degenerate: all points coincide")
		}
	} else {
		points1 = make([]r2.Point, nPoints)
		copy(points1, pts1)
		points2 = make([]r2.Point, nPoints)
		copy(points2, pts2)
		T1 = eye(3)
		T2 = eye(3)
	}

	m := mat.NewDense(nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		row := []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		}
		m.SetRow(i, row)
	}

	// perform SVD on m
	mats1 := performSVD(m)
	if mats1 == nil {
		return nil, errors.New("failed to factorize the 8-point system")
	}
	lastColV := mats1.V.ColView(8)

	// reshape into F
	lastColVdata := make([]float64, 9)
	for i := range lastColVdata {
		lastColVdata[i] = lastColV.AtVec(i)
	}
	F := mat.NewDense(3, 3, lastColVdata)

	// enforce rank 2 of F
	mats2 := performSVD(F)
	if mats2 == nil {
		return nil, errors.New("failed to factorize F")
	}
	S := mats2.S
	S.Set(2, 2, 0)

	// get refined F: U@S@V2^T
	Fhat := mat.NewDense(3, 3, nil)
	Fhat.Mul(mats2.U, S)
	F.Mul(Fhat, mats2.VT)
	// undo the normalization: T2^T @ F @ T1
	F.Mul(T2.T(), F)
	F.Mul(F, T1)

	norm := mat.Norm(F, 2)
	if norm == 0 || math.IsNaN(norm) {
		return nil, errors.New("fundamental matrix vanished")
	}
	F.Scale(1/norm, F)

	return F, nil
}

// SampsonDistance returns the squared first-order geometric error of the correspondence (p1, p2)
// with respect to the epipolar constraint p2^T F p1 = 0.
func SampsonDistance(f mat.Matrix, p1, p2 r2.Point) float64 {
	fx1 := r3.Vector{
		X: f.At(0, 0)*p1.X + f.At(0, 1)*p1.Y + f.At(0, 2),
		Y: f.At(1, 0)*p1.X + f.At(1, 1)*p1.Y + f.At(1, 2),
		Z: f.At(2, 0)*p1.X + f.At(2, 1)*p1.Y + f.At(2, 2),
	}
	ftx2 := r3.Vector{
		X: f.At(0, 0)*p2.X + f.At(1, 0)*p2.Y + f.At(2, 0),
		Y: f.At(0, 1)*p2.X + f.At(1, 1)*p2.Y + f.At(2, 1),
	}
	num := p2.X*fx1.X + p2.Y*fx1.Y + fx1.Z
	den := fx1.X*fx1.X + fx1.Y*fx1.Y + ftx2.X*ftx2.X + ftx2.Y*ftx2.Y
	if den == 0 {
		if num == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return num * num / den
}

// helpers
// normalizePoints normalizes points as described in Multiple View Geometry, Alg 11.1.
// It returns false when all points coincide and no similarity can be built.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, bool) {
	nPoints := len(pts)
	// compute centroid of points
	mu := r2.Point{X: 0, Y: 0}
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		x2 := (pt.X - mu.X) * (pt.X - mu.X)
		y2 := (pt.Y - mu.Y) * (pt.Y - mu.Y)
		d += math.Sqrt(x2+y2) / float64(nPoints)
	}
	if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return nil, nil, false
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	// apply transform to points
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = r2.Point{X: scale * (pts[i].X - mu.X), Y: scale * (pts[i].Y - mu.Y)}
	}
	return pointsTransformed, T, true
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
// It returns nil if the factorization fails.
func performSVD(inputMatrix mat.Matrix) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma}
}
