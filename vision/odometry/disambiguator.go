package odometry

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/rimage/transform"
	"go.viam.com/monovo/spatialmath"
	"go.viam.com/monovo/utils"
)

// minEssentialSingularRatio is the smallest ratio between the second and the first singular value
// of a usable essential matrix. Valid essential matrices have two equal non-zero singular values.
const minEssentialSingularRatio = 1e-6

// Candidate is one of the four motions encoded by an essential matrix, with its score.
type Candidate struct {
	Hypothesis transform.PoseHypothesis
	// Positives is the number of triangulated points in front of the first camera plus the number
	// of points in front of the second camera.
	Positives int
	// Scale is the mean ratio of consecutive point distances in the first and second camera frames.
	Scale float64
	// ScaleErr is set when no pair of consecutive points could be used to compute Scale.
	ScaleErr error
	Score    float64
}

// Disambiguation is the motion selected among the candidates of an essential matrix.
type Disambiguation struct {
	Candidates [4]Candidate
	Selected   int
	// PointMap maps points from the previous camera frame to the current one, with its translation
	// scaled by the relative scale.
	PointMap transform.PoseHypothesis
	// Relative is the 4x4 motion of the camera, i.e. the pose of the current camera in the previous
	// camera frame.
	Relative *mat.Dense
	// Points are the triangulated points in the previous camera frame.
	Points []r3.Vector
}

// Disambiguator selects the physically valid motion among the four decompositions of an essential
// matrix.
type Disambiguator struct {
	k            *mat.Dense
	scoring      ScoringRule
	scaleEpsilon float64
}

// NewDisambiguator returns a Disambiguator for a camera with intrinsics.
func NewDisambiguator(intrinsics *transform.PinholeCameraIntrinsics, scoring ScoringRule, scaleEpsilon float64,
) (*Disambiguator, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	switch scoring {
	case ScoringCheiralityPlusScale, ScoringCheirality:
	default:
		return nil, errors.Errorf("unknown scoring rule %q", scoring)
	}
	return &Disambiguator{
		k:            intrinsics.GetCameraMatrix(),
		scoring:      scoring,
		scaleEpsilon: scaleEpsilon,
	}, nil
}

// Disambiguate decomposes essMat, scores its four candidates on the correspondences and returns the
// best one with its translation scaled by its relative scale.
func (d *Disambiguator) Disambiguate(essMat *mat.Dense, c *Correspondences) (*Disambiguation, error) {
	if err := checkEssentialMatrix(essMat); err != nil {
		return nil, err
	}
	if c.Len() == 0 || len(c.Q1) != len(c.Q2) {
		return nil, newInsufficientFeaturesError("cannot disambiguate motion from %d correspondences", c.Len())
	}
	hyps, err := transform.GetPossibleCameraPoses(essMat)
	if err != nil {
		return nil, errors.Wrap(ErrDegenerateGeometry, err.Error())
	}
	var candidates [4]Candidate
	for i, hyp := range hyps {
		candidates[i], err = d.scoreCandidate(hyp, c)
		if err != nil {
			return nil, err
		}
	}
	selected := selectCandidate(candidates, d.scoring)
	best := candidates[selected]
	if best.ScaleErr != nil {
		return nil, best.ScaleErr
	}

	pointMap := best.Hypothesis.Scaled(best.Scale)
	rigid := pointMap.Transform()
	if !spatialmath.IsFinite(rigid) {
		return nil, newDegenerateGeometryError("selected motion has non-finite entries")
	}
	if err := spatialmath.CheckRigid(rigid); err != nil {
		return nil, errors.Wrap(ErrDegenerateGeometry, err.Error())
	}
	points, err := d.triangulate(pointMap, c)
	if err != nil {
		return nil, err
	}
	return &Disambiguation{
		Candidates: candidates,
		Selected:   selected,
		PointMap:   pointMap,
		Relative:   spatialmath.Invert(rigid),
		Points: lo.Filter(points, func(p r3.Vector, _ int) bool {
			return utils.AllFinite(p.X, p.Y, p.Z)
		}),
	}, nil
}

// triangulate returns the points seen at c in the previous camera frame, for a motion mapping
// previous camera points to current camera points.
func (d *Disambiguator) triangulate(pointMap transform.PoseHypothesis, c *Correspondences) ([]r3.Vector, error) {
	homogeneous, err := transform.TriangulatePoints(
		transform.CanonicalProjectionMatrix(d.k), pointMap.ProjectionMatrix(d.k), c.Q1, c.Q2)
	if err != nil {
		return nil, errors.Wrap(ErrDegenerateGeometry, err.Error())
	}
	return transform.EuclideanPoints(homogeneous), nil
}

// scoreCandidate triangulates the correspondences for one hypothesis and computes its score.
func (d *Disambiguator) scoreCandidate(hyp transform.PoseHypothesis, c *Correspondences) (Candidate, error) {
	q1, err := d.triangulate(hyp, c)
	if err != nil {
		return Candidate{}, err
	}
	q2 := lo.Map(q1, func(p r3.Vector, _ int) r3.Vector {
		return hyp.Apply(p)
	})
	positives := countPositiveDepth(q1) + countPositiveDepth(q2)
	scale, scaleErr := relativeScale(q1, q2, d.scaleEpsilon)

	score := float64(positives)
	if d.scoring == ScoringCheiralityPlusScale && scaleErr == nil {
		score += scale
	}
	return Candidate{
		Hypothesis: hyp,
		Positives:  positives,
		Scale:      scale,
		ScaleErr:   scaleErr,
		Score:      score,
	}, nil
}

// selectCandidate returns the index of the candidate with the highest score. The first maximum wins.
func selectCandidate(candidates [4]Candidate, scoring ScoringRule) int {
	score := func(c Candidate) float64 {
		if scoring == ScoringCheirality {
			return float64(c.Positives)
		}
		return c.Score
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if score(candidates[i]) > score(candidates[best]) {
			best = i
		}
	}
	return best
}

// countPositiveDepth counts the points whose Z coordinate is strictly positive.
func countPositiveDepth(points []r3.Vector) int {
	return lo.CountBy(points, func(p r3.Vector) bool {
		return p.Z > 0
	})
}

// relativeScale returns the mean over consecutive points of the ratio between their distance in q1
// and their distance in q2. Pairs whose q2 distance is at most epsilon, or whose ratio is not
// finite, are left out. It returns ErrScaleIndeterminate when no pair is left.
func relativeScale(q1, q2 []r3.Vector, epsilon float64) (float64, error) {
	ratios := make(stats.Float64Data, 0, len(q1))
	for i := 0; i+1 < len(q1) && i+1 < len(q2); i++ {
		den := q2[i].Sub(q2[i+1]).Norm()
		if !(den > epsilon) {
			continue
		}
		ratio := q1[i].Sub(q1[i+1]).Norm() / den
		if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			continue
		}
		ratios = append(ratios, ratio)
	}
	mean, err := stats.Mean(ratios)
	if err != nil {
		return 0, errors.Wrapf(ErrScaleIndeterminate, "no usable pair among %d points", len(q1))
	}
	return mean, nil
}

// checkEssentialMatrix returns an error wrapping ErrDegenerateGeometry if essMat is not a finite
// 3x3 matrix of rank 2 with two comparable singular values.
func checkEssentialMatrix(essMat *mat.Dense) error {
	if essMat == nil {
		return newDegenerateGeometryError("missing essential matrix")
	}
	if r, c := essMat.Dims(); r != 3 || c != 3 {
		return newDegenerateGeometryError("essential matrix must be 3x3, got %dx%d", r, c)
	}
	if !spatialmath.IsFinite(essMat) {
		return newDegenerateGeometryError("essential matrix has non-finite entries")
	}
	var svd mat.SVD
	if ok := svd.Factorize(essMat, mat.SVDNone); !ok {
		return newDegenerateGeometryError("cannot factorize essential matrix")
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[1]/values[0] < minEssentialSingularRatio {
		return newDegenerateGeometryError("essential matrix is singular, singular values %v", values)
	}
	return nil
}
