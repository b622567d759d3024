package odometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/spatialmath"
)

func sceneEssentialMatrix(t *testing.T, c *Correspondences, cfg *Config) *mat.Dense {
	t.Helper()
	estimator, err := NewRANSACEstimator(cfg.CamIntrinsics, cfg.RANSACCfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	essMat, err := estimator.Estimate(c)
	test.That(t, err, test.ShouldBeNil)
	return essMat
}

func TestDisambiguateSelectsPhysicalMotion(t *testing.T) {
	scene := newCubeScene(2)
	cfg := testConfig(scene)
	c := &Correspondences{Q1: scene.Project(0), Q2: scene.Project(1)}
	essMat := sceneEssentialMatrix(t, c, cfg)
	trueRot, trueTrans := scene.PointMap(0, 1)

	for _, scoring := range []ScoringRule{ScoringCheiralityPlusScale, ScoringCheirality} {
		t.Run(string(scoring), func(t *testing.T) {
			d, err := NewDisambiguator(cfg.CamIntrinsics, scoring, cfg.ScaleEpsilon)
			test.That(t, err, test.ShouldBeNil)
			motion, err := d.Disambiguate(essMat, c)
			test.That(t, err, test.ShouldBeNil)

			selected := motion.Candidates[motion.Selected]
			test.That(t, selected.Positives, test.ShouldEqual, 2*len(scene.Points))
			for i, cand := range motion.Candidates {
				if i != motion.Selected {
					test.That(t, cand.Positives, test.ShouldBeLessThan, selected.Positives)
				}
			}
			// a rigid motion keeps the distances between points
			test.That(t, selected.ScaleErr, test.ShouldBeNil)
			test.That(t, selected.Scale, test.ShouldAlmostEqual, 1, 1e-6)

			test.That(t, mat.EqualApprox(motion.PointMap.Rotation, trueRot, 1e-6), test.ShouldBeTrue)
			vecNear(t, motion.PointMap.Translation.Normalize(), trueTrans.Normalize(), 1e-6)
			test.That(t, motion.PointMap.Translation.Norm(), test.ShouldAlmostEqual, 1, 1e-6)

			truth := scene.CameraMotion(0, 1)
			rotationNear(t, motion.Relative, truth, 1e-6)
			vecNear(t, spatialmath.Translation(motion.Relative),
				spatialmath.Translation(truth).Normalize(), 1e-6)
			test.That(t, spatialmath.IsRotation(spatialmath.Rotation(motion.Relative), 1e-9), test.ShouldBeTrue)

			// points are recovered up to the scale of the translation
			truePoints := scene.PointsInCamera(0)
			test.That(t, motion.Points, test.ShouldHaveLength, len(truePoints))
			for k, p := range motion.Points {
				vecNear(t, p.Mul(trueTrans.Norm()), truePoints[k], 1e-5)
			}
		})
	}
}

func TestDisambiguateDegenerateInputs(t *testing.T) {
	scene := newCubeScene(2)
	cfg := testConfig(scene)
	c := &Correspondences{Q1: scene.Project(0), Q2: scene.Project(1)}
	d, err := NewDisambiguator(cfg.CamIntrinsics, cfg.Scoring, cfg.ScaleEpsilon)
	test.That(t, err, test.ShouldBeNil)

	nan := mat.NewDense(3, 3, nil)
	nan.Set(1, 2, math.NaN())
	rankOne := mat.NewDense(3, 3, []float64{
		1, 2, 3,
		2, 4, 6,
		3, 6, 9,
	})
	for name, essMat := range map[string]*mat.Dense{
		"nil":      nil,
		"zero":     mat.NewDense(3, 3, nil),
		"nan":      nan,
		"rank one": rankOne,
		"not 3x3":  mat.NewDense(3, 4, nil),
	} {
		t.Run(name, func(t *testing.T) {
			motion, err := d.Disambiguate(essMat, c)
			test.That(t, motion, test.ShouldBeNil)
			test.That(t, errors.Is(err, ErrDegenerateGeometry), test.ShouldBeTrue)
			test.That(t, SkipReason(err), test.ShouldEqual, ReasonDegenerateGeometry)
		})
	}

	essMat := sceneEssentialMatrix(t, c, cfg)
	_, err = d.Disambiguate(essMat, &Correspondences{Q1: c.Q1, Q2: c.Q2[:10]})
	test.That(t, errors.Is(err, ErrInsufficientFeatures), test.ShouldBeTrue)
	_, err = d.Disambiguate(essMat, nil)
	test.That(t, errors.Is(err, ErrInsufficientFeatures), test.ShouldBeTrue)
}

func TestDisambiguateIndeterminateScale(t *testing.T) {
	scene := newCubeScene(2)
	cfg := testConfig(scene)
	full := &Correspondences{Q1: scene.Project(0), Q2: scene.Project(1)}
	essMat := sceneEssentialMatrix(t, full, cfg)

	// the same correspondence repeated triangulates to a single point
	c := &Correspondences{
		Q1: []r2.Point{full.Q1[7], full.Q1[7], full.Q1[7]},
		Q2: []r2.Point{full.Q2[7], full.Q2[7], full.Q2[7]},
	}
	d, err := NewDisambiguator(cfg.CamIntrinsics, cfg.Scoring, cfg.ScaleEpsilon)
	test.That(t, err, test.ShouldBeNil)
	_, err = d.Disambiguate(essMat, c)
	test.That(t, errors.Is(err, ErrScaleIndeterminate), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrDegenerateGeometry), test.ShouldBeTrue)
	test.That(t, SkipReason(err), test.ShouldEqual, ReasonScaleIndeterminate)
}

func TestNewDisambiguator(t *testing.T) {
	cfg := DefaultConfig()
	_, err := NewDisambiguator(cfg.CamIntrinsics, "votes", cfg.ScaleEpsilon)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "votes")

	intrinsics := *cfg.CamIntrinsics
	intrinsics.Fx = 0
	_, err = NewDisambiguator(&intrinsics, cfg.Scoring, cfg.ScaleEpsilon)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSelectCandidate(t *testing.T) {
	var candidates [4]Candidate
	candidates[0] = Candidate{Positives: 10, Scale: 0, Score: 10}
	candidates[1] = Candidate{Positives: 9, Scale: 5, Score: 14}
	candidates[2] = Candidate{Positives: 2, Scale: 1, Score: 3}
	candidates[3] = Candidate{Positives: 0, Scale: 1, Score: 1}

	// a large scale outweighs a better cheirality count when both are added
	test.That(t, selectCandidate(candidates, ScoringCheiralityPlusScale), test.ShouldEqual, 1)
	test.That(t, selectCandidate(candidates, ScoringCheirality), test.ShouldEqual, 0)

	// the first maximum wins
	tied := [4]Candidate{{Score: 3, Positives: 3}, {Score: 5, Positives: 5}, {Score: 5, Positives: 5}, {Score: 1}}
	test.That(t, selectCandidate(tied, ScoringCheiralityPlusScale), test.ShouldEqual, 1)
	test.That(t, selectCandidate(tied, ScoringCheirality), test.ShouldEqual, 1)
	test.That(t, selectCandidate([4]Candidate{}, ScoringCheirality), test.ShouldEqual, 0)
}

func TestCountPositiveDepth(t *testing.T) {
	points := []r3.Vector{{Z: 1}, {Z: 0}, {Z: -2}, {X: 3, Z: 1e-12}}
	test.That(t, countPositiveDepth(points), test.ShouldEqual, 2)
	test.That(t, countPositiveDepth(nil), test.ShouldEqual, 0)
}

func TestRelativeScale(t *testing.T) {
	q1 := []r3.Vector{{X: 0}, {X: 2}, {X: 2, Y: 4}}
	q2 := []r3.Vector{{X: 0}, {X: 1}, {X: 1, Y: 1}}
	scale, err := relativeScale(q1, q2, 1e-9)
	test.That(t, err, test.ShouldBeNil)
	// ratios are 2 and 4
	test.That(t, scale, test.ShouldAlmostEqual, 3)

	t.Run("coincident points are left out", func(t *testing.T) {
		q2 := []r3.Vector{{X: 0}, {X: 0}, {X: 0, Y: 1}}
		scale, err := relativeScale(q1, q2, 1e-9)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, scale, test.ShouldAlmostEqual, 4)
	})

	t.Run("no usable pair", func(t *testing.T) {
		same := []r3.Vector{{X: 1}, {X: 1}, {X: 1}}
		_, err := relativeScale(q1, same, 1e-9)
		test.That(t, errors.Is(err, ErrScaleIndeterminate), test.ShouldBeTrue)
		_, err = relativeScale(q1[:1], q2[:1], 1e-9)
		test.That(t, errors.Is(err, ErrScaleIndeterminate), test.ShouldBeTrue)
		_, err = relativeScale(nil, nil, 1e-9)
		test.That(t, errors.Is(err, ErrScaleIndeterminate), test.ShouldBeTrue)
	})

	t.Run("non-finite ratios are left out", func(t *testing.T) {
		q1 := []r3.Vector{{X: math.Inf(1)}, {X: 0}, {X: 1}}
		scale, err := relativeScale(q1, q2, 1e-9)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, scale, test.ShouldAlmostEqual, 1)
	})
}
