package odometry

import (
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/monovo/spatialmath"
	"go.viam.com/monovo/testutils"
)

// sceneMatcher returns the exact projections of a synthetic scene, using frame indices as camera
// indices.
type sceneMatcher struct {
	scene *testutils.CircularScene
	clk   *clock.Mock
	step  time.Duration
	// limit keeps that many correspondences spread over the scene when > 0.
	limit int
}

func (m *sceneMatcher) Match(prev, cur Frame) (*Correspondences, error) {
	if m.clk != nil {
		m.clk.Add(m.step)
	}
	c := &Correspondences{Q1: m.scene.Project(prev.Index), Q2: m.scene.Project(cur.Index)}
	if m.limit > 0 {
		// 7 is prime with the size of the cube scenes, the kept points are distinct and not coplanar
		n := len(c.Q1)
		q1, q2 := make([]r2.Point, m.limit), make([]r2.Point, m.limit)
		for i := range q1 {
			q1[i], q2[i] = c.Q1[(7*i)%n], c.Q2[(7*i)%n]
		}
		c.Q1, c.Q2 = q1, q2
	}
	return c, nil
}

// fixedEstimator returns the same matrix for every pair.
type fixedEstimator struct {
	essMat *mat.Dense
}

func (e *fixedEstimator) Estimate(c *Correspondences) (*mat.Dense, error) {
	return mat.DenseCopyOf(e.essMat), nil
}

// newCubeScene returns 125 points observed from nFrames cameras 15 degrees apart.
func newCubeScene(nFrames int) *testutils.CircularScene {
	return testutils.NewCubeScene(5, 0.5, 10, nFrames, 15*math.Pi/180)
}

// chordLength is the distance between two consecutive cameras of a scene with equal steps.
func chordLength(scene *testutils.CircularScene) float64 {
	return scene.CameraCenter(1).Sub(scene.CameraCenter(0)).Norm()
}

func testConfig(scene *testutils.CircularScene) *Config {
	cfg := DefaultConfig()
	cfg.CamIntrinsics = scene.Intrinsics
	return cfg
}

func vecNear(tb testing.TB, a, b r3.Vector, tol float64) {
	tb.Helper()
	test.That(tb, a.Sub(b).Norm(), test.ShouldBeLessThan, tol)
}

func rotationNear(tb testing.TB, a, b mat.Matrix, tol float64) {
	tb.Helper()
	test.That(tb, mat.EqualApprox(spatialmath.Rotation(a), spatialmath.Rotation(b), tol), test.ShouldBeTrue)
}
