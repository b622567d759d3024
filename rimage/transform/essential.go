package transform

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RANSACConfig holds the parameters of the robust essential matrix estimation.
type RANSACConfig struct {
	// Confidence is the desired probability that at least one drawn sample is outlier free.
	Confidence float64 `json:"confidence"`
	// Threshold is the maximum Sampson distance, in pixels, of an inlier.
	Threshold     float64 `json:"threshold_px"`
	MaxIterations int     `json:"max_iterations"`
	Seed          int64   `json:"seed"`
}

// DefaultRANSACConfig returns the configuration used when none is given.
func DefaultRANSACConfig() *RANSACConfig {
	return &RANSACConfig{
		Confidence:    0.999,
		Threshold:     1.0,
		MaxIterations: 1000,
		Seed:          1,
	}
}

// Validate ensures all parts of the RANSACConfig are valid.
func (cfg *RANSACConfig) Validate() error {
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return errors.Errorf("confidence must be in (0, 1), got %v", cfg.Confidence)
	}
	if cfg.Threshold <= 0 {
		return errors.Errorf("threshold_px must be > 0, got %v", cfg.Threshold)
	}
	if cfg.MaxIterations < 1 {
		return errors.Errorf("max_iterations must be >= 1, got %d", cfg.MaxIterations)
	}
	return nil
}

// EssentialEstimate is the result of a robust essential matrix estimation.
type EssentialEstimate struct {
	Matrix     *mat.Dense
	Inliers    []bool
	NumInliers int
	Iterations int
}

// EstimateEssentialMatrix fits an essential matrix to the correspondences pts1 <-> pts2 (pixels)
// with RANSAC over the normalized 8-point algorithm, then refits it on all inliers.
// The matrix satisfies x2^T E x1 = 0 for normalized homogeneous points x1 and x2.
func EstimateEssentialMatrix(
	pts1, pts2 []r2.Point,
	intrinsics *PinholeCameraIntrinsics,
	cfg *RANSACConfig,
) (*EssentialEstimate, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	if len(pts1) < minPointsEightPoint {
		return nil, errors.Wrapf(ErrNotEnoughPoints, "need at least %d, got %d", minPointsEightPoint, len(pts1))
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = DefaultRANSACConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n1 := intrinsics.NormalizePoints(pts1)
	n2 := intrinsics.NormalizePoints(pts2)
	threshold := cfg.Threshold / intrinsics.MeanFocal()
	threshold2 := threshold * threshold

	//nolint:gosec
	rng := rand.New(rand.NewSource(cfg.Seed))
	nPoints := len(n1)
	indices := make([]int, nPoints)
	for i := range indices {
		indices[i] = i
	}
	sample1 := make([]r2.Point, minPointsEightPoint)
	sample2 := make([]r2.Point, minPointsEightPoint)

	var best *EssentialEstimate
	maxIterations := cfg.MaxIterations
	iteration := 0
	for ; iteration < maxIterations; iteration++ {
		// partial Fisher-Yates shuffle to draw a sample without repetition
		for i := 0; i < minPointsEightPoint; i++ {
			j := i + rng.Intn(nPoints-i)
			indices[i], indices[j] = indices[j], indices[i]
			sample1[i] = n1[indices[i]]
			sample2[i] = n2[indices[i]]
		}
		model, err := essentialFromNormalizedPoints(sample1, sample2)
		if err != nil {
			continue
		}
		inliers, count := essentialInliers(model, n1, n2, threshold2)
		if best == nil || count > best.NumInliers {
			best = &EssentialEstimate{Matrix: model, Inliers: inliers, NumInliers: count}
			maxIterations = adaptiveIterations(cfg, count, nPoints)
		}
	}
	if best == nil {
		return nil, errors.New("no essential matrix hypothesis could be fitted")
	}
	best.Iterations = iteration

	if best.NumInliers >= minPointsEightPoint {
		in1 := make([]r2.Point, 0, best.NumInliers)
		in2 := make([]r2.Point, 0, best.NumInliers)
		for i, isIn := range best.Inliers {
			if isIn {
				in1 = append(in1, n1[i])
				in2 = append(in2, n2[i])
			}
		}
		refined, err := essentialFromNormalizedPoints(in1, in2)
		if err == nil {
			inliers, count := essentialInliers(refined, n1, n2, threshold2)
			if count >= best.NumInliers {
				best.Matrix, best.Inliers, best.NumInliers = refined, inliers, count
			}
		}
	}
	return best, nil
}

// essentialFromNormalizedPoints runs the 8-point algorithm on normalized coordinates and projects
// the result onto the essential manifold.
func essentialFromNormalizedPoints(n1, n2 []r2.Point) (*mat.Dense, error) {
	f, err := ComputeFundamentalMatrixAllPoints(n1, n2, true)
	if err != nil {
		return nil, err
	}
	return projectToEssentialManifold(f)
}

func essentialInliers(e *mat.Dense, n1, n2 []r2.Point, threshold2 float64) ([]bool, int) {
	inliers := make([]bool, len(n1))
	count := 0
	for i := range n1 {
		if SampsonDistance(e, n1[i], n2[i]) <= threshold2 {
			inliers[i] = true
			count++
		}
	}
	return inliers, count
}

// adaptiveIterations returns the number of iterations needed to reach the configured confidence
// given the current inlier ratio.
func adaptiveIterations(cfg *RANSACConfig, nInliers, nPoints int) int {
	w := float64(nInliers) / float64(nPoints)
	pGood := math.Pow(w, minPointsEightPoint)
	if pGood >= 1 {
		return 1
	}
	if pGood <= 0 {
		return cfg.MaxIterations
	}
	// pGood can be far below machine epsilon
	denom := math.Log1p(-pGood)
	if denom == 0 {
		return cfg.MaxIterations
	}
	needed := math.Log1p(-cfg.Confidence) / denom
	if math.IsNaN(needed) || math.IsInf(needed, 0) || needed <= 0 || needed > float64(cfg.MaxIterations) {
		return cfg.MaxIterations
	}
	return int(math.Ceil(needed))
}
