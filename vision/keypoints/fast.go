package keypoints

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"

	"go.viam.com/monovo/utils"
)

// FASTConfig holds the parameters necessary to compute the FAST keypoints.
type FASTConfig struct {
	NMatchesCircle int     `json:"n_matches"`
	NMSWinSize     int     `json:"nms_win_size"`
	Threshold      float64 `json:"threshold"`
	Oriented       bool    `json:"oriented"`
}

// DefaultFASTConfig returns the FAST configuration used by ORB when none is given.
func DefaultFASTConfig() *FASTConfig {
	return &FASTConfig{
		NMatchesCircle: 9,
		NMSWinSize:     3,
		Threshold:      20,
		Oriented:       true,
	}
}

// Validate ensures all parts of the FASTConfig are valid.
func (cfg *FASTConfig) Validate(path string) error {
	if cfg.NMatchesCircle < 1 || cfg.NMatchesCircle > len(CircleIdx) {
		return uts.NewConfigValidationError(path, errors.Errorf("n_matches should be in [1, %d]", len(CircleIdx)))
	}
	if cfg.NMSWinSize < 1 {
		return uts.NewConfigValidationError(path, errors.New("nms_win_size should be >= 1"))
	}
	if cfg.Threshold < 0 {
		return uts.NewConfigValidationError(path, errors.New("threshold should be >= 0"))
	}
	return nil
}

// LoadFASTConfiguration loads a FASTConfig from a json file.
func LoadFASTConfiguration(file string) (*FASTConfig, error) {
	var config FASTConfig
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer uts.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "cannot decode FAST config %q", file)
	}
	if err := config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// FASTKeypoints stores keypoint locations, their FAST score and orientations (nil if not oriented).
type FASTKeypoints struct {
	Points       KeyPoints
	Scores       []float64
	Orientations []float64
}

// IsOriented returns true if FASTKeypoints contains orientations.
func (kps *FASTKeypoints) IsOriented() bool {
	return kps.Orientations != nil
}

type (
	// PixelValues is a slice of pixel values around a center.
	PixelValues []float64
	// NeighborhoodIdx is a slice of offsets around a center pixel.
	NeighborhoodIdx []image.Point
)

var (
	// CrossIdx contains the neighbors coordinates in a 3-cross neighborhood.
	CrossIdx = NeighborhoodIdx{{0, 3}, {3, 0}, {0, -3}, {-3, 0}}
	// CircleIdx contains the neighbors coordinates in a circle of radius 3 neighborhood.
	CircleIdx = NeighborhoodIdx{
		{0, -3},
		{1, -3},
		{2, -2},
		{3, -1},
		{3, 0},
		{3, 1},
		{2, 2},
		{1, 3},
		{0, 3},
		{-1, 3},
		{-2, 2},
		{-3, 1},
		{-3, 0},
		{-3, -1},
		{-2, -2},
		{-1, -3},
	}
)

// fastBorder is the margin where the radius 3 circle does not fit.
const fastBorder = 3

// NewFASTKeypointsFromImage returns a pointer to a FASTKeypoints struct containing keypoints and
// their scores, and orientations if cfg.Oriented.
func NewFASTKeypointsFromImage(img *image.Gray, cfg *FASTConfig) *FASTKeypoints {
	kps, scores := computeFAST(img, cfg)
	fastKps := &FASTKeypoints{Points: kps, Scores: scores}
	if cfg.Oriented {
		fastKps.Orientations = computeKeypointsOrientations(img, kps)
	}
	return fastKps
}

// GetPointValuesInNeighborhood returns a slice of floats containing the values of neighborhood pixels in image img.
func GetPointValuesInNeighborhood(img *image.Gray, coords image.Point, neighborhood NeighborhoodIdx) PixelValues {
	vals := make(PixelValues, len(neighborhood))
	for i := range neighborhood {
		vals[i] = float64(img.GrayAt(coords.X+neighborhood[i].X, coords.Y+neighborhood[i].Y).Y)
	}
	return vals
}

// isValidSliceVals returns true if the circular slice s contains a run of at least n ones.
func isValidSliceVals(s []float64, n int) bool {
	if n > len(s) || len(s) == 0 {
		return false
	}
	count := 0
	for i := 0; i < 2*len(s); i++ {
		if s[i%len(s)] > 0 {
			count++
			if count >= n {
				return true
			}
		} else {
			count = 0
		}
	}
	return false
}

func sumOfPositiveValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

func sumOfNegativeValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// getBrighterValues returns a slice of 1 where the value is strictly above t, 0 elsewhere.
func getBrighterValues(s []float64, t float64) []float64 {
	brighter := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			brighter[i] = 1
		}
	}
	return brighter
}

// getDarkerValues returns a slice of 1 where the value is strictly below t, 0 elsewhere.
func getDarkerValues(s []float64, t float64) []float64 {
	darker := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			darker[i] = 1
		}
	}
	return darker
}

// fastScore returns the FAST score of a pixel whose center value is p, or 0 if it is not a corner.
func fastScore(img *image.Gray, p image.Point, cfg *FASTConfig) float64 {
	center := float64(img.GrayAt(p.X, p.Y).Y)
	high := center + cfg.Threshold
	low := center - cfg.Threshold
	// an arc of n contiguous circle pixels covers at least n/4 of the cross pixels
	minCross := cfg.NMatchesCircle / 4
	cross := GetPointValuesInNeighborhood(img, p, CrossIdx)
	if sumOfPositiveValuesSlice(getBrighterValues(cross, high)) < float64(minCross) &&
		sumOfPositiveValuesSlice(getDarkerValues(cross, low)) < float64(minCross) {
		return 0
	}
	circle := GetPointValuesInNeighborhood(img, p, CircleIdx)
	if !isValidSliceVals(getBrighterValues(circle, high), cfg.NMatchesCircle) &&
		!isValidSliceVals(getDarkerValues(circle, low), cfg.NMatchesCircle) {
		return 0
	}
	diffs := make([]float64, len(circle))
	for i, v := range circle {
		diffs[i] = v - center
	}
	pos := sumOfPositiveValuesSlice(diffs)
	neg := -sumOfNegativeValuesSlice(diffs)
	if pos > neg {
		return pos
	}
	return neg
}

// computeFAST computes the location of FAST keypoints and their scores, after non-maximum
// suppression. Keypoints are returned in raster order.
func computeFAST(img *image.Gray, cfg *FASTConfig) (KeyPoints, []float64) {
	bounds := img.Bounds()
	size := bounds.Size()
	if size.X <= 2*fastBorder || size.Y <= 2*fastBorder {
		return KeyPoints{}, []float64{}
	}
	scores := make([]float64, size.X*size.Y)
	utils.ParallelForEachPixel(size, func(x, y int) {
		if x < fastBorder || y < fastBorder || x >= size.X-fastBorder || y >= size.Y-fastBorder {
			return
		}
		scores[y*size.X+x] = fastScore(img, image.Point{bounds.Min.X + x, bounds.Min.Y + y}, cfg)
	})

	half := cfg.NMSWinSize / 2
	kps := make(KeyPoints, 0)
	kpScores := make([]float64, 0)
	for y := fastBorder; y < size.Y-fastBorder; y++ {
		for x := fastBorder; x < size.X-fastBorder; x++ {
			score := scores[y*size.X+x]
			if score <= 0 || !isLocalMaximum(scores, size, x, y, half) {
				continue
			}
			kps = append(kps, image.Point{bounds.Min.X + x, bounds.Min.Y + y})
			kpScores = append(kpScores, score)
		}
	}
	return kps, kpScores
}

// isLocalMaximum returns true if the score at (x, y) is the maximum of its window. Ties are won by
// the first pixel in raster order.
func isLocalMaximum(scores []float64, size image.Point, x, y, half int) bool {
	score := scores[y*size.X+x]
	for dy := -half; dy <= half; dy++ {
		yy := y + dy
		if yy < 0 || yy >= size.Y {
			continue
		}
		for dx := -half; dx <= half; dx++ {
			xx := x + dx
			if xx < 0 || xx >= size.X || (dx == 0 && dy == 0) {
				continue
			}
			other := scores[yy*size.X+xx]
			if other > score {
				return false
			}
			if other == score && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

// ComputeFAST computes the location of FAST keypoints.
func ComputeFAST(img *image.Gray, cfg *FASTConfig) KeyPoints {
	kps, _ := computeFAST(img, cfg)
	return kps
}
