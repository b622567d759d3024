package keypoints

import (
	"image"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/vision/keypoints/descriptors"
)

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	// RatioThreshold is the maximum ratio between the best and the second best neighbor distances.
	RatioThreshold float64 `json:"ratio_threshold"`
	// BruteForce replaces the LSH index by an exhaustive search.
	BruteForce bool       `json:"brute_force"`
	LSH        *LSHConfig `json:"lsh"`
}

// DefaultMatchingConfig returns a ratio test at 0.5 over the default LSH index.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		RatioThreshold: 0.5,
		LSH:            DefaultLSHConfig(),
	}
}

// Validate ensures all parts of the MatchingConfig are valid.
func (cfg *MatchingConfig) Validate() error {
	if cfg.RatioThreshold <= 0 || cfg.RatioThreshold > 1 {
		return errors.Errorf("ratio_threshold should be in (0, 1], got %v", cfg.RatioThreshold)
	}
	if cfg.LSH != nil {
		return cfg.LSH.Validate()
	}
	return nil
}

// DescriptorMatch contains the index of a match in the first and second set of descriptors.
type DescriptorMatch struct {
	Idx1     int
	Idx2     int
	Distance int
}

// DescriptorMatches contains the descriptors and their matches.
type DescriptorMatches struct {
	Indices      []DescriptorMatch
	Descriptors1 descriptors.Descriptors
	Descriptors2 descriptors.Descriptors
}

// knnSearcher finds the k nearest descriptors of a query.
type knnSearcher func(query descriptors.Descriptor, k int) ([]Neighbor, error)

// MatchDescriptors finds for each descriptor of desc1 its 2 nearest neighbors in desc2 and keeps the
// match when the best distance is less than cfg.RatioThreshold times the second best one. Queries
// without a second neighbor are dropped. Matches keep the order of desc1.
func MatchDescriptors(desc1, desc2 descriptors.Descriptors, cfg *MatchingConfig, logger logging.Logger,
) (*DescriptorMatches, error) {
	if cfg == nil {
		cfg = DefaultMatchingConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var search knnSearcher
	if cfg.BruteForce {
		search = bruteForceSearcher(desc2)
	} else {
		index, err := NewLSHIndex(desc2, cfg.LSH)
		if err != nil {
			return nil, err
		}
		search = index.KNN
	}

	matches := make([]DescriptorMatch, 0, len(desc1))
	noSecond := 0
	for i, d := range desc1 {
		neighbors, err := search(d, 2)
		if err != nil {
			return nil, err
		}
		if len(neighbors) < 2 {
			noSecond++
			continue
		}
		if float64(neighbors[0].Distance) < cfg.RatioThreshold*float64(neighbors[1].Distance) {
			matches = append(matches, DescriptorMatch{Idx1: i, Idx2: neighbors[0].Index, Distance: neighbors[0].Distance})
		}
	}
	logger.Debugw("matched descriptors",
		"queries", len(desc1), "train", len(desc2), "matches", len(matches), "without_second_neighbor", noSecond)
	return &DescriptorMatches{matches, desc1, desc2}, nil
}

// bruteForceSearcher returns an exhaustive k nearest neighbors search over desc.
func bruteForceSearcher(desc descriptors.Descriptors) knnSearcher {
	return func(query descriptors.Descriptor, k int) ([]Neighbor, error) {
		distances, err := descriptors.DescriptorsHammingDistance(descriptors.Descriptors{query}, desc)
		if err != nil {
			return nil, err
		}
		best := make([]Neighbor, 0, k+1)
		for j, dist := range distances[0] {
			best = insertNeighbor(best, Neighbor{Index: j, Distance: dist}, k)
		}
		return best, nil
	}
}

// GetMatchingKeyPoints takes the matches and the keypoints and returns the corresponding keypoints that are matched.
func GetMatchingKeyPoints(matches *DescriptorMatches, kps1, kps2 KeyPoints) (KeyPoints, KeyPoints, error) {
	if len(kps1) != len(matches.Descriptors1) {
		return nil, nil, errors.New("first set of keypoints and descriptors have different lengths")
	}
	if len(kps2) != len(matches.Descriptors2) {
		return nil, nil, errors.New("second set of keypoints and descriptors have different lengths")
	}
	matchedKps1 := lo.Map(matches.Indices, func(m DescriptorMatch, _ int) image.Point {
		return kps1[m.Idx1]
	})
	matchedKps2 := lo.Map(matches.Indices, func(m DescriptorMatch, _ int) image.Point {
		return kps2[m.Idx2]
	})
	return matchedKps1, matchedKps2, nil
}
