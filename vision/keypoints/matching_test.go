package keypoints

import (
	"image"
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/monovo/logging"
	"go.viam.com/monovo/vision/keypoints/descriptors"
)

func randomDescriptors(rng *rand.Rand, n int) descriptors.Descriptors {
	descs := make(descriptors.Descriptors, n)
	for i := range descs {
		descs[i] = descriptors.Descriptor{rng.Uint64(), rng.Uint64(), rng.Uint64(), rng.Uint64()}
	}
	return descs
}

func flipBits(rng *rand.Rand, d descriptors.Descriptor, n int) descriptors.Descriptor {
	out := make(descriptors.Descriptor, len(d))
	copy(out, d)
	for _, b := range rng.Perm(d.NBits())[:n] {
		out[b/64] ^= 1 << (b % 64)
	}
	return out
}

func TestProbeMasks(t *testing.T) {
	test.That(t, probeMasks(3, 0), test.ShouldResemble, []uint32{0})
	test.That(t, probeMasks(3, 1), test.ShouldResemble, []uint32{0, 1, 2, 4})
	test.That(t, probeMasks(3, 2), test.ShouldHaveLength, 7)
	test.That(t, probeMasks(12, 1), test.ShouldHaveLength, 13)
}

func TestLSHIndex(t *testing.T) {
	//nolint:gosec
	rng := rand.New(rand.NewSource(3))
	train := randomDescriptors(rng, 300)
	index, err := NewLSHIndex(train, DefaultLSHConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, index.Len(), test.ShouldEqual, 300)

	// exact copies are always found
	for i := 0; i < 20; i++ {
		neighbors, err := index.KNN(train[i], 2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, neighbors[0], test.ShouldResemble, Neighbor{Index: i, Distance: 0})
	}

	// slightly corrupted copies are found most of the time
	found := 0
	for i := 0; i < 100; i++ {
		neighbors, err := index.KNN(flipBits(rng, train[i], 3), 1)
		test.That(t, err, test.ShouldBeNil)
		if len(neighbors) == 1 && neighbors[0].Index == i {
			test.That(t, neighbors[0].Distance, test.ShouldEqual, 3)
			found++
		}
	}
	test.That(t, found, test.ShouldBeGreaterThanOrEqualTo, 95)

	_, err = index.KNN(descriptors.Descriptor{0}, 2)
	test.That(t, err, test.ShouldNotBeNil)

	empty, err := NewLSHIndex(nil, nil)
	test.That(t, err, test.ShouldBeNil)
	neighbors, err := empty.KNN(train[0], 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, neighbors, test.ShouldBeEmpty)

	_, err = NewLSHIndex(descriptors.Descriptors{{0}, {0, 0}}, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLSHIndex(train, &LSHConfig{TableNumber: 0, KeySize: 12})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLSHIndex(descriptors.Descriptors{{0}}, &LSHConfig{TableNumber: 1, KeySize: 32, MultiProbeLevel: 40})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInsertNeighbor(t *testing.T) {
	best := []Neighbor{}
	best = insertNeighbor(best, Neighbor{Index: 4, Distance: 10}, 2)
	best = insertNeighbor(best, Neighbor{Index: 2, Distance: 3}, 2)
	best = insertNeighbor(best, Neighbor{Index: 1, Distance: 10}, 2)
	best = insertNeighbor(best, Neighbor{Index: 9, Distance: 30}, 2)
	test.That(t, best, test.ShouldResemble, []Neighbor{{Index: 2, Distance: 3}, {Index: 1, Distance: 10}})
}

func TestMatchDescriptors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	//nolint:gosec
	rng := rand.New(rand.NewSource(5))
	train := randomDescriptors(rng, 2000)
	queries := descriptors.Descriptors{train[17], train[3], train[150]}

	for _, bruteForce := range []bool{false, true} {
		cfg := DefaultMatchingConfig()
		cfg.BruteForce = bruteForce
		matches, err := MatchDescriptors(queries, train, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, matches.Indices, test.ShouldResemble, []DescriptorMatch{
			{Idx1: 0, Idx2: 17}, {Idx1: 1, Idx2: 3}, {Idx1: 2, Idx2: 150},
		})
	}

	t.Run("ratio test", func(t *testing.T) {
		cfg := DefaultMatchingConfig()
		cfg.BruteForce = true
		query := descriptors.Descriptors{{0}}
		// distances 1 and 3: 1 < 0.5 * 3
		matches, err := MatchDescriptors(query, descriptors.Descriptors{{0b111}, {0b1}}, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, matches.Indices, test.ShouldResemble, []DescriptorMatch{{Idx1: 0, Idx2: 1, Distance: 1}})
		// distances 2 and 3: 2 >= 0.5 * 3
		matches, err = MatchDescriptors(query, descriptors.Descriptors{{0b111}, {0b11}}, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, matches.Indices, test.ShouldBeEmpty)
		// equal distances are ambiguous
		matches, err = MatchDescriptors(query, descriptors.Descriptors{{0}, {0}}, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, matches.Indices, test.ShouldBeEmpty)
	})

	t.Run("query order", func(t *testing.T) {
		cfg := DefaultMatchingConfig()
		cfg.BruteForce = true
		train := descriptors.Descriptors{{0}, {0xFFFF}}
		// the first query is the farther one from its match
		queries := descriptors.Descriptors{{0b11}, {0xFFFF}}
		matches, err := MatchDescriptors(queries, train, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, matches.Indices, test.ShouldResemble, []DescriptorMatch{
			{Idx1: 0, Idx2: 0, Distance: 2}, {Idx1: 1, Idx2: 1, Distance: 0},
		})
	})

	t.Run("no second neighbor", func(t *testing.T) {
		logger, logs := logging.NewObservedTestLogger(t)
		cfg := DefaultMatchingConfig()
		cfg.BruteForce = true
		matches, err := MatchDescriptors(descriptors.Descriptors{{0}, {1}}, descriptors.Descriptors{{0}}, cfg, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, matches.Indices, test.ShouldBeEmpty)
		entries := logs.FilterMessage("matched descriptors").All()
		test.That(t, entries, test.ShouldHaveLength, 1)
		test.That(t, entries[0].ContextMap()["without_second_neighbor"], test.ShouldEqual, int64(2))
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultMatchingConfig()
		cfg.RatioThreshold = 0
		_, err := MatchDescriptors(queries, train, cfg, logger)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestGetMatchingKeyPoints(t *testing.T) {
	matches := &DescriptorMatches{
		Indices:      []DescriptorMatch{{Idx1: 0, Idx2: 2}, {Idx1: 1, Idx2: 0}},
		Descriptors1: descriptors.Descriptors{{0}, {1}},
		Descriptors2: descriptors.Descriptors{{0}, {1}, {2}},
	}
	kps1 := KeyPoints{{1, 1}, {2, 2}}
	kps2 := KeyPoints{{10, 10}, {20, 20}, {30, 30}}
	m1, m2, err := GetMatchingKeyPoints(matches, kps1, kps2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m1, test.ShouldResemble, KeyPoints{{1, 1}, {2, 2}})
	test.That(t, m2, test.ShouldResemble, KeyPoints{{30, 30}, {10, 10}})

	_, _, err = GetMatchingKeyPoints(matches, kps1[:1], kps2)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = GetMatchingKeyPoints(matches, kps1, KeyPoints{image.Point{}})
	test.That(t, err, test.ShouldNotBeNil)
}
