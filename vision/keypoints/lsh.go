package keypoints

import (
	"math/rand"
	"slices"

	"github.com/pkg/errors"

	"go.viam.com/monovo/vision/keypoints/descriptors"
)

// LSHConfig contains the parameters of a locality sensitive hashing index over binary descriptors.
type LSHConfig struct {
	TableNumber     int   `json:"table_number"`
	KeySize         int   `json:"key_size"`
	MultiProbeLevel int   `json:"multi_probe_level"`
	Seed            int64 `json:"seed"`
}

// DefaultLSHConfig returns 6 tables of 12 bits keys probed at distance 1.
func DefaultLSHConfig() *LSHConfig {
	return &LSHConfig{
		TableNumber:     6,
		KeySize:         12,
		MultiProbeLevel: 1,
		Seed:            1,
	}
}

// Validate ensures all parts of the LSHConfig are valid.
func (cfg *LSHConfig) Validate() error {
	if cfg.TableNumber < 1 {
		return errors.New("table_number should be >= 1")
	}
	if cfg.KeySize < 1 || cfg.KeySize > 32 {
		return errors.New("key_size should be in [1, 32]")
	}
	if cfg.MultiProbeLevel < 0 || cfg.MultiProbeLevel > cfg.KeySize {
		return errors.New("multi_probe_level should be in [0, key_size]")
	}
	return nil
}

// Neighbor is a descriptor of an index with its distance to a query.
type Neighbor struct {
	Index    int
	Distance int
}

type lshTable struct {
	bits    []int
	buckets map[uint32][]int
}

func (t *lshTable) key(d descriptors.Descriptor) uint32 {
	var key uint32
	for i, b := range t.bits {
		key |= uint32(d.Bit(b)) << i
	}
	return key
}

// LSHIndex is an approximate nearest neighbor index over binary descriptors. Each table hashes a
// descriptor by a random subset of its bits, and queries also probe the buckets whose key is close
// to the query key.
type LSHIndex struct {
	cfg    LSHConfig
	descs  descriptors.Descriptors
	tables []lshTable
	probes []uint32
}

// NewLSHIndex indexes descs, which must all have the same length.
func NewLSHIndex(descs descriptors.Descriptors, cfg *LSHConfig) (*LSHIndex, error) {
	if cfg == nil {
		cfg = DefaultLSHConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	index := &LSHIndex{cfg: *cfg, descs: descs}
	if len(descs) == 0 {
		return index, nil
	}
	nBits := descs[0].NBits()
	for i, d := range descs {
		if len(d) != len(descs[0]) {
			return nil, errors.Errorf("descriptor %d has %d words, expected %d", i, len(d), len(descs[0]))
		}
	}
	if cfg.KeySize > nBits {
		return nil, errors.Errorf("key_size %d is larger than the %d bits of the descriptors", cfg.KeySize, nBits)
	}
	//nolint:gosec
	rng := rand.New(rand.NewSource(cfg.Seed))
	index.tables = make([]lshTable, cfg.TableNumber)
	for t := range index.tables {
		table := lshTable{
			bits:    rng.Perm(nBits)[:cfg.KeySize],
			buckets: make(map[uint32][]int),
		}
		for i, d := range descs {
			key := table.key(d)
			table.buckets[key] = append(table.buckets[key], i)
		}
		index.tables[t] = table
	}
	index.probes = probeMasks(cfg.KeySize, cfg.MultiProbeLevel)
	return index, nil
}

// probeMasks returns every key mask with at most level bits set, starting with the empty mask.
func probeMasks(keySize, level int) []uint32 {
	masks := []uint32{0}
	var extend func(mask uint32, start, remaining int)
	extend = func(mask uint32, start, remaining int) {
		if remaining == 0 {
			return
		}
		for b := start; b < keySize; b++ {
			next := mask | 1<<b
			masks = append(masks, next)
			extend(next, b+1, remaining-1)
		}
	}
	extend(0, 0, level)
	return masks
}

// Len returns the number of indexed descriptors.
func (index *LSHIndex) Len() int {
	return len(index.descs)
}

// KNN returns up to k indexed descriptors closest to query among the candidates found in the probed
// buckets, sorted by increasing distance then index.
func (index *LSHIndex) KNN(query descriptors.Descriptor, k int) ([]Neighbor, error) {
	if k < 1 || len(index.descs) == 0 {
		return nil, nil
	}
	if len(query) != len(index.descs[0]) {
		return nil, errors.Errorf("query has %d words, index has %d", len(query), len(index.descs[0]))
	}
	visited := make(map[int]struct{})
	best := make([]Neighbor, 0, k+1)
	for t := range index.tables {
		table := &index.tables[t]
		key := table.key(query)
		for _, mask := range index.probes {
			for _, idx := range table.buckets[key^mask] {
				if _, ok := visited[idx]; ok {
					continue
				}
				visited[idx] = struct{}{}
				dist, err := descriptors.HammingDistance(query, index.descs[idx])
				if err != nil {
					return nil, err
				}
				best = insertNeighbor(best, Neighbor{Index: idx, Distance: dist}, k)
			}
		}
	}
	return best, nil
}

// insertNeighbor inserts n in the sorted slice best, keeping at most k elements.
func insertNeighbor(best []Neighbor, n Neighbor, k int) []Neighbor {
	pos, _ := slices.BinarySearchFunc(best, n, compareNeighbors)
	if pos >= k {
		return best
	}
	best = slices.Insert(best, pos, n)
	if len(best) > k {
		best = best[:k]
	}
	return best
}

func compareNeighbors(a, b Neighbor) int {
	if a.Distance != b.Distance {
		return a.Distance - b.Distance
	}
	return a.Index - b.Index
}
