// Package descriptors contains binary descriptors and the distances between them.
package descriptors

import (
	"math/bits"

	"github.com/pkg/errors"
)

type (
	// Descriptor is a binary descriptor packed into 64-bit words.
	Descriptor []uint64
	// Descriptors is a set of descriptors, one per keypoint.
	Descriptors []Descriptor
)

// NBits returns the number of bits of the descriptor.
func (d Descriptor) NBits() int {
	return 64 * len(d)
}

// Bit returns the value of bit i of the descriptor.
func (d Descriptor) Bit(i int) uint64 {
	return (d[i/64] >> (i % 64)) & 1
}

// HammingDistance computes the number of differing bits between two descriptors of the same length.
func HammingDistance(d1, d2 Descriptor) (int, error) {
	if len(d1) != len(d2) {
		return 0, errors.Errorf("descriptors must have same length, got %d and %d", len(d1), len(d2))
	}
	dist := 0
	for i := range d1 {
		dist += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return dist, nil
}

// DescriptorsHammingDistance computes the pairwise distances between 2 sets of descriptors.
func DescriptorsHammingDistance(desc1, desc2 Descriptors) ([][]int, error) {
	distances := make([][]int, len(desc1))
	for i := range desc1 {
		distances[i] = make([]int, len(desc2))
		for j := range desc2 {
			d, err := HammingDistance(desc1[i], desc2[j])
			if err != nil {
				return nil, err
			}
			distances[i][j] = d
		}
	}
	return distances, nil
}
