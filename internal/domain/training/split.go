package training

import (
	"math"
	"math/rand"
)

// partitions holds row indices for each split.
type partitions struct {
	train, val, test []int
}

// split shuffles 0..n-1 with seed and cuts it into train/val/test.
func split(n int, valFrac, testFrac float64, seed int64) (partitions, error) {
	nTest := int(math.Round(float64(n) * testFrac))
	nVal := int(math.Round(float64(n) * valFrac))
	if nTest < 1 || nVal < 1 || n-nTest-nVal < 1 {
		return partitions{}, ErrCorpusTooSmall
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return partitions{
		test:  perm[:nTest],
		val:   perm[nTest : nTest+nVal],
		train: perm[nTest+nVal:],
	}, nil
}
