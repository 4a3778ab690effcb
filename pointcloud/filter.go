package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// ConfidentIndices returns the indices of the finite points whose confidence is at least
// minConfidence. When conf is not parallel to points there is nothing to filter on and every
// finite point qualifies.
func ConfidentIndices(points []r3.Vector, conf []float64, minConfidence float64) []int {
	hasConf := len(conf) == len(points)
	indices := make([]int, 0, len(points))
	for i, p := range points {
		if !IsFinite(p) {
			continue
		}
		if hasConf && (conf[i] < minConfidence || math.IsNaN(conf[i])) {
			continue
		}
		indices = append(indices, i)
	}
	return indices
}

// FilterByConfidence keeps the points whose confidence is at least minConfidence, along with their
// confidences. When conf is not parallel to points every finite point is kept and the returned
// confidence is nil.
func FilterByConfidence(points []r3.Vector, conf []float64, minConfidence float64) ([]r3.Vector, []float64) {
	indices := ConfidentIndices(points, conf, minConfidence)
	if len(conf) != len(points) {
		return Select(points, indices), nil
	}
	return Select(points, indices), Select(conf, indices)
}

// Select gathers values at the given indices, in index order. An empty values slice stands for an
// absent attribute and selects to nil.
func Select[T any](values []T, indices []int) []T {
	if len(values) == 0 {
		return nil
	}
	out := make([]T, 0, len(indices))
	for _, i := range indices {
		out = append(out, values[i])
	}
	return out
}

// Subsample returns every stride-th point starting at the first.
func Subsample(points []r3.Vector, stride int) []r3.Vector {
	if stride <= 1 {
		return points
	}
	out := make([]r3.Vector, 0, len(points)/stride+1)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}
	return out
}

type bucketKey struct {
	i, j, k int64
}

func bucketOf(p r3.Vector, size float64) bucketKey {
	return bucketKey{
		int64(math.Floor(p.X / size)),
		int64(math.Floor(p.Y / size)),
		int64(math.Floor(p.Z / size)),
	}
}

// DedupIndices returns the indices of the points that survive deduplication: every point closer
// than threshold to a point kept before it is dropped, scanning in input order. It is the greedy
// first-kept rule of a pairwise pass, bucketed on a grid of threshold-sized cells so that only the
// 27 neighboring cells are searched. Non-finite points are dropped. The indices are ascending, so
// Select carries parallel attributes through.
func DedupIndices(points []r3.Vector, threshold float64) []int {
	indices := make([]int, 0, len(points))
	if threshold <= 0 {
		for i, p := range points {
			if IsFinite(p) {
				indices = append(indices, i)
			}
		}
		return indices
	}
	thresholdSq := threshold * threshold
	buckets := make(map[bucketKey][]r3.Vector, len(points))

	for i, p := range points {
		if !IsFinite(p) {
			continue
		}
		key := bucketOf(p, threshold)
		duplicate := false
	search:
		for di := int64(-1); di <= 1; di++ {
			for dj := int64(-1); dj <= 1; dj++ {
				for dk := int64(-1); dk <= 1; dk++ {
					for _, q := range buckets[bucketKey{key.i + di, key.j + dj, key.k + dk}] {
						if p.Sub(q).Norm2() < thresholdSq {
							duplicate = true
							break search
						}
					}
				}
			}
		}
		if duplicate {
			continue
		}
		buckets[key] = append(buckets[key], p)
		indices = append(indices, i)
	}
	return indices
}
