// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"math"
	"math/rand/v2"
	"slices"
)

const convergence = 1e-6

// kmeans partitions points into at most k clusters with k-means++
// initialization from seed, stopping after maxIter rounds or once no
// centroid moves more than convergence. It returns the member indices of
// each non-empty cluster, ordered by smallest member index.
func kmeans(points [][]float32, k, maxIter int, seed int64) [][]int {
	n := len(points)
	if n == 0 || k <= 0 {
		return nil
	}
	if k >= n {
		out := make([][]int, n)
		for i := range out {
			out[i] = []int{i}
		}
		return out
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	centroids := initCentroids(points, k, rng)
	assign := make([]int, n)

	for iter := 0; iter < max(maxIter, 1); iter++ {
		for i, p := range points {
			assign[i] = nearest(p, centroids)
		}
		next := updateCentroids(points, assign, centroids)
		moved := 0.0
		for c := range centroids {
			moved = max(moved, distance(centroids[c], next[c]))
		}
		centroids = next
		if moved < convergence {
			break
		}
	}

	groups := make([][]int, k)
	for i, c := range assign {
		groups[c] = append(groups[c], i)
	}
	var out [][]int
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b []int) int { return a[0] - b[0] })
	return out
}

// initCentroids picks the first centroid uniformly and each following one
// with probability proportional to its squared distance from the nearest
// chosen centroid.
func initCentroids(points [][]float32, k int, rng *rand.Rand) [][]float64 {
	centroids := [][]float64{toFloat64(points[rng.IntN(len(points))])}
	d2 := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := distance(toFloat64(p), centroids[nearest(p, centroids)])
			d2[i] = d * d
			total += d2[i]
		}
		if total == 0 {
			// Every point coincides with a centroid.
			centroids = append(centroids, toFloat64(points[rng.IntN(len(points))]))
			continue
		}
		r := rng.Float64() * total
		pick := len(points) - 1
		cum := 0.0
		for i, d := range d2 {
			cum += d
			if cum >= r {
				pick = i
				break
			}
		}
		centroids = append(centroids, toFloat64(points[pick]))
	}
	return centroids
}

// updateCentroids returns the mean of each cluster. An empty cluster keeps
// its previous centroid.
func updateCentroids(points [][]float32, assign []int, prev [][]float64) [][]float64 {
	dim := len(prev[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		c := assign[i]
		counts[c]++
		for d := 0; d < dim && d < len(p); d++ {
			sums[c][d] += float64(p[d])
		}
	}
	for c := range sums {
		if counts[c] == 0 {
			copy(sums[c], prev[c])
			continue
		}
		for d := range sums[c] {
			sums[c][d] /= float64(counts[c])
		}
	}
	return sums
}

func nearest(p []float32, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	v := toFloat64(p)
	for c, centroid := range centroids {
		if d := distance(v, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// clusterCount chooses k for n papers: n/3 clamped to [lo, hi] and never
// more than n.
func clusterCount(n, lo, hi int) int {
	return min(max(n/3, lo), hi, n)
}
