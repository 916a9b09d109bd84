package vector

import (
	"fmt"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

const kmeansIterations = 10

// IVFIndex partitions vectors into nlist clusters and probes only the nprobe
// clusters nearest to the query. Trades recall for speed on larger catalogs.
type IVFIndex struct {
	dimensions int
	nprobe     int
	centroids  [][]float32
	clusters   [][]int // centroid -> positions in the aligned vector sequence
	vectors    [][]float32
}

// TrainIVF builds a partitioned index over vectors by k-means clustering.
// Returns an error when there are fewer vectors than clusters, so a failed
// training never replaces a working flat index.
func TrainIVF(vectors [][]float32, dimensions, nlist, nprobe int) (*IVFIndex, error) {
	if nlist <= 0 {
		return nil, fmt.Errorf("nlist must be positive")
	}
	if len(vectors) < nlist {
		return nil, fmt.Errorf("not enough vectors to train: %d < nlist %d", len(vectors), nlist)
	}
	if nprobe <= 0 {
		nprobe = 1
	}

	centroids := kmeans(vectors, dimensions, nlist)
	idx := &IVFIndex{
		dimensions: dimensions,
		nprobe:     nprobe,
		centroids:  centroids,
		clusters:   make([][]int, len(centroids)),
		vectors:    make([][]float32, 0, len(vectors)),
	}
	for _, vec := range vectors {
		idx.Add(vec)
	}
	return idx, nil
}

// Add appends a vector, assigning it to its nearest centroid.
func (ivf *IVFIndex) Add(vec []float32) {
	pos := len(ivf.vectors)
	ivf.vectors = append(ivf.vectors, vec)
	c := ivf.nearestCentroid(vec)
	ivf.clusters[c] = append(ivf.clusters[c], pos)
}

// Search probes the nprobe nearest clusters and returns the top k hits.
func (ivf *IVFIndex) Search(query []float32, k int) []Hit {
	if k <= 0 || len(ivf.vectors) == 0 {
		return nil
	}
	probes := topK(ivf.centroidScores(query), ivf.nprobe)
	var candidates []Hit
	for _, p := range probes {
		for _, pos := range ivf.clusters[p.Position] {
			candidates = append(candidates, Hit{
				Position: pos,
				Score:    InnerProduct(query, ivf.vectors[pos]),
			})
		}
	}
	return topK(candidates, k)
}

// Size returns the number of stored vectors.
func (ivf *IVFIndex) Size() int {
	return len(ivf.vectors)
}

// Type returns the variant identifier.
func (ivf *IVFIndex) Type() IndexType {
	return IndexTypeIVF
}

// NList returns the number of clusters.
func (ivf *IVFIndex) NList() int {
	return len(ivf.centroids)
}

// NProbe returns how many clusters each query probes.
func (ivf *IVFIndex) NProbe() int {
	return ivf.nprobe
}

// Centroids returns the trained centroids (not copied; callers must not mutate).
func (ivf *IVFIndex) Centroids() [][]float32 {
	return ivf.centroids
}

func (ivf *IVFIndex) centroidScores(query []float32) []Hit {
	scores := make([]Hit, len(ivf.centroids))
	for i, c := range ivf.centroids {
		scores[i] = Hit{Position: i, Score: InnerProduct(query, c)}
	}
	return scores
}

func (ivf *IVFIndex) nearestCentroid(vec []float32) int {
	best, bestScore := 0, InnerProduct(vec, ivf.centroids[0])
	for i := 1; i < len(ivf.centroids); i++ {
		if s := InnerProduct(vec, ivf.centroids[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// rebuildFromCentroids reconstructs an IVF index from persisted centroids by
// re-assigning every vector to its nearest centroid.
func rebuildFromCentroids(vectors, centroids [][]float32, dimensions, nprobe int) *IVFIndex {
	idx := &IVFIndex{
		dimensions: dimensions,
		nprobe:     nprobe,
		centroids:  centroids,
		clusters:   make([][]int, len(centroids)),
		vectors:    make([][]float32, 0, len(vectors)),
	}
	for _, vec := range vectors {
		idx.Add(vec)
	}
	return idx
}

// kmeans runs Lloyd's algorithm with spherical (inner-product) assignment.
// Initial centroids are evenly spaced samples, which keeps training
// deterministic for a given vector order.
func kmeans(vectors [][]float32, dimensions, k int) [][]float32 {
	centroids := make([][]float32, k)
	step := len(vectors) / k
	for i := 0; i < k; i++ {
		c := make([]float32, dimensions)
		copy(c, vectors[i*step])
		centroids[i] = c
	}

	assignment := make([]int, len(vectors))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, vec := range vectors {
			best, bestScore := 0, InnerProduct(vec, centroids[0])
			for j := 1; j < k; j++ {
				if s := InnerProduct(vec, centroids[j]); s > bestScore {
					best, bestScore = j, s
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		counts := make([]int, k)
		sums := make([][]float32, k)
		for j := range sums {
			sums[j] = make([]float32, dimensions)
		}
		for i, vec := range vectors {
			c := assignment[i]
			counts[c]++
			for d, v := range vec {
				sums[c][d] += v
			}
		}
		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				continue // empty cluster keeps its previous centroid
			}
			utils.NormalizeL2(sums[j])
			centroids[j] = sums[j]
		}
	}
	return centroids
}
