package cluster

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/enrich"
)

// KMeans is a Clusterer partitioning contacts by embedding distance. Contacts
// without an embedding are left out of every group. Initialization is
// deterministic (seeds spread evenly over the input) so repeated runs over
// the same contacts produce the same labels.
type KMeans struct {
	K       int // target cluster count; capped at the number of contacts
	MaxIter int
}

// NewKMeans creates a k-means clusterer with sensible iteration bounds.
func NewKMeans(k int) *KMeans {
	if k < 1 {
		k = 1
	}
	return &KMeans{K: k, MaxIter: 50}
}

// Cluster implements Clusterer.
func (km *KMeans) Cluster(_ context.Context, contacts []*domain.Contact) ([]Group, error) {
	var ids []uuid.UUID
	var vectors [][]float32
	dim := 0
	for _, c := range contacts {
		if len(c.Embedding) == 0 {
			continue
		}
		v := enrich.UnpackVector(c.Embedding)
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return nil, fmt.Errorf("embedding dimension mismatch for contact %s: %d != %d", c.ID, len(v), dim)
		}
		ids = append(ids, c.ID)
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	k := km.K
	if k > len(vectors) {
		k = len(vectors)
	}

	// Seeds spread evenly over the input.
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		seed := vectors[i*len(vectors)/k]
		centroids[i] = append([]float32(nil), seed...)
	}

	assignment := make([]int, len(vectors))
	for iter := 0; iter < km.MaxIter; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearest(v, centroids)
			if best != assignment[i] {
				assignment[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		recompute(centroids, vectors, assignment)
	}

	groups := make([]Group, k)
	for i := range groups {
		groups[i].Label = fmt.Sprintf("cluster_%d", i)
	}
	for i, a := range assignment {
		groups[a].ContactIDs = append(groups[a].ContactIDs, ids[i])
	}

	var out []Group
	for _, g := range groups {
		if len(g.ContactIDs) > 0 {
			out = append(out, g)
		}
	}
	return out, nil
}

func nearest(v []float32, centroids [][]float32) int {
	best, bestDist := 0, math.MaxFloat64
	for i, c := range centroids {
		d := sqDist(v, c)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func sqDist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func recompute(centroids [][]float32, vectors [][]float32, assignment []int) {
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for i := range sums {
		sums[i] = make([]float64, len(vectors[0]))
	}
	for i, v := range vectors {
		a := assignment[i]
		counts[a]++
		for j, f := range v {
			sums[a][j] += float64(f)
		}
	}
	for i := range centroids {
		if counts[i] == 0 {
			continue
		}
		for j := range centroids[i] {
			centroids[i][j] = float32(sums[i][j] / float64(counts[i]))
		}
	}
}
