package vectorindex

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopKSelectsHighestScores(t *testing.T) {
	selector := NewTopK[string](3)
	selector.Add(0.1, "a")
	selector.Add(0.9, "b")
	selector.Add(0.5, "c")
	selector.Add(0.7, "d")
	selector.Add(0.3, "e")

	results := selector.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "b", results[0].Item)
	assert.Equal(t, "d", results[1].Item)
	assert.Equal(t, "c", results[2].Item)
}

func TestTopKFewerThanK(t *testing.T) {
	selector := NewTopK[int](10)
	selector.Add(0.2, 1)
	selector.Add(0.8, 2)

	results := selector.Results()
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Item)
	assert.Equal(t, 1, results[1].Item)
}

func TestTopKRejectsBelowMinimumWhenFull(t *testing.T) {
	selector := NewTopK[int](2)
	selector.Add(0.5, 1)
	selector.Add(0.6, 2)
	selector.Add(0.1, 3)

	assert.Equal(t, 2, selector.Len())
	assert.InDelta(t, 0.5, selector.Min(), 1e-9)
}

func TestTopKNonPositiveK(t *testing.T) {
	selector := NewTopK[int](0)
	selector.Add(0.1, 1)
	selector.Add(0.9, 2)

	results := selector.Results()
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Item)
}

func TestTopKMatchesFullSort(t *testing.T) {
	const n, k = 500, 10
	rng := rand.New(rand.NewSource(42))

	scores := make([]float64, n)
	selector := NewTopK[int](k)
	for i := range scores {
		scores[i] = rng.Float64()
		selector.Add(scores[i], i)
	}

	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	results := selector.Results()
	require.Len(t, results, k)
	for i, r := range results {
		assert.InDelta(t, sorted[i], r.Score, 1e-12)
	}
}
