package memory

import (
	"math/rand"
	"sort"
	"testing"

	"pgregory.net/rapid"
)

// The top-K window kept during the batched scan must agree with a naive
// full sort, and its scores must be non-increasing.
func TestInsertTopK_MatchesNaiveSortProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(1, 20).Draw(rt, "k")
		n := rapid.IntRange(0, 200).Draw(rt, "n")
		seed := rapid.Int64().Draw(rt, "seed")
		rng := rand.New(rand.NewSource(seed))

		scores := make([]float64, n)
		for i := range scores {
			scores[i] = rng.Float64()*2 - 1
		}

		var top []SearchResult
		for _, sc := range scores {
			top = insertTopK(top, SearchResult{Score: sc}, k)
		}

		for i := 1; i < len(top); i++ {
			if top[i].Score > top[i-1].Score {
				rt.Fatalf("scores not non-increasing at %d: %f > %f", i, top[i].Score, top[i-1].Score)
			}
		}

		want := append([]float64(nil), scores...)
		sort.Sort(sort.Reverse(sort.Float64Slice(want)))
		if len(want) > k {
			want = want[:k]
		}
		if len(top) != len(want) {
			rt.Fatalf("kept %d results, want %d", len(top), len(want))
		}
		for i := range want {
			if top[i].Score != want[i] {
				rt.Fatalf("rank %d score = %f, want %f", i, top[i].Score, want[i])
			}
		}
	})
}

// Cosine similarity is symmetric, bounded in [-1, 1], and maximal for a
// vector against itself.
func TestCosineSimilarity_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dim := rapid.IntRange(1, 64).Draw(rt, "dim")
		seed := rapid.Int64().Draw(rt, "seed")
		rng := rand.New(rand.NewSource(seed))

		a := make([]float64, dim)
		b := make([]float64, dim)
		nonZero := false
		for i := 0; i < dim; i++ {
			a[i] = rng.Float64()*2 - 1
			b[i] = rng.Float64()*2 - 1
			if a[i] != 0 {
				nonZero = true
			}
		}
		if !nonZero {
			a[0] = 1
		}

		ab := cosineSimilarity(a, b)
		ba := cosineSimilarity(b, a)
		if ab != ba {
			rt.Fatalf("not symmetric: %f vs %f", ab, ba)
		}
		if ab < -1.0000001 || ab > 1.0000001 {
			rt.Fatalf("out of range: %f", ab)
		}

		self := cosineSimilarity(a, a)
		if self < 0.9999999 {
			rt.Fatalf("self-similarity = %f, want ~1", self)
		}
	})
}
