package memory

import (
	"sort"

	"github.com/soorma-platform/soorma/pkg/embedding"
)

// rankBySimilarity scores each candidate's embedding against query with
// cosine similarity, sorts descending, and returns the top limit converted
// via attach (which stamps the score onto the caller's DTO).
func rankBySimilarity[C, R any](candidates []C, query []float32, limit int, embOf func(C) []float32, attach func(C, float64) R) ([]R, error) {
	type scored struct {
		c     C
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{c: c, score: embedding.Cosine(embOf(c), query)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]R, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, attach(ranked[i].c, ranked[i].score))
	}
	return out, nil
}
