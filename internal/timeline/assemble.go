package timeline

import (
	"math/rand/v2"

	"github.com/wirelessr/twitter-timeline-facade/internal/store"
)

// assemble merges the pushed recommendations with the fanned-in celebrity
// posts into one uniformly shuffled result, so neither source dominates
// visual ordering. No dedup: an author is either celebrity or ordinary, so
// a post appears in at most one source.
func assemble(fromOwned, fromCelebrities []store.Entry) []store.Entry {
	out := make([]store.Entry, 0, len(fromOwned)+len(fromCelebrities))
	out = append(out, fromOwned...)
	out = append(out, fromCelebrities...)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
