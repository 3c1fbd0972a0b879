package scoring

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
)

// LocalName is the provider name reported by the local heuristic.
const LocalName = "Mock Checker"

// Local is the demo heuristic: longer texts score higher, plus a random
// jitter. It never fails and never touches the network.
type Local struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocal returns a Local scorer. A nil rng draws from a randomly seeded
// PCG source.
func NewLocal(rng *rand.Rand) *Local {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Local{rng: rng}
}

func (l *Local) Name() string { return LocalName }

// Score implements Provider. The error is always nil.
func (l *Local) Score(_ context.Context, text string) (*Result, error) {
	return l.score(text), nil
}

func (l *Local) score(text string) *Result {
	words := CountWords(text)
	base := math.Min(float64(words)/100, 1) * 30

	l.mu.Lock()
	jitter := l.rng.Float64() * 20
	l.mu.Unlock()

	score := clampScore(base + jitter)
	res := &Result{
		Score:    score,
		Provider: LocalName,
		Fallback: true,
		Status:   StatusScored,
	}
	if score > 10 {
		res.Sources = []Source{
			{URL: "https://example.edu/article", Similarity: clampScore(score * 0.4), Title: "Academic Article Example"},
			{URL: "https://wikipedia.org/example", Similarity: clampScore(score * 0.3), Title: "Wikipedia Article"},
			{URL: "https://blog.example.com/post", Similarity: clampScore(score * 0.2), Title: "Blog Post"},
		}
	}
	return res
}
