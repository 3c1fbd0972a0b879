// Package scoring estimates how original a piece of text is.
//
// An Engine wraps exactly one configured Provider (chosen once by NewEngine)
// in a resilience chain whose last resort is the Local heuristic, so
// Engine.Score always produces a Result:
//
//	eng := scoring.NewEngine(scoring.Config{Provider: "rapidapi", APIKey: key})
//	res := eng.Score(ctx, text)
//	if res.Fallback { ... }
//
// Asynchronous providers (Copyleaks) answer with Status "pending" and a ScanID
// recorded in a ScanTracker; a pending result is never a score of zero.
package scoring

import (
	"math"
	"strings"
	"time"
)

// Status of a scoring result.
const (
	StatusScored  = "scored"
	StatusPending = "pending"
)

// Result is the outcome of one scoring call.
type Result struct {
	Score     float64   `json:"score"`
	Sources   []Source  `json:"sources,omitempty"`
	Provider  string    `json:"provider"`
	Fallback  bool      `json:"fallback"`
	Status    string    `json:"status"`
	ScanID    string    `json:"scan_id,omitempty"`
	WordCount int       `json:"word_count"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pending reports whether the result still awaits an asynchronous verdict.
func (r *Result) Pending() bool { return r != nil && r.Status == StatusPending }

// Source is a document the text overlaps with.
type Source struct {
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
	Title      string  `json:"title,omitempty"`
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// clampScore bounds v to [0,100] and rounds to two decimals. NaN becomes 0.
func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		v = 100
	}
	return math.Round(v*100) / 100
}

// normalize clamps the score and every source similarity and fills the
// bookkeeping fields.
func (r *Result) normalize(words int, now time.Time) {
	r.Score = clampScore(r.Score)
	for i := range r.Sources {
		r.Sources[i].Similarity = clampScore(r.Sources[i].Similarity)
	}
	if r.Status == "" {
		r.Status = StatusScored
	}
	r.WordCount = words
	if r.CheckedAt.IsZero() {
		r.CheckedAt = now
	}
}
