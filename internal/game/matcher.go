package game

import (
	"time"

	"github.com/playperu/hiddencatch/internal/geometry"
	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

// ScorePerHit is added to the game score for every newly found difference.
const ScorePerHit = 100

// Match returns the lowest-index difference whose rect contains (x, y), or
// nil when the point misses every difference.
func Match(diffs []hiddencatch.Difference, x, y float64) *hiddencatch.Difference {
	var best *hiddencatch.Difference
	for i := range diffs {
		d := &diffs[i]
		if !d.Rect.ContainsPoint(x, y) {
			continue
		}
		if best == nil || d.Index < best.Index {
			best = d
		}
	}
	return best
}

type matchOutcome struct {
	isCorrect      bool
	isAlreadyFound bool
	difference     *hiddencatch.Difference
	hit            *hiddencatch.GameStageHit // new hit to persist
}

// applyHit tests (x, y) against diffs and, on a new match, credits the stage
// and the game. Re-hitting a found difference changes nothing.
func applyHit(g *hiddencatch.Game, st *hiddencatch.GameStage, diffs []hiddencatch.Difference, x, y float64, now time.Time) matchOutcome {
	d := Match(diffs, x, y)
	if d == nil {
		return matchOutcome{}
	}
	for _, h := range st.Hits {
		if h.DifferenceID != nil && *h.DifferenceID == d.ID {
			return matchOutcome{isAlreadyFound: true, difference: d}
		}
	}

	hit := &hiddencatch.GameStageHit{StageID: st.ID, DifferenceID: &d.ID, HitAt: now}
	st.Hits = append(st.Hits, *hit)
	st.FoundDifferenceCount++
	if st.TotalDifferenceCount == nil {
		total := len(diffs)
		st.TotalDifferenceCount = &total
	}
	g.CurrentScore += ScorePerHit
	return matchOutcome{isCorrect: true, difference: d, hit: hit}
}

// FoundDifference is a solved region as shown to the player.
type FoundDifference struct {
	DifferenceID int64         `json:"difference_id"`
	Index        int           `json:"index"`
	Rect         geometry.Rect `json:"rect"`
	Label        string        `json:"label,omitempty"`
	HitAt        time.Time     `json:"hit_at"`
}

// foundDifferences joins a stage's hits with the puzzle's differences. Hits
// whose difference no longer exists are left out.
func foundDifferences(hits []hiddencatch.GameStageHit, diffs []hiddencatch.Difference) []FoundDifference {
	byID := make(map[int64]hiddencatch.Difference, len(diffs))
	for _, d := range diffs {
		byID[d.ID] = d
	}
	out := []FoundDifference{}
	for _, h := range hits {
		if h.DifferenceID == nil {
			continue
		}
		d, ok := byID[*h.DifferenceID]
		if !ok {
			continue
		}
		out = append(out, FoundDifference{
			DifferenceID: d.ID,
			Index:        d.Index,
			Rect:         d.Rect,
			Label:        d.Label,
			HitAt:        h.HitAt,
		})
	}
	return out
}
