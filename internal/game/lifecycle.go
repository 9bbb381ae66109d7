package game

import (
	"fmt"
	"time"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

// DeriveStatus computes a game's status from its stages. A game that was
// finished explicitly stays finished.
func DeriveStatus(g *hiddencatch.Game) hiddencatch.GameStatus {
	if g.Status == hiddencatch.GameStatusFinished {
		return g.Status
	}
	if len(g.Stages) == 0 {
		return hiddencatch.GameStatusWaitingUpload
	}

	allUpload, allFinished := true, true
	for _, s := range g.Stages {
		if s.Status != hiddencatch.StageStatusWaitingUpload {
			allUpload = false
		}
		if s.Status != hiddencatch.StageStatusFinished {
			allFinished = false
		}
	}
	switch {
	case allUpload:
		return hiddencatch.GameStatusWaitingUpload
	case allFinished:
		return hiddencatch.GameStatusFinished
	}

	cur := CurrentStage(g)
	switch {
	case cur.Status == hiddencatch.StageStatusPlaying:
		return hiddencatch.GameStatusPlaying
	case cur.StageNumber > 1:
		return hiddencatch.GameStatusWaitingNextStage
	default:
		return hiddencatch.GameStatusWaitingPuzzle
	}
}

// CurrentStage returns the first unfinished stage, or the last stage when
// every stage is finished. It returns nil for a game without stages.
func CurrentStage(g *hiddencatch.Game) *hiddencatch.GameStage {
	for i := range g.Stages {
		if g.Stages[i].Status != hiddencatch.StageStatusFinished {
			return &g.Stages[i]
		}
	}
	if n := len(g.Stages); n > 0 {
		return &g.Stages[n-1]
	}
	return nil
}

// completeStage finishes stage number and advances the game. It returns the
// next stage when that stage is ready to be played.
func completeStage(g *hiddencatch.Game, number int, now time.Time) (*hiddencatch.GameStage, error) {
	st := g.Stage(number)
	if st == nil {
		return nil, fmt.Errorf("stage %d of game %d: %w", number, g.ID, hiddencatch.ErrNotFound)
	}
	if g.Status == hiddencatch.GameStatusFinished {
		return nil, fmt.Errorf("game %d is finished: %w", g.ID, hiddencatch.ErrNotReady)
	}
	if st.Status != hiddencatch.StageStatusPlaying {
		return nil, fmt.Errorf("stage %d is %s: %w", number, st.Status, hiddencatch.ErrNotReady)
	}
	for _, prev := range g.Stages {
		if prev.StageNumber < number && prev.Status != hiddencatch.StageStatusFinished {
			return nil, fmt.Errorf("stage %d is not finished yet: %w", prev.StageNumber, hiddencatch.ErrNotReady)
		}
	}

	if number == len(g.Stages) {
		st.Status = hiddencatch.StageStatusFinished
		st.CompletedAt = &now
		g.Status = hiddencatch.GameStatusFinished
		return nil, nil
	}

	next := g.Stage(number + 1)
	if next == nil {
		return nil, fmt.Errorf("game %d has no stage %d: %w", g.ID, number+1, hiddencatch.ErrInconsistentState)
	}
	if next.Status == hiddencatch.StageStatusFinished {
		return nil, fmt.Errorf("stage %d finished before stage %d: %w", next.StageNumber, number, hiddencatch.ErrInconsistentState)
	}

	st.Status = hiddencatch.StageStatusFinished
	st.CompletedAt = &now
	if next.Status != hiddencatch.StageStatusPlaying {
		g.Status = hiddencatch.GameStatusWaitingNextStage
		return nil, nil
	}
	if next.StartedAt == nil {
		next.StartedAt = &now
	}
	g.Status = hiddencatch.GameStatusPlaying
	return next, nil
}
