package game

import (
	"context"
	"fmt"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
	"github.com/playperu/hiddencatch/internal/store"
)

// DeleteGame removes a game with its stages, hits and slots. Puzzles stay.
func (s *Service) DeleteGame(ctx context.Context, gameID int64) error {
	unlock := s.opts.Locks.Lock(gameID)
	defer unlock()

	err := s.store.Update(ctx, func(tx *store.Tx) error {
		return tx.DeleteGame(gameID)
	})
	if err != nil {
		return err
	}
	s.opts.Logger.Info("game deleted", "game_id", gameID)
	return nil
}

// DeletePuzzle removes a puzzle and its differences. Hits that matched it are
// kept with null references. Unfinished stages that showed the puzzle go back
// to waiting, and their slot is marked failed so it can be retried.
func (s *Service) DeletePuzzle(ctx context.Context, puzzleID int64) error {
	var gameIDs []int64
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		gameIDs, err = tx.PuzzleGameIDs(puzzleID)
		return err
	})
	if err != nil {
		return err
	}

	// gameIDs is ascending, so concurrent deletions lock in the same order.
	for _, id := range gameIDs {
		unlock := s.opts.Locks.Lock(id)
		defer unlock()
	}

	type slotEvent struct {
		gameID int64
		ev     hiddencatch.Event
	}
	var events []slotEvent
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		for _, id := range gameIDs {
			reset, err := detachPuzzle(tx, id, puzzleID)
			if err != nil {
				return err
			}
			for _, slot := range reset {
				events = append(events, slotEvent{id, hiddencatch.Event{
					Type:       hiddencatch.EventSlot,
					SlotNumber: slot.SlotNumber,
					Status:     string(slot.AnalysisStatus),
				}})
			}
		}
		return tx.DeletePuzzle(puzzleID)
	})
	if err != nil {
		return err
	}
	for _, e := range events {
		s.notify.Publish(e.gameID, e.ev)
	}
	s.opts.Logger.Info("puzzle deleted", "puzzle_id", puzzleID, "stages_reset", len(events))
	return nil
}

// detachPuzzle clears puzzleID from a game's stages. Finished stages keep
// their status; the others are reset and returned with their slots.
func detachPuzzle(tx *store.Tx, gameID, puzzleID int64) ([]hiddencatch.UploadSlot, error) {
	g, err := tx.Game(gameID)
	if err != nil {
		return nil, err
	}
	var reset []hiddencatch.UploadSlot
	for i := range g.Stages {
		st := &g.Stages[i]
		if st.PuzzleID == nil || *st.PuzzleID != puzzleID {
			continue
		}
		st.PuzzleID = nil
		if st.Status != hiddencatch.StageStatusFinished {
			slot, err := tx.SlotByNumber(gameID, st.StageNumber)
			if err != nil {
				return nil, err
			}
			st.TotalDifferenceCount = nil
			st.FoundDifferenceCount = 0
			st.StartedAt = nil
			st.Status = hiddencatch.StageStatusWaitingUpload
			if slot.Uploaded {
				now := tx.Now()
				st.Status = hiddencatch.StageStatusWaitingPuzzle
				slot.AnalysisStatus = hiddencatch.AnalysisFailed
				slot.AnalysisError = fmt.Sprintf("puzzle %d was deleted", puzzleID)
				slot.LastAnalyzedAt = &now
				if err := tx.UpdateSlot(&slot); err != nil {
					return nil, err
				}
			}
			reset = append(reset, slot)
		}
		if err := tx.UpdateStage(st); err != nil {
			return nil, err
		}
	}
	g.Status = DeriveStatus(&g)
	return reset, tx.UpdateGame(&g)
}

// RetrySlot re-runs the whole detect and edit chain for an uploaded slot.
func (s *Service) RetrySlot(ctx context.Context, slotID int64) (UploadStatusResponse, error) {
	var gameID int64
	err := s.store.View(ctx, func(tx *store.Tx) error {
		slot, err := tx.Slot(slotID)
		if err != nil {
			return err
		}
		gameID = slot.GameID
		return nil
	})
	if err != nil {
		return UploadStatusResponse{}, err
	}

	unlock := s.opts.Locks.Lock(gameID)
	defer unlock()

	var slot hiddencatch.UploadSlot
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		if slot, err = tx.Slot(slotID); err != nil {
			return err
		}
		if !slot.Uploaded {
			return fmt.Errorf("slot %d has no upload: %w", slotID, hiddencatch.ErrNotReady)
		}
		return s.queueSlot(tx, &g, &slot)
	})
	if err != nil {
		return UploadStatusResponse{}, err
	}
	if err := s.enqueue(ctx, slot); err != nil {
		return UploadStatusResponse{}, err
	}
	s.opts.Logger.Info("slot retry queued", "slot_id", slotID, "version", slot.RunVersion)
	s.notify.Publish(gameID, hiddencatch.Event{Type: hiddencatch.EventSlot, SlotNumber: slot.SlotNumber, Status: string(slot.AnalysisStatus)})
	return s.uploadStatus(ctx, gameID)
}
