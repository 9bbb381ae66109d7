package pipeline

import (
	"context"
	"fmt"

	"github.com/playperu/hiddencatch/internal/game"
	"github.com/playperu/hiddencatch/internal/geometry"
	"github.com/playperu/hiddencatch/internal/hiddencatch"
	"github.com/playperu/hiddencatch/internal/mask"
	"github.com/playperu/hiddencatch/internal/queue"
	"github.com/playperu/hiddencatch/internal/store"
)

// edit runs the second step from res alone: it paints the differences into
// the original image and makes the stage playable.
func (p *Pipeline) edit(ctx context.Context, job queue.Job, res DetectionResult) error {
	original, err := p.blobs.Get(ctx, res.OriginalKey)
	if err != nil {
		return storageErr("downloading original", err)
	}

	rects := make([]geometry.Rect, len(res.Regions))
	for i, r := range res.Regions {
		rects[i] = r.Rect
	}
	maskPNG, err := mask.RenderPNG(res.Width, res.Height, rects)
	if err != nil {
		return fmt.Errorf("%w: %v", hiddencatch.ErrEditFailed, err)
	}

	edited, err := p.editor.Edit(ctx, original, maskPNG, BuildPrompt(res.Regions))
	if err != nil {
		return fmt.Errorf("%w: %v", hiddencatch.ErrEditFailed, err)
	}
	if len(edited) == 0 {
		return fmt.Errorf("%w: editor returned an empty image", hiddencatch.ErrEditFailed)
	}

	// res.OriginalKey is per run, and so is the edited image.
	modifiedKey := ModifiedKey(res.OriginalKey)
	if err := p.blobs.Put(ctx, modifiedKey, edited, "image/png"); err != nil {
		return storageErr("uploading edited image", err)
	}

	var (
		slot     hiddencatch.UploadSlot
		gameStat hiddencatch.GameStatus
	)
	err = p.withSlot(ctx, job, func(tx *store.Tx, s *hiddencatch.UploadSlot) error {
		puzzle, err := tx.Puzzle(res.PuzzleID)
		if err != nil {
			return err
		}
		puzzle.ModifiedImageKey = modifiedKey
		puzzle.IsCompleted = true
		if err := tx.UpdatePuzzle(&puzzle); err != nil {
			return err
		}

		g, err := tx.Game(s.GameID)
		if err != nil {
			return err
		}
		st := g.Stage(s.SlotNumber)
		if st == nil {
			return fmt.Errorf("slot %d has no stage: %w", s.SlotNumber, hiddencatch.ErrInconsistentState)
		}
		now := tx.Now()
		st.Status = hiddencatch.StageStatusPlaying
		if cur := game.CurrentStage(&g); cur != nil && cur.ID == st.ID && st.StartedAt == nil {
			st.StartedAt = &now
		}
		if err := tx.UpdateStage(st); err != nil {
			return err
		}
		g.Status = game.DeriveStatus(&g)
		if err := tx.UpdateGame(&g); err != nil {
			return err
		}

		s.AnalysisStatus = hiddencatch.AnalysisCompleted
		s.AnalysisError = ""
		s.LastAnalyzedAt = &now
		slot, gameStat = *s, g.Status
		return tx.UpdateSlot(s)
	})
	if err != nil {
		return err
	}

	p.notify.Publish(slot.GameID, hiddencatch.Event{
		Type:       hiddencatch.EventSlot,
		SlotNumber: slot.SlotNumber,
		Status:     string(slot.AnalysisStatus),
	})
	p.notify.Publish(slot.GameID, hiddencatch.Event{
		Type:        hiddencatch.EventStage,
		StageNumber: res.StageNumber,
		Status:      string(gameStat),
	})
	return nil
}
