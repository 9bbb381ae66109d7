package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/playperu/hiddencatch/internal/diffset"
	"github.com/playperu/hiddencatch/internal/hiddencatch"
	"github.com/playperu/hiddencatch/internal/queue"
	"github.com/playperu/hiddencatch/internal/store"
)

// detect runs the first step: it loads the original image, asks the
// detector for objects, builds the difference set and persists it together
// with the DetectionResult.
func (p *Pipeline) detect(ctx context.Context, job queue.Job) (DetectionResult, error) {
	var slot hiddencatch.UploadSlot
	err := p.withSlot(ctx, job, func(tx *store.Tx, s *hiddencatch.UploadSlot) error {
		if s.AnalysisStatus == hiddencatch.AnalysisCompleted {
			return errStale // redelivered after this version committed
		}
		s.AnalysisStatus = hiddencatch.AnalysisProcessing
		s.AnalysisError = ""
		slot = *s
		return tx.UpdateSlot(s)
	})
	if err != nil {
		return DetectionResult{}, err
	}
	p.notify.Publish(slot.GameID, hiddencatch.Event{
		Type:       hiddencatch.EventSlot,
		SlotNumber: slot.SlotNumber,
		Status:     string(hiddencatch.AnalysisProcessing),
	})

	data, err := p.blobs.Get(ctx, slot.StorageKey)
	if err != nil {
		return DetectionResult{}, storageErr("downloading original", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return DetectionResult{}, fmt.Errorf("%w: decoding image: %v", hiddencatch.ErrDetectionFailed, err)
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	// The puzzle points at this copy, so later writes to the slot key cannot
	// change the image a playable stage shows.
	runKey := RunKey(slot.StorageKey, job.Version)
	if err := p.blobs.Put(ctx, runKey, data, http.DetectContentType(data)); err != nil {
		return DetectionResult{}, storageErr("copying original", err)
	}

	objects, err := p.detector.Detect(ctx, data, width, height)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("%w: %v", hiddencatch.ErrDetectionFailed, err)
	}
	regions, err := diffset.Build(objects, width, height)
	if err != nil {
		return DetectionResult{}, err
	}

	res := DetectionResult{
		SlotID:      slot.ID,
		Version:     job.Version,
		GameID:      slot.GameID,
		StageNumber: slot.SlotNumber,
		OriginalKey: runKey,
		Width:       width,
		Height:      height,
		Detections:  objects,
		Regions:     regions,
	}
	err = p.withSlot(ctx, job, func(tx *store.Tx, s *hiddencatch.UploadSlot) error {
		puzzleID, err := p.commitDifferences(tx, s, &res)
		if err != nil {
			return err
		}
		res.PuzzleID = puzzleID
		payload, err := json.Marshal(res)
		if err != nil {
			return err
		}
		s.DetectedObjects = payload
		return tx.UpdateSlot(s)
	})
	return res, err
}

// commitDifferences attaches a puzzle to the slot's stage, reusing the one
// from an earlier run, and replaces its difference set.
func (p *Pipeline) commitDifferences(tx *store.Tx, slot *hiddencatch.UploadSlot, res *DetectionResult) (int64, error) {
	g, err := tx.Game(slot.GameID)
	if err != nil {
		return 0, err
	}
	st := g.Stage(slot.SlotNumber)
	if st == nil {
		return 0, fmt.Errorf("slot %d has no stage: %w", slot.SlotNumber, hiddencatch.ErrInconsistentState)
	}

	var puzzle hiddencatch.Puzzle
	if st.PuzzleID != nil {
		puzzle, err = tx.Puzzle(*st.PuzzleID)
		if err != nil && !errors.Is(err, hiddencatch.ErrNotFound) {
			return 0, err
		}
	}
	puzzle.Difficulty = g.Difficulty
	puzzle.OriginalImageKey = res.OriginalKey
	puzzle.ModifiedImageKey = res.OriginalKey
	puzzle.Width, puzzle.Height = res.Width, res.Height
	puzzle.IsCompleted = false
	if puzzle.ID == 0 {
		err = tx.CreatePuzzle(&puzzle)
	} else {
		err = tx.UpdatePuzzle(&puzzle)
	}
	if err != nil {
		return 0, err
	}

	diffs := make([]hiddencatch.Difference, len(res.Regions))
	for i, r := range res.Regions {
		diffs[i] = hiddencatch.Difference{Index: r.Index, Rect: r.Rect, Label: r.Label}
	}
	if _, err := tx.ReplaceDifferences(puzzle.ID, diffs); err != nil {
		return 0, err
	}

	total := len(diffs)
	st.PuzzleID = &puzzle.ID
	st.TotalDifferenceCount = &total
	st.Status = hiddencatch.StageStatusWaitingPuzzle
	if err := tx.UpdateStage(st); err != nil {
		return 0, err
	}
	return puzzle.ID, nil
}

func storageErr(op string, err error) error {
	if errors.Is(err, hiddencatch.ErrStorageFailed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, hiddencatch.ErrStorageFailed, err)
}
